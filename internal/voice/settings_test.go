package voice

import (
	"path/filepath"
	"testing"
)

func TestFileStoreDefaultsWhenMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "voice.toml"))
	prof, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if prof.PermissionGranted {
		t.Error("permission granted by default")
	}
	want := DefaultSettings()
	if prof.Settings != want {
		t.Errorf("settings = %+v, want %+v", prof.Settings, want)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "voice.toml")
	store := NewFileStore(path)

	in := Profile{
		Settings: Settings{
			SubtitlesEnabled: false,
			SpeechRate:       1.4,
			VoiceID:          "ko-soft",
			HandsFree:        false,
		},
		PermissionGranted: true,
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestFileStoreRepairsBadRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.toml")
	store := NewFileStore(path)

	in := Profile{Settings: Settings{SpeechRate: 0}}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Settings.SpeechRate != DefaultSettings().SpeechRate {
		t.Errorf("rate = %v, want default", out.Settings.SpeechRate)
	}
}
