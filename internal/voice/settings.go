package voice

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Settings are the per-user voice preferences. They persist across voice
// sessions; everything else in a session is ephemeral.
type Settings struct {
	SubtitlesEnabled bool    `toml:"subtitles"`
	SpeechRate       float64 `toml:"speech_rate"`
	VoiceID          string  `toml:"voice_id"`
	HandsFree        bool    `toml:"hands_free"`
}

// Profile is everything the settings store persists: the preferences plus
// whether microphone permission was granted before.
type Profile struct {
	Settings          Settings `toml:"settings"`
	PermissionGranted bool     `toml:"permission_granted"`
}

// DefaultSettings matches the shipped defaults of the voice surface.
func DefaultSettings() Settings {
	return Settings{
		SubtitlesEnabled: true,
		SpeechRate:       1.1,
		HandsFree:        true,
	}
}

// SettingsStore persists the voice profile between sessions.
type SettingsStore interface {
	Load() (Profile, error)
	Save(Profile) error
}

// FileStore keeps the profile in a TOML file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the profile; a missing file yields defaults, not an error.
func (s *FileStore) Load() (Profile, error) {
	p := Profile{Settings: DefaultSettings()}
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return p, nil
	}
	if _, err := toml.DecodeFile(s.Path, &p); err != nil {
		return Profile{Settings: DefaultSettings()}, fmt.Errorf("voice settings: decode %s: %w", s.Path, err)
	}
	if p.Settings.SpeechRate <= 0 {
		p.Settings.SpeechRate = DefaultSettings().SpeechRate
	}
	return p, nil
}

func (s *FileStore) Save(p Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("voice settings: %w", err)
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("voice settings: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("voice settings: encode: %w", err)
	}
	return nil
}
