package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("API_BASE_URL", "")
	os.Setenv("HISTORY_DB_PATH", "")
	os.Setenv("SETTINGS_PATH", "")
	cfg := Load()
	if cfg.APIBaseURL == "" {
		t.Fatalf("expected default api base url")
	}
	if cfg.HistoryDBPath == "" {
		t.Fatalf("expected default history db path")
	}
	if cfg.SettingsPath == "" {
		t.Fatalf("expected default settings path")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("API_BASE_URL", "http://sim:9090")
	os.Setenv("STT_WS_URL", "ws://stt:9091/v1/listen")
	defer os.Unsetenv("API_BASE_URL")
	defer os.Unsetenv("STT_WS_URL")
	cfg := Load()
	if cfg.APIBaseURL != "http://sim:9090" {
		t.Fatalf("api base url = %q", cfg.APIBaseURL)
	}
	if cfg.STTGatewayURL != "ws://stt:9091/v1/listen" {
		t.Fatalf("stt url = %q", cfg.STTGatewayURL)
	}
}
