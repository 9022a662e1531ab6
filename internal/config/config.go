package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	APIBaseURL    string
	STTGatewayURL string
	TTSBaseURL    string
	HistoryDBPath string
	SettingsPath  string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	base := os.Getenv("API_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	sttURL := os.Getenv("STT_WS_URL")
	if sttURL == "" {
		log.Println("Warning: STT_WS_URL not set - voice capture will not work")
	}

	ttsURL := os.Getenv("TTS_URL")
	if ttsURL == "" {
		log.Println("Warning: TTS_URL not set - speech playback will not work")
	}

	dbPath := os.Getenv("HISTORY_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(stateDir(), "history.db")
	}

	settingsPath := os.Getenv("SETTINGS_PATH")
	if settingsPath == "" {
		settingsPath = filepath.Join(stateDir(), "voice.toml")
	}

	log.Printf("config: API_BASE_URL=%s", base)
	return Config{
		APIBaseURL:    base,
		STTGatewayURL: sttURL,
		TTSBaseURL:    ttsURL,
		HistoryDBPath: dbPath,
		SettingsPath:  settingsPath,
	}
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ansimssi")
}
