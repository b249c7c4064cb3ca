package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"whisperkey/internal/chord"
)

// Engine selection values for Settings.Engine.
const (
	EngineHTTP      = "http"
	EngineWebsocket = "websocket"
)

const (
	DefaultHotkey     = "alt+shift"
	DefaultModel      = "whisper-1"
	DefaultSampleRate = 16000
)

// Settings is the persisted user configuration. Unknown fields in the file
// are ignored; missing fields keep their defaults.
type Settings struct {
	Hotkey          string `json:"hotkey"`
	MicrophoneIndex int    `json:"microphone_index"`
	Model           string `json:"model"`
	Language        string `json:"language,omitempty"`
	Engine          string `json:"engine"`
	Endpoint        string `json:"endpoint,omitempty"`
	SampleRate      int    `json:"sample_rate"`
	CheckUpdates    bool   `json:"check_updates"`

	// APIKey comes from the environment only; it never lands in the
	// config file.
	APIKey string `json:"-"`
}

// Defaults returns the out-of-the-box configuration. MicrophoneIndex -1
// selects the system default input device.
func Defaults() Settings {
	return Settings{
		Hotkey:          DefaultHotkey,
		MicrophoneIndex: -1,
		Model:           DefaultModel,
		Engine:          EngineHTTP,
		SampleRate:      DefaultSampleRate,
		CheckUpdates:    true,
	}
}

// Dir returns the configuration directory (~/.config/whisperkey).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "whisperkey"), nil
}

// ConfigPath returns the config file location.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// RulesPath returns the substitution rules file location.
func RulesPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "substitutions.rules"), nil
}

// LogPath returns the log file location.
func LogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "whisperkey.log"), nil
}

// Load reads the config file, fills gaps with defaults, and applies
// environment overrides. A missing or unreadable file yields the defaults;
// an invalid persisted hotkey falls back to the default chord instead of
// blocking startup.
func Load() (Settings, error) {
	_ = godotenv.Load()

	path, err := ConfigPath()
	if err != nil {
		return Settings{}, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (Settings, error) {
	s := Defaults()

	contents, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("failed to read config %q: %w", path, err)
	default:
		if err := json.Unmarshal(contents, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config %q: %w", path, err)
		}
	}

	s.applyEnv()
	s.normalize()
	return s, nil
}

func (s *Settings) applyEnv() {
	s.Hotkey = envOrDefault("WHISPERKEY_HOTKEY", s.Hotkey)
	s.Model = envOrDefault("WHISPERKEY_MODEL", s.Model)
	s.Language = envOrDefault("WHISPERKEY_LANGUAGE", s.Language)
	s.Engine = envOrDefault("WHISPERKEY_ENGINE", s.Engine)
	s.Endpoint = envOrDefault("WHISPERKEY_ENDPOINT", s.Endpoint)
	s.MicrophoneIndex = envOrDefaultInt("WHISPERKEY_MIC_INDEX", s.MicrophoneIndex)
	s.SampleRate = envOrDefaultInt("WHISPERKEY_SAMPLE_RATE", s.SampleRate)
	s.CheckUpdates = envOrDefaultBool("WHISPERKEY_CHECK_UPDATES", s.CheckUpdates)
	s.APIKey = firstNonEmpty(
		os.Getenv("WHISPERKEY_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("DEEPGRAM_API_KEY"),
	)
}

func (s *Settings) normalize() {
	if s.SampleRate <= 0 {
		s.SampleRate = DefaultSampleRate
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	switch strings.ToLower(strings.TrimSpace(s.Engine)) {
	case EngineWebsocket, "ws":
		s.Engine = EngineWebsocket
	default:
		s.Engine = EngineHTTP
	}
	if chord.Validate(s.Hotkey) != nil {
		s.Hotkey = DefaultHotkey
	}
}

// Save validates and writes the configuration. The hotkey is checked
// before anything touches the disk.
func Save(s Settings) error {
	if err := chord.Validate(s.Hotkey); err != nil {
		return fmt.Errorf("invalid hotkey %q: %w", s.Hotkey, err)
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return saveTo(path, s)
}

func saveTo(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	contents, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(contents, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config %q: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
