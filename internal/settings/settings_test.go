package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromMissingFileGivesDefaults(t *testing.T) {
	s, err := loadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}

	if s.Hotkey != DefaultHotkey {
		t.Fatalf("unexpected hotkey: %q", s.Hotkey)
	}
	if s.MicrophoneIndex != -1 {
		t.Fatalf("default mic index should be -1, got %d", s.MicrophoneIndex)
	}
	if s.Engine != EngineHTTP {
		t.Fatalf("default engine should be http, got %q", s.Engine)
	}
	if !s.CheckUpdates {
		t.Fatalf("update checks should default on")
	}
}

func TestLoadFromMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{"hotkey":"cmd+shift+space","microphone_index":2,"unknown_field":true}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := loadFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Hotkey != "cmd+shift+space" {
		t.Fatalf("unexpected hotkey: %q", s.Hotkey)
	}
	if s.MicrophoneIndex != 2 {
		t.Fatalf("unexpected mic index: %d", s.MicrophoneIndex)
	}
	// Fields absent from the file keep their defaults.
	if s.Model != DefaultModel {
		t.Fatalf("unexpected model: %q", s.Model)
	}
}

func TestLoadFromInvalidHotkeyFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"hotkey":"shift"}`), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := loadFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Hotkey != DefaultHotkey {
		t.Fatalf("single-modifier hotkey should fall back to default, got %q", s.Hotkey)
	}
}

func TestLoadFromRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := loadFrom(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WHISPERKEY_HOTKEY", "ctrl+alt+d")
	t.Setenv("WHISPERKEY_ENGINE", "ws")
	t.Setenv("WHISPERKEY_MIC_INDEX", "3")
	t.Setenv("WHISPERKEY_CHECK_UPDATES", "off")
	t.Setenv("WHISPERKEY_API_KEY", "from-env")

	s, err := loadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Hotkey != "ctrl+alt+d" {
		t.Fatalf("env hotkey not applied: %q", s.Hotkey)
	}
	if s.Engine != EngineWebsocket {
		t.Fatalf("ws alias should normalize to websocket, got %q", s.Engine)
	}
	if s.MicrophoneIndex != 3 {
		t.Fatalf("env mic index not applied: %d", s.MicrophoneIndex)
	}
	if s.CheckUpdates {
		t.Fatalf("env should disable update checks")
	}
	if s.APIKey != "from-env" {
		t.Fatalf("env API key not applied: %q", s.APIKey)
	}
}

func TestSaveRejectsInvalidHotkey(t *testing.T) {
	s := Defaults()
	s.Hotkey = "notakey+x+y"
	if err := Save(s); err == nil {
		t.Fatalf("expected validation error before any disk write")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	s := Defaults()
	s.Hotkey = "cmd+shift+space"
	s.APIKey = "must-not-persist"
	if err := saveTo(path, s); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(contents) == "" {
		t.Fatalf("empty config written")
	}
	for _, forbidden := range []string{"must-not-persist", "api_key", "APIKey"} {
		if strings.Contains(string(contents), forbidden) {
			t.Fatalf("secret leaked into config file: %s", forbidden)
		}
	}

	loaded, err := loadFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Hotkey != "cmd+shift+space" {
		t.Fatalf("round trip lost hotkey: %q", loaded.Hotkey)
	}
}
