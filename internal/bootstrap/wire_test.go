package bootstrap

import (
	"testing"

	"whisperkey/internal/asr"
	"whisperkey/internal/settings"
)

func TestBuildRejectsInvalidHotkey(t *testing.T) {
	cfg := settings.Defaults()
	cfg.Hotkey = "shift"

	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatalf("expected hotkey validation error")
	}
}

func TestBuildSelectsHTTPEngine(t *testing.T) {
	cfg := settings.Defaults()
	cfg.Endpoint = "https://example.com/v1/audio/transcriptions"

	services, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Controller.Shutdown()

	if _, ok := services.Engine.(*asr.HTTPEngine); !ok {
		t.Fatalf("expected HTTP engine, got %T", services.Engine)
	}
}

func TestBuildSelectsWebsocketEngine(t *testing.T) {
	cfg := settings.Defaults()
	cfg.Engine = settings.EngineWebsocket
	cfg.APIKey = "key"

	services, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Controller.Shutdown()

	if _, ok := services.Engine.(*asr.WSEngine); !ok {
		t.Fatalf("expected websocket engine, got %T", services.Engine)
	}
}
