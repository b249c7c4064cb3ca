package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"whisperkey/internal/asr"
	"whisperkey/internal/capture"
	"whisperkey/internal/chord"
	"whisperkey/internal/insert"
	"whisperkey/internal/keymon"
	"whisperkey/internal/notify"
	"whisperkey/internal/ports"
	"whisperkey/internal/settings"
	"whisperkey/internal/textproc"
	"whisperkey/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Engine     ports.Engine
	Settings   settings.Settings
	Opener     *capture.PortAudioOpener
}

// Build wires all runtime dependencies from the loaded settings.
func Build(cfg settings.Settings, events ports.EventSink, log *zap.Logger) (Services, error) {
	if log == nil {
		log = zap.NewNop()
	}

	spec, err := chord.Parse(cfg.Hotkey)
	if err != nil {
		return Services{}, fmt.Errorf("invalid hotkey %q: %w", cfg.Hotkey, err)
	}

	rulesPath, err := settings.RulesPath()
	if err != nil {
		return Services{}, err
	}
	rulesEngine, err := textproc.NewEngine(rulesPath, 10)
	if err != nil {
		return Services{}, err
	}

	engine, err := buildEngine(cfg, log)
	if err != nil {
		return Services{}, err
	}

	opener := capture.NewPortAudioOpener()
	buffer := capture.NewBuffer(opener, ports.StreamConfig{
		SampleRate:  cfg.SampleRate,
		Channels:    1,
		DeviceIndex: cfg.MicrophoneIndex,
	}, log.Named("capture"))

	factory := func(spec chord.Spec, onActivate, onDeactivate func()) ports.ChordMonitor {
		source := keymon.NewHookSource(log.Named("hook"))
		return keymon.NewMonitor(spec, source, onActivate, onDeactivate, log.Named("keymon"))
	}

	inserter := insert.NewInserter(insert.SystemClipboard{}, insert.KeybdPaste{}, log.Named("insert"))

	if events == nil {
		events = notify.NewEventLogger(notify.Desktop{}, log.Named("events"))
	}

	controller := usecase.NewSessionController(
		factory,
		buffer,
		engine,
		inserter,
		rulesEngine,
		events,
		spec,
		usecase.Config{SampleRate: cfg.SampleRate},
		log.Named("session"),
	)

	return Services{
		Controller: controller,
		Engine:     engine,
		Settings:   cfg,
		Opener:     opener,
	}, nil
}

func buildEngine(cfg settings.Settings, log *zap.Logger) (ports.Engine, error) {
	switch cfg.Engine {
	case settings.EngineWebsocket:
		return asr.NewWSEngine(asr.WSConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
		}, log.Named("asr")), nil
	case settings.EngineHTTP:
		return asr.NewHTTPEngine(asr.HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Token:      cfg.APIKey,
			Model:      cfg.Model,
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
		}, &http.Client{Timeout: 60 * time.Second}, log.Named("asr")), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}
