package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"whisperkey/internal/bootstrap"
	"whisperkey/internal/domain"
	"whisperkey/internal/notify"
	"whisperkey/internal/settings"
	"whisperkey/internal/updater"
)

// App owns the process lifetime: it assembles the service graph, loads the
// transcription engine in the background, and tears everything down when
// the context is cancelled.
type App struct {
	version string
	log     *zap.Logger
}

func New(version string, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{version: version, log: log}
}

// Run blocks until ctx is cancelled or startup fails.
func (a *App) Run(ctx context.Context, cfg settings.Settings) error {
	events := notify.NewEventLogger(notify.Desktop{}, a.log.Named("events"))

	services, err := bootstrap.Build(cfg, events, a.log)
	if err != nil {
		events.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}
	defer services.Controller.Shutdown()

	if err := services.Controller.Start(); err != nil {
		events.SessionError(domain.ErrorCodeHotkey, err.Error())
		return fmt.Errorf("failed to start chord monitor: %w", err)
	}
	a.log.Info("listening for chord", zap.String("chord", services.Controller.Chord().String()))

	// The engine may pull a model or validate credentials; dictation
	// stays gated until it reports ready.
	events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonModelLoading)
	loadDone := make(chan error, 1)
	go func() {
		loadDone <- services.Engine.Load(ctx)
	}()

	if cfg.CheckUpdates {
		go updater.NewChecker(a.version, a.log.Named("updater")).
			NotifyIfAvailable(ctx, notify.Desktop{})
	}

	for {
		select {
		case err := <-loadDone:
			if err != nil {
				events.SessionError(domain.ErrorCodeStartup, err.Error())
				return fmt.Errorf("transcription engine failed to load: %w", err)
			}
			services.Controller.SetReady(true)
			a.log.Info("transcription engine ready")
			loadDone = nil
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		}
	}
}
