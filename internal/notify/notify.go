package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"whisperkey/internal/domain"
	"whisperkey/internal/ports"
)

// Desktop raises OS notifications.
type Desktop struct{}

func (Desktop) Notify(title, body string) error {
	return beeep.Notify(title, body, "")
}

// EventLogger is the default event sink: it mirrors session transitions
// into the log and raises a desktop notification on errors the user would
// otherwise only discover by dictating into nothing.
type EventLogger struct {
	notifier ports.Notifier
	log      *zap.Logger
}

func NewEventLogger(notifier ports.Notifier, log *zap.Logger) *EventLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLogger{notifier: notifier, log: log}
}

func (e *EventLogger) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	e.log.Debug("session state changed",
		zap.String("state", string(state)),
		zap.String("reason", string(reason)),
	)
}

func (e *EventLogger) FinalTranscript(text string) {
	e.log.Info("final transcript", zap.Int("chars", len(text)))
}

func (e *EventLogger) SessionError(code domain.ErrorCode, detail string) {
	e.log.Error("session error", zap.String("code", string(code)), zap.String("detail", detail))
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify("WhisperKey", detail); err != nil {
		e.log.Warn("notification failed", zap.Error(err))
	}
}
