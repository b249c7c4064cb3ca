package ports

import (
	"context"

	"whisperkey/internal/domain"
)

// StreamConfig describes how the microphone should be captured.
type StreamConfig struct {
	SampleRate  int
	Channels    int
	DeviceIndex int // -1 selects the system default input device
}

// AudioStream is a live microphone input stream delivering chunks to the
// callback it was opened with.
type AudioStream interface {
	Start() error
	Stop() error
	Close() error
}

// StreamOpener opens microphone input streams. The callback runs on the
// audio-delivery thread and must only do lock-protected bookkeeping.
type StreamOpener interface {
	Open(cfg StreamConfig, onChunk func([]float32)) (AudioStream, error)
}

// CaptureBuffer accumulates microphone audio between a press and a release.
type CaptureBuffer interface {
	Start() error
	Stop() []float32
	Active() bool
}

// ChordMonitor watches system input events for one chord being held.
type ChordMonitor interface {
	Start() error
	Stop()
	Held() bool
}

// Engine is a transcription backend. Load may take arbitrary wall-clock
// time and is called off the event threads.
type Engine interface {
	Load(ctx context.Context) error
	SampleRate() int
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Inserter places text at the cursor of the focused application.
type Inserter interface {
	Insert(ctx context.Context, text string) error
}

// Rules transforms transcripts using deterministic substitutions.
type Rules interface {
	Apply(text string) (string, error)
}

// Notifier raises a desktop notification.
type Notifier interface {
	Notify(title string, body string) error
}

// EventSink receives backend state changes and errors. Implementations are
// external collaborators (indicator UIs, logs); the core never blocks on
// them doing anything beyond bookkeeping.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	FinalTranscript(text string)
	SessionError(code domain.ErrorCode, detail string)
}
