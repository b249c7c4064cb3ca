package capture

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"whisperkey/internal/ports"
)

// ErrDeviceUnavailable means the input stream could not be opened. A failed
// Start never leaves the buffer reporting active.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Buffer accumulates microphone chunks between Start and Stop. One lock
// guards the recording flag, the chunk sequence, and the stream handle; the
// audio-delivery goroutine only ever appends, the controller only ever
// calls Start/Stop.
type Buffer struct {
	opener ports.StreamOpener
	cfg    ports.StreamConfig
	log    *zap.Logger

	mu        sync.Mutex
	recording bool
	chunks    [][]float32
	stream    ports.AudioStream
}

func NewBuffer(opener ports.StreamOpener, cfg ports.StreamConfig, log *zap.Logger) *Buffer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Buffer{opener: opener, cfg: cfg, log: log}
}

// Start opens the input stream and begins accumulating chunks. Calling
// Start while already recording is a no-op: the in-progress buffer is kept
// and no second stream is opened.
func (b *Buffer) Start() error {
	b.mu.Lock()
	if b.recording {
		b.mu.Unlock()
		return nil
	}
	b.chunks = nil
	b.recording = true
	b.mu.Unlock()

	stream, err := b.opener.Open(b.cfg, b.append)
	if err != nil {
		b.rollback()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		b.rollback()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	b.mu.Lock()
	b.stream = stream
	b.mu.Unlock()
	return nil
}

// Stop closes the stream and returns everything captured since Start as
// one flat mono sample slice. Stopping an idle buffer returns an empty
// slice; it is never an error.
func (b *Buffer) Stop() []float32 {
	b.mu.Lock()
	wasRecording := b.recording
	b.recording = false
	stream := b.stream
	b.stream = nil
	b.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			b.log.Warn("input stream stop failed", zap.Error(err))
		}
		if err := stream.Close(); err != nil {
			b.log.Warn("input stream close failed", zap.Error(err))
		}
	}

	if !wasRecording {
		return nil
	}

	b.mu.Lock()
	chunks := b.chunks
	b.chunks = nil
	b.mu.Unlock()

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	flat := make([]float32, 0, total)
	for _, chunk := range chunks {
		flat = append(flat, chunk...)
	}
	return flat
}

// Active reports whether a capture is currently open.
func (b *Buffer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

// append runs on the audio-delivery goroutine. It copies the chunk because
// the driver reuses its buffer between callbacks.
func (b *Buffer) append(chunk []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return
	}
	copied := make([]float32, len(chunk))
	copy(copied, chunk)
	b.chunks = append(b.chunks, copied)
}

func (b *Buffer) rollback() {
	b.mu.Lock()
	b.recording = false
	b.chunks = nil
	b.mu.Unlock()
}
