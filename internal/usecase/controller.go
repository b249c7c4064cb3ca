package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whisperkey/internal/chord"
	"whisperkey/internal/domain"
	"whisperkey/internal/ports"
)

// ErrRecoveryFailed means a chord update was rolled back but the previous
// monitor could not be restored either: hotkey capture is fully disabled.
var ErrRecoveryFailed = errors.New("failed to restore previous chord monitor")

// MonitorFactory constructs a chord monitor wired to the given edge
// callbacks. The controller rebuilds the monitor on every chord update so
// a botched start can fall back to the previous spec.
type MonitorFactory func(spec chord.Spec, onActivate, onDeactivate func()) ports.ChordMonitor

// Config controls session behavior.
type Config struct {
	SampleRate        int
	GuardDelay        time.Duration
	TranscribeTimeout time.Duration
	Workers           int
	QueueDepth        int
}

// SessionController converts chord press/release edges into start/stop
// capture actions and hands finished captures to the transcription and
// text-insertion collaborators. One mutex guards {ready flag, current
// chord, monitor handle}; the capture buffer carries its own lock.
type SessionController struct {
	factory  MonitorFactory
	buffer   ports.CaptureBuffer
	engine   ports.Engine
	inserter ports.Inserter
	rules    ports.Rules
	events   ports.EventSink
	cfg      Config
	log      *zap.Logger
	pool     *workerPool

	mu       sync.Mutex
	spec     chord.Spec
	monitor  ports.ChordMonitor
	ready    bool
	down     bool
	disabled bool // set when chord recovery failed

	updateMu sync.Mutex // serializes UpdateChord/Shutdown against each other
}

func NewSessionController(
	factory MonitorFactory,
	buffer ports.CaptureBuffer,
	engine ports.Engine,
	inserter ports.Inserter,
	rules ports.Rules,
	events ports.EventSink,
	spec chord.Spec,
	cfg Config,
	log *zap.Logger,
) *SessionController {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.GuardDelay <= 0 {
		cfg.GuardDelay = 150 * time.Millisecond
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &SessionController{
		factory:  factory,
		buffer:   buffer,
		engine:   engine,
		inserter: inserter,
		rules:    rules,
		events:   events,
		cfg:      cfg,
		log:      log,
		pool:     newWorkerPool(cfg.Workers, cfg.QueueDepth, log),
		spec:     spec,
	}
	c.monitor = factory(spec, c.handleActivate, c.handleDeactivate)
	return c
}

// Start begins watching for the chord.
func (c *SessionController) Start() error {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	return monitor.Start()
}

// SetReady gates recording on the transcription engine having a model
// loaded. Chord presses before readiness are dropped, not errors.
func (c *SessionController) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()

	if ready {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonModelReady)
	}
}

// Ready reports whether activations currently start captures.
func (c *SessionController) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Chord returns the active chord spec.
func (c *SessionController) Chord() chord.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// Status returns the current session status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	spec := c.spec
	ready := c.ready
	c.mu.Unlock()

	state := domain.SessionStateIdle
	active := c.buffer.Active()
	if active {
		state = domain.SessionStateRecording
	}
	return domain.Status{State: state, Active: active, Ready: ready, Chord: spec.String()}
}

// handleActivate runs on the monitor's dispatcher goroutine when the chord
// becomes held.
func (c *SessionController) handleActivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.down {
		return
	}
	if !c.ready {
		c.log.Debug("chord pressed before engine ready; ignoring")
		return
	}
	if c.buffer.Active() {
		return
	}

	if err := c.buffer.Start(); err != nil {
		c.log.Error("failed to start capture", zap.Error(err))
		c.events.SessionError(domain.ErrorCodeAudioStart, err.Error())
		return
	}
	c.log.Info("recording started", zap.String("chord", c.spec.String()))
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
}

// handleDeactivate runs on the monitor's dispatcher goroutine when the
// chord is released. The capture is drained under the lock; transcription
// and insertion happen on the worker pool.
func (c *SessionController) handleDeactivate() {
	c.mu.Lock()
	if !c.buffer.Active() {
		c.mu.Unlock()
		return
	}
	samples := c.buffer.Stop()
	c.log.Info("recording stopped", zap.Int("samples", len(samples)))
	c.mu.Unlock()

	if len(samples) == 0 {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonNoAudio)
		return
	}

	c.events.SessionStateChanged(domain.SessionStateTranscribing, domain.SessionReasonRecordingStopped)
	if !c.pool.Submit(func() { c.finalize(samples) }) {
		c.log.Error("worker queue full; discarding capture", zap.Int("samples", len(samples)))
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	}
}

// finalize transcribes one finished capture and inserts the text. All
// collaborator failures stop here; nothing propagates back toward the
// event-delivery goroutines.
func (c *SessionController) finalize(samples []float32) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TranscribeTimeout)
	defer cancel()

	text, err := c.engine.Transcribe(ctx, samples, c.cfg.SampleRate)
	if err != nil {
		c.log.Error("transcription failed", zap.Error(err))
		c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonTranscriptionFailed)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonNoTranscript)
		return
	}

	if c.rules != nil {
		transformed, err := c.rules.Apply(text)
		if err != nil {
			c.log.Warn("substitution rules failed; inserting raw transcript", zap.Error(err))
		} else {
			text = transformed
		}
	}

	// Wait out the tail of the chord release so the synthesized paste
	// chord does not collide with keys the user is still lifting.
	time.Sleep(c.cfg.GuardDelay)

	if err := c.inserter.Insert(ctx, text); err != nil {
		c.log.Error("text insertion failed", zap.Error(err))
		c.events.SessionError(domain.ErrorCodeInsertion, err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonInsertFailed)
		return
	}

	c.log.Info("transcript inserted", zap.Int("chars", len(text)))
	c.events.FinalTranscript(text)
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonTextInserted)
}

// UpdateChord validates the new chord, then swaps in a freshly-built
// monitor. Validation failure leaves the current monitor untouched and
// running. If the new monitor fails to start the previous one is restored;
// if the restore fails too, hotkey capture is disabled and the error wraps
// ErrRecoveryFailed.
func (c *SessionController) UpdateChord(text string) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	newSpec, err := chord.Parse(text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return errors.New("controller is shut down")
	}
	oldSpec := c.spec
	oldMonitor := c.monitor
	c.mu.Unlock()

	if newSpec == oldSpec {
		return nil
	}

	oldMonitor.Stop()

	newMonitor := c.factory(newSpec, c.handleActivate, c.handleDeactivate)
	if startErr := newMonitor.Start(); startErr != nil {
		restored := c.factory(oldSpec, c.handleActivate, c.handleDeactivate)
		if restoreErr := restored.Start(); restoreErr != nil {
			c.mu.Lock()
			c.disabled = true
			c.monitor = restored
			c.mu.Unlock()
			c.log.Error("chord update failed and previous chord could not be restored; hotkey capture disabled",
				zap.String("new", newSpec.String()),
				zap.String("previous", oldSpec.String()),
				zap.NamedError("start_error", startErr),
				zap.NamedError("restore_error", restoreErr),
			)
			c.events.SessionError(domain.ErrorCodeRecovery, restoreErr.Error())
			c.events.SessionStateChanged(domain.SessionStateError, domain.SessionReasonChordDisabled)
			return fmt.Errorf("%w: %v (after: %v)", ErrRecoveryFailed, restoreErr, startErr)
		}
		c.mu.Lock()
		c.monitor = restored
		c.mu.Unlock()
		c.log.Warn("chord update failed; previous chord restored",
			zap.String("chord", oldSpec.String()), zap.Error(startErr))
		return startErr
	}

	c.mu.Lock()
	c.spec = newSpec
	c.monitor = newMonitor
	c.mu.Unlock()

	c.log.Info("chord updated", zap.String("chord", newSpec.String()))
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonChordUpdated)
	return nil
}

// Shutdown stops the monitor, force-stops any in-progress capture
// discarding the audio, and drains the worker pool. Safe to call more than
// once and from a signal handler.
func (c *SessionController) Shutdown() {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return
	}
	c.down = true
	monitor := c.monitor
	c.mu.Unlock()

	monitor.Stop()

	if c.buffer.Active() {
		discarded := c.buffer.Stop()
		c.log.Info("discarded in-progress capture on shutdown", zap.Int("samples", len(discarded)))
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	}

	c.pool.Close(time.Second)
}
