package keymon

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"whisperkey/internal/chord"
)

var (
	// ErrPermissionDenied means the OS refused to install a global event
	// tap. The process stays functional; the caller decides what to do.
	ErrPermissionDenied = errors.New("input monitoring permission denied")
	// ErrTapCreation covers every other event tap setup failure.
	ErrTapCreation = errors.New("failed to install input event tap")
)

// EventKind classifies raw input events.
type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
	FlagsChanged
)

// RawEvent is one system input event, already translated to chord terms.
// Key is empty for FlagsChanged events; Mods always carries the full
// modifier mask asserted at the time of the event.
type RawEvent struct {
	Kind EventKind
	Key  chord.Key
	Mods chord.Modifier
}

// EventSource delivers system-wide input events. Open installs the tap and
// returns the event channel; Close tears the tap down, after which the
// channel is closed.
type EventSource interface {
	Open() (<-chan RawEvent, error)
	Close() error
}

type lifecycle int

const (
	stateStopped lifecycle = iota
	stateStarting
	stateRunning
	stateStopping
)

type edge int

const (
	edgeActivate edge = iota
	edgeDeactivate
)

const (
	pollInterval  = 100 * time.Millisecond
	stopTimeout   = time.Second
	dispatchDepth = 16
)

// Monitor watches an EventSource for one chord being held and fires
// OnActivate/OnDeactivate on a dedicated dispatcher goroutine, never on the
// event-delivery goroutine. The two callbacks strictly alternate and are
// never invoked concurrently.
type Monitor struct {
	source       EventSource
	onActivate   func()
	onDeactivate func()
	log          *zap.Logger

	mu   sync.Mutex // guards spec, mods, held
	spec chord.Spec
	mods chord.Modifier
	held bool

	lifeMu       sync.Mutex
	state        lifecycle
	cancel       chan struct{}
	serveDone    chan struct{}
	dispatchQ    chan edge
	dispatchDone chan struct{}
}

func NewMonitor(spec chord.Spec, source EventSource, onActivate, onDeactivate func(), log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		source:       source,
		onActivate:   onActivate,
		onDeactivate: onDeactivate,
		log:          log,
		spec:         spec,
	}
}

// Start installs the event tap and begins servicing it. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.state != stateStopped {
		return nil
	}
	m.state = stateStarting

	events, err := m.source.Open()
	if err != nil {
		m.state = stateStopped
		return err
	}

	m.cancel = make(chan struct{})
	m.serveDone = make(chan struct{})
	m.dispatchQ = make(chan edge, dispatchDepth)
	m.dispatchDone = make(chan struct{})

	go m.dispatch()
	go m.serve(events)

	m.state = stateRunning
	m.log.Debug("chord monitor running", zap.String("chord", m.Chord().String()))
	return nil
}

// Stop disables the tap, signals cancellation, and joins the service
// goroutine with a bounded timeout. On timeout the goroutine is abandoned;
// the leak is logged, not fatal. Safe to call on a stopped monitor.
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.state != stateRunning {
		return
	}
	m.state = stateStopping

	if err := m.source.Close(); err != nil {
		m.log.Warn("event source close failed", zap.Error(err))
	}
	close(m.cancel)

	select {
	case <-m.serveDone:
		close(m.dispatchQ)
		select {
		case <-m.dispatchDone:
		case <-time.After(stopTimeout):
			m.log.Warn("edge dispatcher did not drain; abandoning")
		}
	case <-time.After(stopTimeout):
		m.log.Warn("event service goroutine did not exit; abandoning")
	}

	m.mu.Lock()
	m.held = false
	m.mods = 0
	m.mu.Unlock()

	m.state = stateStopped
}

// SetChord swaps the target chord atomically with respect to event
// handling. A chord.Spec is valid by construction; if the old chord
// was held mid-swap a deactivation edge is emitted so edges keep
// alternating.
func (m *Monitor) SetChord(spec chord.Spec) {
	m.mu.Lock()
	m.spec = spec
	wasHeld := m.held
	m.held = false
	m.mu.Unlock()

	if wasHeld {
		m.enqueue(edgeDeactivate)
	}
}

// Chord returns the currently active chord spec.
func (m *Monitor) Chord() chord.Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec
}

// Held reports whether the chord is currently held down.
func (m *Monitor) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *Monitor) serve(events <-chan RawEvent) {
	defer close(m.serveDone)

	// The ticker bounds how long cancellation can go unobserved even if
	// the source stops delivering events without closing its channel.
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if e, fire := m.apply(ev); fire {
				m.enqueue(e)
			}
		case <-m.cancel:
			return
		case <-ticker.C:
		}
	}
}

// apply updates held-key state from one event and decides whether a chord
// edge occurred. Edge detection and the held latch share one lock so a
// second activation can never fire while the first is still held.
func (m *Monitor) apply(ev RawEvent) (edge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case FlagsChanged:
		m.mods = ev.Mods
		if !m.spec.ModifierOnly() {
			return 0, false
		}
		// Modifier-only chords require an exact match, not a superset,
		// so a hand mid-flight toward a bigger combination never
		// triggers a recording.
		if !m.held && ev.Mods == m.spec.Mods {
			m.held = true
			return edgeActivate, true
		}
		if m.held && ev.Mods != m.spec.Mods {
			m.held = false
			return edgeDeactivate, true
		}
	case KeyDown:
		if m.spec.ModifierOnly() || ev.Key != m.spec.Key {
			return 0, false
		}
		// Keyed chords tolerate extra modifiers: superset match.
		if !m.held && ev.Mods.Contains(m.spec.Mods) {
			m.held = true
			return edgeActivate, true
		}
	case KeyUp:
		if m.spec.ModifierOnly() || ev.Key != m.spec.Key {
			return 0, false
		}
		if m.held {
			m.held = false
			return edgeDeactivate, true
		}
	}
	return 0, false
}

// enqueue hands an edge to the dispatcher without ever blocking the event
// goroutine. The queue is bounded; overflow is logged and dropped.
func (m *Monitor) enqueue(e edge) {
	select {
	case m.dispatchQ <- e:
	default:
		m.log.Error("edge dispatch queue full; dropping edge", zap.Int("edge", int(e)))
	}
}

func (m *Monitor) dispatch() {
	defer close(m.dispatchDone)
	for e := range m.dispatchQ {
		m.invoke(e)
	}
}

func (m *Monitor) invoke(e edge) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("chord callback panicked", zap.Any("panic", r))
		}
	}()

	switch e {
	case edgeActivate:
		if m.onActivate != nil {
			m.onActivate()
		}
	case edgeDeactivate:
		if m.onDeactivate != nil {
			m.onDeactivate()
		}
	}
}
