package keymon

import (
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"whisperkey/internal/chord"
)

// rawcode lookup tables built from the gohook keycode map. Left/right
// variants collapse to one flag, mirroring how chord specs are written.
var (
	modifierRawcodes = map[uint16]chord.Modifier{}
	keyRawcodes      = map[uint16]chord.Key{}
)

func init() {
	modifierTokens := map[string]chord.Modifier{
		"cmd": chord.ModCmd, "lcmd": chord.ModCmd, "rcmd": chord.ModCmd,
		"ctrl": chord.ModCtrl, "lctrl": chord.ModCtrl, "rctrl": chord.ModCtrl,
		"alt": chord.ModAlt, "lalt": chord.ModAlt, "ralt": chord.ModAlt,
		"shift": chord.ModShift, "lshift": chord.ModShift, "rshift": chord.ModShift,
	}
	for token, mod := range modifierTokens {
		if code, ok := hook.Keycode[token]; ok {
			modifierRawcodes[code] = mod
		}
	}
	for _, key := range chord.Keys() {
		if code, ok := hook.Keycode[string(key)]; ok {
			keyRawcodes[code] = key
		}
	}
}

// HookSource adapts the robotn/gohook global keyboard hook to EventSource.
// gohook owns a process-wide hook, so at most one HookSource can be open at
// a time; Open on an already-open source fails.
type HookSource struct {
	log *zap.Logger

	mu   sync.Mutex
	open bool
	out  chan RawEvent
	done chan struct{}
}

func NewHookSource(log *zap.Logger) *HookSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &HookSource{log: log}
}

func (s *HookSource) Open() (<-chan RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil, fmt.Errorf("%w: hook already installed", ErrTapCreation)
	}

	raw := hook.Start()
	if raw == nil {
		return nil, ErrTapCreation
	}

	s.out = make(chan RawEvent, 64)
	s.done = make(chan struct{})
	s.open = true

	go s.translate(raw, s.out, s.done)
	return s.out, nil
}

func (s *HookSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false
	hook.End()
	close(s.done)
	return nil
}

// translate turns gohook events into chord-level RawEvents, accumulating
// the modifier mask from modifier key transitions. Auto-repeat (KeyHold)
// events are dropped so a held chord produces exactly one key-down.
func (s *HookSource) translate(raw chan hook.Event, out chan<- RawEvent, done <-chan struct{}) {
	defer close(out)

	var mods chord.Modifier
	for {
		select {
		case <-done:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			switch ev.Kind {
			case hook.KeyDown:
				if mod, isMod := modifierRawcodes[ev.Rawcode]; isMod {
					mods |= mod
					s.emit(out, done, RawEvent{Kind: FlagsChanged, Mods: mods})
					continue
				}
				if key, known := keyRawcodes[ev.Rawcode]; known {
					s.emit(out, done, RawEvent{Kind: KeyDown, Key: key, Mods: mods})
				}
			case hook.KeyUp:
				if mod, isMod := modifierRawcodes[ev.Rawcode]; isMod {
					mods &^= mod
					s.emit(out, done, RawEvent{Kind: FlagsChanged, Mods: mods})
					continue
				}
				if key, known := keyRawcodes[ev.Rawcode]; known {
					s.emit(out, done, RawEvent{Kind: KeyUp, Key: key, Mods: mods})
				}
			}
		}
	}
}

func (s *HookSource) emit(out chan<- RawEvent, done <-chan struct{}, ev RawEvent) {
	select {
	case out <- ev:
	case <-done:
	default:
		s.log.Warn("input event buffer full; dropping event")
	}
}
