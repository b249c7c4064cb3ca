package chord

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	ErrEmptyChord            = errors.New("chord is empty")
	ErrUnknownToken          = errors.New("unknown key token")
	ErrMultipleKeys          = errors.New("chord has more than one non-modifier key")
	ErrNoModifier            = errors.New("chord needs at least one modifier")
	ErrInsufficientModifiers = errors.New("modifier-only chord needs at least 2 modifiers")
)

// Modifier is a bitmask of modifier keys.
type Modifier uint8

const (
	ModCmd Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModShift
)

// Count returns how many modifier flags are set.
func (m Modifier) Count() int {
	return bits.OnesCount8(uint8(m))
}

// Contains reports whether every flag in required is set in m.
func (m Modifier) Contains(required Modifier) bool {
	return m&required == required
}

// Key identifies a single non-modifier key by its canonical token.
type Key string

var modifierTokens = map[string]Modifier{
	"cmd":     ModCmd,
	"command": ModCmd,
	"super":   ModCmd,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"shift":   ModShift,
}

var keyTokens = map[string]Key{
	"space":     "space",
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"escape":    "escape",
	"esc":       "escape",
	"backspace": "backspace",
	"delete":    "delete",
	"up":        "up",
	"down":      "down",
	"left":      "left",
	"right":     "right",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pagedown":  "pagedown",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyTokens[string(c)] = Key(c)
	}
	for c := '0'; c <= '9'; c++ {
		keyTokens[string(c)] = Key(c)
	}
	for n := 1; n <= 12; n++ {
		tok := fmt.Sprintf("f%d", n)
		keyTokens[tok] = Key(tok)
	}
}

// Keys returns every canonical non-modifier key token the parser accepts.
func Keys() []Key {
	seen := make(map[Key]struct{}, len(keyTokens))
	out := make([]Key, 0, len(keyTokens))
	for _, key := range keyTokens {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Spec is an immutable, validated chord: required modifiers plus an
// optional single non-modifier key. A zero Key means modifier-only.
type Spec struct {
	Mods Modifier
	Key  Key
}

// Parse turns a chord string like "cmd+shift+space" or "alt+shift" into a
// Spec. Tokens are case-insensitive and separated by '+'.
func Parse(text string) (Spec, error) {
	if strings.TrimSpace(text) == "" {
		return Spec{}, ErrEmptyChord
	}

	var spec Spec
	for _, raw := range strings.Split(text, "+") {
		token := strings.ToLower(strings.TrimSpace(raw))
		if token == "" {
			return Spec{}, fmt.Errorf("%w: blank token in %q", ErrUnknownToken, text)
		}
		if mod, ok := modifierTokens[token]; ok {
			spec.Mods |= mod
			continue
		}
		key, ok := keyTokens[token]
		if !ok {
			return Spec{}, fmt.Errorf("%w: %q", ErrUnknownToken, token)
		}
		if spec.Key != "" {
			return Spec{}, fmt.Errorf("%w: %q and %q", ErrMultipleKeys, spec.Key, key)
		}
		spec.Key = key
	}

	if spec.Mods == 0 {
		return Spec{}, ErrNoModifier
	}
	if spec.Key == "" && spec.Mods.Count() < 2 {
		return Spec{}, ErrInsufficientModifiers
	}
	return spec, nil
}

// Validate runs the same checks as Parse without keeping the result. It
// exists so a settings surface can reject bad input before tearing down a
// working monitor.
func Validate(text string) error {
	_, err := Parse(text)
	return err
}

// ModifierOnly reports whether the chord has no non-modifier key.
func (s Spec) ModifierOnly() bool {
	return s.Key == ""
}

// String renders the canonical form: modifiers in cmd, ctrl, alt, shift
// order, then the key token. The output re-parses to an identical Spec.
func (s Spec) String() string {
	parts := make([]string, 0, 5)
	if s.Mods&ModCmd != 0 {
		parts = append(parts, "cmd")
	}
	if s.Mods&ModCtrl != 0 {
		parts = append(parts, "ctrl")
	}
	if s.Mods&ModAlt != 0 {
		parts = append(parts, "alt")
	}
	if s.Mods&ModShift != 0 {
		parts = append(parts, "shift")
	}
	if s.Key != "" {
		parts = append(parts, string(s.Key))
	}
	return strings.Join(parts, "+")
}
