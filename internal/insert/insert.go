package insert

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"go.uber.org/zap"
)

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// PasteSynthesizer emits the platform paste chord into the focused
// application.
type PasteSynthesizer interface {
	Paste() error
}

// Inserter places text at the cursor by staging it on the clipboard,
// synthesizing a paste, and restoring the previous clipboard contents.
type Inserter struct {
	clip         Clipboard
	paster       PasteSynthesizer
	settleDelay  time.Duration
	restoreDelay time.Duration
	log          *zap.Logger
}

// Option tweaks Inserter timing. Used by tests to avoid real sleeps.
type Option func(*Inserter)

func WithDelays(settle, restore time.Duration) Option {
	return func(i *Inserter) {
		i.settleDelay = settle
		i.restoreDelay = restore
	}
}

func NewInserter(clip Clipboard, paster PasteSynthesizer, log *zap.Logger, opts ...Option) *Inserter {
	if log == nil {
		log = zap.NewNop()
	}
	i := &Inserter{
		clip:         clip,
		paster:       paster,
		settleDelay:  50 * time.Millisecond,
		restoreDelay: 100 * time.Millisecond,
		log:          log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Insert pastes text into the focused application. The previous clipboard
// contents are restored afterwards; a failed read beforehand skips the
// restore rather than failing the insert.
func (i *Inserter) Insert(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	previous, readErr := i.clip.Read()
	if readErr != nil {
		i.log.Debug("could not read clipboard; skipping restore", zap.Error(readErr))
	}

	if err := i.clip.Write(text); err != nil {
		return fmt.Errorf("failed to stage text on clipboard: %w", err)
	}

	if err := sleepCtx(ctx, i.settleDelay); err != nil {
		return err
	}

	if err := i.paster.Paste(); err != nil {
		return fmt.Errorf("failed to synthesize paste: %w", err)
	}

	if readErr == nil {
		if err := sleepCtx(ctx, i.restoreDelay); err != nil {
			return err
		}
		if err := i.clip.Write(previous); err != nil {
			i.log.Warn("failed to restore clipboard", zap.Error(err))
		}
	}

	i.log.Debug("text inserted", zap.Int("chars", len(text)))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SystemClipboard is the real clipboard.
type SystemClipboard struct{}

func (SystemClipboard) Read() (string, error)   { return clipboard.ReadAll() }
func (SystemClipboard) Write(text string) error { return clipboard.WriteAll(text) }

// KeybdPaste synthesizes cmd+V on macOS and ctrl+V elsewhere.
type KeybdPaste struct{}

func (KeybdPaste) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
