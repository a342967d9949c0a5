// Package wedge types a confirmed weight into whatever desktop application
// has focus, the way a keyboard-wedge scale would.
package wedge

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

type Output interface {
	Emit(text string) error
}

// allow tests to replace the desktop side effects
var (
	writeClipboard = clipboard.WriteAll
	pressKeys      = launchKeys
	sleep          = time.Sleep
)

type Nop struct{}

func (Nop) Emit(string) error { return nil }

// Clipboard only copies the text.
type Clipboard struct{}

func (Clipboard) Emit(text string) error {
	if err := writeClipboard(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

// Keyboard copies the text, pastes it with Ctrl+V (Cmd+V on macOS) and
// presses Enter.
type Keyboard struct {
	// Delay before the paste; the target window needs it.
	Delay time.Duration

	mu sync.Mutex
}

func (k *Keyboard) Emit(text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := writeClipboard(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}

	delay := k.Delay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	sleep(delay)

	super := runtime.GOOS == "darwin"
	if err := pressKeys(!super, super, keybd_event.VK_V); err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	sleep(100 * time.Millisecond)
	if err := pressKeys(false, false, keybd_event.VK_ENTER); err != nil {
		return fmt.Errorf("enter: %w", err)
	}
	return nil
}

func launchKeys(ctrl, super bool, keys ...int) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.HasCTRL(ctrl)
	kb.HasSuper(super)
	kb.SetKeys(keys...)
	return kb.Launching()
}

// FromMode maps the -wedge flag to an Output.
func FromMode(mode string) (Output, error) {
	switch mode {
	case "", "off":
		return Nop{}, nil
	case "clipboard":
		return Clipboard{}, nil
	case "keyboard":
		return &Keyboard{}, nil
	default:
		return nil, fmt.Errorf("unknown wedge mode %q", mode)
	}
}
