package wedge

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type press struct {
	ctrl, super bool
	keys        []int
}

func fakeDesktop(t *testing.T) (*string, *[]press) {
	t.Helper()
	var copied string
	var presses []press
	writeClipboard = func(s string) error { copied = s; return nil }
	pressKeys = func(ctrl, super bool, keys ...int) error {
		presses = append(presses, press{ctrl: ctrl, super: super, keys: keys})
		return nil
	}
	sleep = func(time.Duration) {}
	t.Cleanup(func() {
		writeClipboard = clipboard.WriteAll
		pressKeys = launchKeys
		sleep = time.Sleep
	})
	return &copied, &presses
}

func TestKeyboardPastesAndConfirms(t *testing.T) {
	copied, presses := fakeDesktop(t)

	require.NoError(t, (&Keyboard{}).Emit("12.50"))
	assert.Equal(t, "12.50", *copied)
	require.Len(t, *presses, 2)

	paste := (*presses)[0]
	assert.Equal(t, []int{keybd_event.VK_V}, paste.keys)
	if runtime.GOOS == "darwin" {
		assert.True(t, paste.super)
	} else {
		assert.True(t, paste.ctrl)
	}
	assert.Equal(t, []int{keybd_event.VK_ENTER}, (*presses)[1].keys)
}

func TestKeyboardStopsOnClipboardError(t *testing.T) {
	_, presses := fakeDesktop(t)
	writeClipboard = func(string) error { return errors.New("no display") }

	err := (&Keyboard{}).Emit("1.00")
	assert.ErrorContains(t, err, "clipboard: no display")
	assert.Empty(t, *presses)
}

func TestClipboardOnlyCopies(t *testing.T) {
	copied, presses := fakeDesktop(t)
	require.NoError(t, Clipboard{}.Emit("3.20"))
	assert.Equal(t, "3.20", *copied)
	assert.Empty(t, *presses)
}

func TestFromMode(t *testing.T) {
	out, err := FromMode("off")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, out)

	out, err = FromMode("keyboard")
	require.NoError(t, err)
	assert.IsType(t, &Keyboard{}, out)

	_, err = FromMode("printer")
	assert.Error(t, err)
}
