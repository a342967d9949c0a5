package framing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesaje-scale-link/types"
)

func texts(frames []types.RawFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Text)
	}
	return out
}

func TestDelimiterThenPauseYieldsTwoFrames(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	var all []types.RawFrame
	_, frames := a.Feed(t0, []byte("012.500="))
	all = append(all, frames...)
	_, frames = a.Feed(t0.Add(150*time.Millisecond), []byte("bc="))
	all = append(all, frames...)
	_, frames = a.Feed(t0.Add(160*time.Millisecond), []byte(" "))
	all = append(all, frames...)
	all = append(all, a.Expire(t0.Add(500*time.Millisecond))...)

	assert.Equal(t, []string{"012.500", "bc"}, texts(all))
	assert.Equal(t, types.FlushDelimiter, all[0].Reason)
	assert.Equal(t, types.FlushDelimiter, all[1].Reason)
}

func TestTimeoutFlushRunsBeforeMerge(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	_, frames := a.Feed(t0, []byte("00.5"))
	require.Empty(t, frames)

	_, frames = a.Feed(t0.Add(250*time.Millisecond), []byte("10.0="))
	require.Len(t, frames, 2)
	assert.Equal(t, "00.5", frames[0].Text)
	assert.Equal(t, types.FlushTimeout, frames[0].Reason)
	assert.Equal(t, "10.0", frames[1].Text)
	assert.Equal(t, types.FlushDelimiter, frames[1].Reason)
	assert.Equal(t, "", a.Pending())
}

func TestNoTimeoutFlushWithinWindow(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	a.Feed(t0, []byte("01"))
	_, frames := a.Feed(t0.Add(40*time.Millisecond), []byte("2.5"))
	assert.Empty(t, frames)
	assert.Equal(t, "012.5", a.Pending())
}

func TestSplitsEveryDelimiter(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	_, frames := a.Feed(time.Now(), []byte("1.0=2.0==3.0=4."))
	assert.Equal(t, []string{"1.0", "2.0", "3.0"}, texts(frames))
	assert.Equal(t, "4.", a.Pending())
}

func TestExpireDoesNotDoubleEmit(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	a.Feed(t0, []byte("77.1"))
	assert.Empty(t, a.Expire(t0.Add(50*time.Millisecond)))

	frames := a.Expire(t0.Add(200 * time.Millisecond))
	require.Len(t, frames, 1)
	assert.Equal(t, "77.1", frames[0].Text)

	assert.Empty(t, a.Expire(t0.Add(400*time.Millisecond)))
	_, frames = a.Feed(t0.Add(600*time.Millisecond), []byte("="))
	assert.Empty(t, frames)
}

func TestRawChunkDiagnostics(t *testing.T) {
	a := New("=", 100*time.Millisecond)
	t0 := time.Unix(1700000000, 0)

	raw, _ := a.Feed(t0, []byte("0.1"))
	assert.Nil(t, raw.GapMs)
	assert.Equal(t, "30 2E 31", raw.Hex)
	assert.Equal(t, []int{48, 46, 49}, raw.ASCII)
	assert.Equal(t, 3, raw.Length)
	assert.Equal(t, "0.1", raw.Buffer)

	raw, frames := a.Feed(t0.Add(30*time.Millisecond), []byte("="))
	require.NotNil(t, raw.GapMs)
	assert.Equal(t, int64(30), *raw.GapMs)
	assert.Equal(t, "", raw.Buffer)
	require.Len(t, frames, 1)
	assert.Nil(t, frames[0].SincePrevMs)

	_, frames = a.Feed(t0.Add(80*time.Millisecond), []byte("0.2="))
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].SincePrevMs)
	assert.Equal(t, int64(50), *frames[0].SincePrevMs)
}

func TestResetClearsState(t *testing.T) {
	a := New("", 0)
	a.Feed(time.Now(), []byte("12"))
	a.Reset()
	assert.Equal(t, "", a.Pending())
	raw, _ := a.Feed(time.Now(), []byte("3"))
	assert.Nil(t, raw.GapMs)
}
