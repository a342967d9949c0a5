// Package framing cuts the scale's byte stream into frames. The device has
// no reliable message boundary, so a frame ends either at the delimiter or
// when the line has been quiet for longer than the inactivity timeout.
package framing

import (
	"strings"
	"time"

	"pesaje-scale-link/types"
	"pesaje-scale-link/utils"
)

const (
	DefaultDelimiter = "="
	DefaultTimeout   = 100 * time.Millisecond
)

// Assembler is not safe for concurrent use; the link's reader goroutine owns it.
type Assembler struct {
	delimiter string
	timeout   time.Duration

	buf         strings.Builder
	lastArrival time.Time
	lastFrame   time.Time
}

func New(delimiter string, timeout time.Duration) *Assembler {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Assembler{delimiter: delimiter, timeout: timeout}
}

// Feed merges one chunk into the buffer and returns the diagnostic view of
// the chunk together with every frame it completed.
func (a *Assembler) Feed(now time.Time, chunk []byte) (types.RawChunk, []types.RawFrame) {
	var frames []types.RawFrame

	var gap *int64
	if !a.lastArrival.IsZero() {
		g := now.Sub(a.lastArrival)
		ms := g.Milliseconds()
		gap = &ms

		// Evaluated before the new bytes are merged in.
		if g > a.timeout && a.buf.Len() > 0 {
			frames = a.emit(frames, now, a.buf.String(), types.FlushTimeout)
			a.buf.Reset()
		}
	}
	a.lastArrival = now

	a.buf.WriteString(string(chunk))

	if content := a.buf.String(); strings.Contains(content, a.delimiter) {
		pieces := strings.Split(content, a.delimiter)
		for _, piece := range pieces[:len(pieces)-1] {
			frames = a.emit(frames, now, piece, types.FlushDelimiter)
		}
		a.buf.Reset()
		a.buf.WriteString(pieces[len(pieces)-1])
	}

	raw := types.RawChunk{
		Timestamp: now,
		Hex:       utils.HexString(chunk),
		ASCII:     utils.ASCIICodes(chunk),
		Text:      utils.Printable(chunk),
		Length:    len(chunk),
		GapMs:     gap,
		Buffer:    a.buf.String(),
	}
	return raw, frames
}

// Expire flushes a buffer that has been idle for longer than the timeout.
// The reader calls it when a read returns no data.
func (a *Assembler) Expire(now time.Time) []types.RawFrame {
	if a.buf.Len() == 0 || a.lastArrival.IsZero() || now.Sub(a.lastArrival) <= a.timeout {
		return nil
	}
	frames := a.emit(nil, now, a.buf.String(), types.FlushTimeout)
	a.buf.Reset()
	return frames
}

// Pending returns the bytes accumulated but not yet flushed.
func (a *Assembler) Pending() string {
	return a.buf.String()
}

func (a *Assembler) Reset() {
	a.buf.Reset()
	a.lastArrival = time.Time{}
	a.lastFrame = time.Time{}
}

func (a *Assembler) emit(frames []types.RawFrame, now time.Time, piece string, reason types.FlushReason) []types.RawFrame {
	text := strings.TrimSpace(piece)
	if text == "" {
		return frames
	}

	var since *int64
	if !a.lastFrame.IsZero() {
		ms := now.Sub(a.lastFrame).Milliseconds()
		since = &ms
	}
	a.lastFrame = now

	return append(frames, types.RawFrame{
		Timestamp:     now,
		Bytes:         []byte(piece),
		Text:          text,
		Hex:           utils.HexString([]byte(piece)),
		Length:        len(piece),
		SincePrevMs:   since,
		BufferAtFlush: a.buf.String(),
		Reason:        reason,
	})
}
