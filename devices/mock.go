package devices

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"pesaje-scale-link/decoder"
)

const MockPortName = "mock"

var ErrPortClosed = errors.New("port closed")

type MockOptions struct {
	Interval    time.Duration
	ReadTimeout time.Duration
	Delimiter   string
	Seed        uint64
}

// MockPort is a synthetic scale. It speaks the same wire encoding as the
// real device (reversed digits, delimiter terminated) so everything
// downstream of the port runs unchanged.
type MockPort struct {
	opts MockOptions
	rng  *rand.Rand

	mu      sync.Mutex
	timeout time.Duration
	next    time.Time
	pending []float64
	closed  chan struct{}
	once    sync.Once
}

func NewMockPort(opts MockOptions) *MockPort {
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 50 * time.Millisecond
	}
	if opts.Delimiter == "" {
		opts.Delimiter = "="
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &MockPort{
		opts:    opts,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		timeout: opts.ReadTimeout,
		next:    time.Now().Add(opts.Interval),
		closed:  make(chan struct{}),
	}
}

// Read waits at most the read timeout for the next synthetic frame.
func (m *MockPort) Read(b []byte) (int, error) {
	m.mu.Lock()
	wait := time.Until(m.next)
	timeout := m.timeout
	m.mu.Unlock()

	if wait > timeout {
		if !m.sleep(timeout) {
			return 0, ErrPortClosed
		}
		return 0, nil
	}
	if !m.sleep(wait) {
		return 0, ErrPortClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = time.Now().Add(m.opts.Interval)
	return copy(b, m.frame()), nil
}

func (m *MockPort) Write(b []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, ErrPortClosed
	default:
		return len(b), nil
	}
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = t
	return nil
}

func (m *MockPort) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *MockPort) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-m.closed:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.closed:
		return false
	case <-t.C:
		return true
	}
}

// frame encodes the next weight the way the scale puts it on the wire.
func (m *MockPort) frame() []byte {
	if len(m.pending) == 0 {
		m.pending = m.settlingSequence()
	}
	w := m.pending[0]
	m.pending = m.pending[1:]
	return []byte(EncodeWeight(w) + m.opts.Delimiter)
}

// settlingSequence is a load being placed: a few readings swinging around
// the target, then the target held long enough to settle.
func (m *MockPort) settlingSequence() []float64 {
	target := float64(int((m.rng.Float64()*29+1)*100)) / 100
	seq := make([]float64, 0, 12)
	for i := 0; i < 4; i++ {
		swing := (m.rng.Float64()*2 - 1) * 0.5
		seq = append(seq, float64(int((target+swing)*100))/100)
	}
	for i := 0; i < 6; i++ {
		seq = append(seq, target)
	}
	for i := 0; i < 2; i++ {
		seq = append(seq, 0)
	}
	return seq
}

// EncodeWeight renders w as the device does: a zero padded display value
// with its digits reversed.
func EncodeWeight(w float64) string {
	display := fmt.Sprintf("%07.3f", w)
	wire, ok := decoder.Reverse(display)
	if !ok {
		return display
	}
	return wire
}
