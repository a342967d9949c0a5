package link

import (
	"errors"
	"sync"
	"time"

	"pesaje-scale-link/devices"
	"pesaje-scale-link/types"
)

var errUnplugged = errors.New("read /dev/ttyUSB0: input/output error")

// fakePort is a scripted serial device. Chunks pushed with send are
// returned by Read one at a time; an idle Read returns (0, nil) after the
// read timeout like the real drivers do.
type fakePort struct {
	name   string
	chunks chan []byte
	fail   chan error
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	timeout    time.Duration
	timeoutErr error
}

func newFakePort(name string) *fakePort {
	return &fakePort{
		name:   name,
		chunks: make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) send(s string) { p.chunks <- []byte(s) }

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, devices.ErrPortClosed
	case err := <-p.fail:
		return 0, err
	case c := <-p.chunks:
		return copy(b, c), nil
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timeoutErr != nil {
		return p.timeoutErr
	}
	p.timeout = t
	return nil
}

func (p *fakePort) readTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// fakeOpener hands out fakePorts and remembers them by name.
type fakeOpener struct {
	mu    sync.Mutex
	ports map[string]*fakePort
	all   []*fakePort
	fail  map[string]error
	// timeoutFail makes SetReadTimeout fail on the named port
	timeoutFail map[string]error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{ports: map[string]*fakePort{}, fail: map[string]error{}, timeoutFail: map[string]error{}}
}

func (o *fakeOpener) open(cfg types.LinkConfig) (devices.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.fail[cfg.Port]; ok {
		return nil, err
	}
	p := newFakePort(cfg.Port)
	p.timeoutErr = o.timeoutFail[cfg.Port]
	o.ports[cfg.Port] = p
	o.all = append(o.all, p)
	return p, nil
}

func (o *fakeOpener) port(name string) *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[name]
}

func (o *fakeOpener) openPorts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, p := range o.all {
		if !p.isClosed() {
			out = append(out, p.name)
		}
	}
	return out
}
