// Package link owns the serial connection to the scale. A Manager is the
// single point of truth for whether the scale is attached; it runs one
// reader goroutine per connection that frames, decodes and classifies the
// byte stream and publishes the results to the event broadcaster.
package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"pesaje-scale-link/broadcast"
	"pesaje-scale-link/devices"
	"pesaje-scale-link/stability"
	"pesaje-scale-link/types"
)

var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrPortUnavailable = errors.New("port unavailable")
	ErrNotConnected    = errors.New("scale not connected")
)

type Options struct {
	Open      devices.Opener
	ListPorts func() ([]types.PortInfo, error)
	Events    *broadcast.Broadcaster[types.Event]

	// Defaults fills the zero fields of a connect request.
	Defaults  types.LinkConfig
	Stability stability.Config

	// ConnectTimeout abandons an open that takes longer. Zero waits for the driver.
	ConnectTimeout time.Duration
	Mock           bool
	MockInterval   time.Duration

	Logger *zerolog.Logger
}

type counters struct {
	bytes, chunks, frames, decoded, failures, stable atomic.Int64
}

type Manager struct {
	opts   Options
	log    zerolog.Logger
	events *broadcast.Broadcaster[types.Event]

	// mu serializes connect, disconnect and mock switching.
	mu      sync.Mutex
	sess    *session
	realCfg *types.LinkConfig

	stateMu sync.RWMutex
	state   types.ConnectionState
	cfg     types.LinkConfig
	lastErr string

	readingMu sync.RWMutex
	latest    *types.DecodedReading

	mock     atomic.Bool
	counters counters
}

func New(opts Options) *Manager {
	if opts.Open == nil {
		opts.Open = devices.Open
	}
	if opts.ListPorts == nil {
		opts.ListPorts = devices.ListPorts
	}
	if opts.Events == nil {
		opts.Events = broadcast.New[types.Event](broadcast.Options{Logger: opts.Logger})
	}
	if opts.Stability == (stability.Config{}) {
		opts.Stability = stability.DefaultConfig()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	m := &Manager{
		opts:   opts,
		log:    log,
		events: opts.Events,
		state:  types.ConnectionState{State: types.Disconnected},
	}
	m.mock.Store(opts.Mock)
	return m
}

func (m *Manager) Events() *broadcast.Broadcaster[types.Event] {
	return m.events
}

func (m *Manager) Tolerance() float64 {
	return m.opts.Stability.Tolerance
}

// ListAvailablePorts enumerates candidate devices. In mock mode the
// synthetic port is listed first.
func (m *Manager) ListAvailablePorts() ([]types.PortInfo, error) {
	ports, err := m.opts.ListPorts()
	if err != nil {
		return nil, err
	}
	if m.mock.Load() {
		ports = append([]types.PortInfo{{Path: devices.MockPortName, Manufacturer: "synthetic"}}, ports...)
	}
	return ports, nil
}

// Connect opens the link described by cfg. An existing link is torn down
// first, so at most one connection exists at any time.
func (m *Manager) Connect(ctx context.Context, cfg types.LinkConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, cfg)
}

func (m *Manager) connectLocked(ctx context.Context, cfg types.LinkConfig) error {
	cfg = m.withDefaults(cfg)
	if m.mock.Load() {
		cfg.Driver = types.DriverMock
		cfg.Port = devices.MockPortName
	}
	if cfg.Port == "" {
		return fmt.Errorf("%w: no port given", ErrInvalidPort)
	}

	if m.sess != nil {
		m.log.Info().Str("port", m.cfg.Port).Msg("reconnect requested, closing current link")
		m.teardownLocked()
	}

	m.setState(types.ConnectionState{State: types.Connecting}, &cfg)
	m.log.Info().Str("port", cfg.Port).Int("baud", cfg.BaudRate).Str("driver", string(cfg.Driver)).Msg("opening scale link")

	port, err := m.open(ctx, cfg)
	if err == nil {
		if terr := port.SetReadTimeout(cfg.ReadTimeout); terr != nil {
			port.Close()
			port, err = nil, fmt.Errorf("set read timeout: %w", terr)
		}
	}
	if err != nil {
		m.log.Error().Err(err).Str("port", cfg.Port).Msg("scale link open failed")
		m.fail(cfg.Port, err.Error())
		m.setState(types.ConnectionState{State: types.Disconnected}, nil)
		return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, cfg.Port, err)
	}

	if cfg.Driver != types.DriverMock {
		rc := cfg
		m.realCfg = &rc
	}
	m.clearReading()
	m.stateMu.Lock()
	m.lastErr = ""
	m.stateMu.Unlock()

	m.sess = newSession(m, port, cfg)
	m.setState(types.ConnectionState{State: types.Connected}, nil)
	m.publish(types.Event{Type: types.EventConnected, Port: cfg.Port, Message: fmt.Sprintf("connected to %s at %d baud", cfg.Port, cfg.BaudRate)})
	m.log.Info().Str("port", cfg.Port).Msg("scale connected")

	go m.sess.run()
	return nil
}

// Disconnect closes the link. It succeeds trivially when nothing is open.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		m.setState(types.ConnectionState{State: types.Disconnected}, nil)
		return nil
	}
	m.teardownLocked()
	return nil
}

// teardownLocked stops the reader, closes the port and discards the
// rolling stability state. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	sess := m.sess
	m.sess = nil
	if err := sess.stop(); err != nil {
		m.log.Warn().Err(err).Str("port", sess.cfg.Port).Msg("closing port")
	}
	m.clearReading()
	m.setState(types.ConnectionState{State: types.Disconnected}, nil)
	m.publish(types.Event{Type: types.EventDisconnected, Port: sess.cfg.Port, Message: "disconnected from " + sess.cfg.Port})
	m.log.Info().Str("port", sess.cfg.Port).Msg("scale disconnected")
}

// fault handles a hardware error reported by a session's reader. It runs
// after the reader goroutine has exited.
func (m *Manager) fault(sess *session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess {
		return
	}
	m.log.Error().Err(err).Str("port", sess.cfg.Port).Msg("scale link failed")
	m.fail(sess.cfg.Port, err.Error())
	m.teardownLocked()
}

func (m *Manager) fail(port, reason string) {
	m.stateMu.Lock()
	m.lastErr = reason
	m.stateMu.Unlock()
	m.setState(types.ConnectionState{State: types.Errored, Reason: reason}, nil)
	m.publish(types.Event{Type: types.EventError, Port: port, Message: reason})
}

// ToggleMock switches between the real device and the synthetic scale. A
// live link is reopened in the new mode.
func (m *Manager) ToggleMock(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mock.Load() == enabled {
		return nil
	}
	wasConnected := m.sess != nil
	if wasConnected {
		m.teardownLocked()
	}
	m.mock.Store(enabled)
	m.log.Info().Bool("mock", enabled).Msg("mock mode switched")

	if !wasConnected {
		return nil
	}
	if enabled {
		return m.connectLocked(ctx, types.LinkConfig{})
	}
	if m.realCfg != nil {
		return m.connectLocked(ctx, *m.realCfg)
	}
	return nil
}

func (m *Manager) MockMode() bool {
	return m.mock.Load()
}

func (m *Manager) State() types.ConnectionState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Manager) Status() types.Status {
	m.stateMu.RLock()
	st := types.Status{
		Connected: m.state.State == types.Connected,
		State:     m.state.String(),
		Port:      m.cfg.Port,
		BaudRate:  m.cfg.BaudRate,
		LastError: m.lastErr,
	}
	m.stateMu.RUnlock()

	st.MockMode = m.mock.Load()
	st.Subscribers = m.events.Len()
	st.Counters = m.Counters()
	return st
}

func (m *Manager) Counters() types.Counters {
	return types.Counters{
		Bytes:          m.counters.bytes.Load(),
		Chunks:         m.counters.chunks.Load(),
		Frames:         m.counters.frames.Load(),
		Decoded:        m.counters.decoded.Load(),
		DecodeFailures: m.counters.failures.Load(),
		StableReadings: m.counters.stable.Load(),
	}
}

// CurrentWeight returns the latest decoded reading. A connected scale that
// has sent nothing yet yields a nil weight, not an error.
func (m *Manager) CurrentWeight() (types.CurrentWeight, error) {
	if m.State().State != types.Connected {
		return types.CurrentWeight{}, ErrNotConnected
	}
	r, ok := m.Reading()
	if !ok {
		return types.CurrentWeight{}, nil
	}
	ts := r.Timestamp
	return types.CurrentWeight{Weight: r.Weight, IsStable: r.IsStable, Timestamp: &ts}, nil
}

// Reading returns a copy of the latest decoded reading.
func (m *Manager) Reading() (types.DecodedReading, bool) {
	m.readingMu.RLock()
	defer m.readingMu.RUnlock()
	if m.latest == nil {
		return types.DecodedReading{}, false
	}
	r := *m.latest
	if r.Weight != nil {
		w := *r.Weight
		r.Weight = &w
	}
	return r, true
}

func (m *Manager) Subscribe() (*broadcast.Subscription[types.Event], error) {
	return m.events.Attach()
}

func (m *Manager) Unsubscribe(sub *broadcast.Subscription[types.Event]) {
	m.events.Detach(sub)
}

// Close disconnects; the broadcaster is left to its owner.
func (m *Manager) Close() error {
	return m.Disconnect()
}

func (m *Manager) open(ctx context.Context, cfg types.LinkConfig) (devices.Port, error) {
	if cfg.Driver == types.DriverMock {
		return devices.NewMockPort(devices.MockOptions{
			Interval:    m.opts.MockInterval,
			ReadTimeout: cfg.ReadTimeout,
			Delimiter:   cfg.Delimiter,
		}), nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	type result struct {
		port devices.Port
		err  error
	}
	resultChan := make(chan result, 1)
	go func() {
		p, err := m.opts.Open(cfg)
		resultChan <- result{port: p, err: err}
	}()

	select {
	case r := <-resultChan:
		return r.port, r.err
	case <-ctx.Done():
		// the driver may still finish; close whatever it hands back
		go func() {
			if r := <-resultChan; r.port != nil {
				r.port.Close()
			}
		}()
		return nil, fmt.Errorf("open %s: %w", cfg.Port, ctx.Err())
	}
}

func (m *Manager) withDefaults(cfg types.LinkConfig) types.LinkConfig {
	d := m.opts.Defaults
	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = d.BaudRate
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 9600
	}
	if cfg.DataBits <= 0 {
		cfg.DataBits = d.DataBits
	}
	if cfg.DataBits <= 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits <= 0 {
		cfg.StopBits = d.StopBits
	}
	if cfg.StopBits <= 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = d.Parity
	}
	if cfg.Parity == "" {
		cfg.Parity = types.ParityNone
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = d.Delimiter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = d.ReadTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}
	if cfg.Driver == "" {
		cfg.Driver = d.Driver
	}
	if cfg.Driver == "" {
		cfg.Driver = types.DriverBugst
	}
	return cfg
}

func (m *Manager) setState(st types.ConnectionState, cfg *types.LinkConfig) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = st
	if cfg != nil {
		m.cfg = *cfg
	}
}

func (m *Manager) setReading(r types.DecodedReading) {
	m.readingMu.Lock()
	defer m.readingMu.Unlock()
	m.latest = &r
}

func (m *Manager) clearReading() {
	m.readingMu.Lock()
	defer m.readingMu.Unlock()
	m.latest = nil
}

func (m *Manager) publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.events.Publish(ev)
}
