package devices

import (
	"errors"
	"fmt"
	"io"
	"time"

	jacobsa "github.com/jacobsa/go-serial/serial"
	tarm "github.com/tarm/serial"
	"go.bug.st/serial"

	"pesaje-scale-link/types"
)

// Port is what the link reader needs from an open serial device. Read must
// return (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port for a link configuration.
type Opener func(cfg types.LinkConfig) (Port, error)

// allow tests to override the native open calls
var (
	openBugst   = func(name string, mode *serial.Mode) (serial.Port, error) { return serial.Open(name, mode) }
	openTarm    = tarm.OpenPort
	openJacobsa = jacobsa.Open
)

// Open dispatches on cfg.Driver. The mock driver is handled by the link manager.
func Open(cfg types.LinkConfig) (Port, error) {
	switch cfg.Driver {
	case types.DriverBugst, "":
		return openBugstPort(cfg)
	case types.DriverTarm:
		return openTarmPort(cfg)
	case types.DriverJacobsa:
		return openJacobsaPort(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

func openBugstPort(cfg types.LinkConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch cfg.Parity {
	case types.ParityEven:
		mode.Parity = serial.EvenParity
	case types.ParityOdd:
		mode.Parity = serial.OddParity
	}

	conn, err := openBugst(cfg.Port, mode)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadTimeout(readTimeout(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return conn, nil
}

// tarmPort adapts *tarm.Port. The timeout is fixed at open time and a
// timed-out read surfaces as io.EOF from the underlying file.
type tarmPort struct {
	*tarm.Port
	timeout time.Duration
}

func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (p *tarmPort) SetReadTimeout(t time.Duration) error {
	if t != p.timeout {
		return fmt.Errorf("tarm driver: read timeout is fixed at %s", p.timeout)
	}
	return nil
}

func openTarmPort(cfg types.LinkConfig) (Port, error) {
	c := &tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: readTimeout(cfg),
		Size:        byte(cfg.DataBits),
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	}
	if cfg.StopBits == 2 {
		c.StopBits = tarm.Stop2
	}
	switch cfg.Parity {
	case types.ParityEven:
		c.Parity = tarm.ParityEven
	case types.ParityOdd:
		c.Parity = tarm.ParityOdd
	}

	p, err := openTarm(c)
	if err != nil {
		return nil, err
	}
	return &tarmPort{Port: p, timeout: c.ReadTimeout}, nil
}

// jacobsaPort adapts the io.ReadWriteCloser from jacobsa/go-serial, which
// only knows an inter-character timeout in 100 ms steps.
type jacobsaPort struct {
	io.ReadWriteCloser
	timeout time.Duration
}

func (p *jacobsaPort) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (p *jacobsaPort) SetReadTimeout(t time.Duration) error {
	if roundTimeout(t) != p.timeout {
		return fmt.Errorf("jacobsa driver: read timeout is fixed at %s", p.timeout)
	}
	return nil
}

func openJacobsaPort(cfg types.LinkConfig) (Port, error) {
	timeout := roundTimeout(readTimeout(cfg))
	opts := jacobsa.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              uint(cfg.BaudRate),
		DataBits:              uint(cfg.DataBits),
		StopBits:              uint(cfg.StopBits),
		ParityMode:            jacobsa.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(timeout / time.Millisecond),
	}
	switch cfg.Parity {
	case types.ParityEven:
		opts.ParityMode = jacobsa.PARITY_EVEN
	case types.ParityOdd:
		opts.ParityMode = jacobsa.PARITY_ODD
	}

	rwc, err := openJacobsa(opts)
	if err != nil {
		return nil, err
	}
	return &jacobsaPort{ReadWriteCloser: rwc, timeout: timeout}, nil
}

func readTimeout(cfg types.LinkConfig) time.Duration {
	if cfg.ReadTimeout > 0 {
		return cfg.ReadTimeout
	}
	return 50 * time.Millisecond
}

func roundTimeout(t time.Duration) time.Duration {
	if t <= 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return ((t + 99*time.Millisecond) / (100 * time.Millisecond)) * (100 * time.Millisecond)
}
