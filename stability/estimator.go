// Package stability decides whether the displayed weight has settled.
//
// Cheap scales rarely send a usable stability flag, so the estimator falls
// back to counting consecutive readings that stay within tolerance of the
// last stable weight. When the frame does carry the manufacturer's own ST
// token that verdict wins.
package stability

import (
	"math"
	"regexp"
)

const (
	DefaultWindow    = 5
	DefaultTolerance = 0.02
	DefaultRunLength = 3

	epsilon = 1e-9
)

var stableToken = regexp.MustCompile(`\bST\b`)

type Config struct {
	Window    int
	Tolerance float64
	RunLength int
}

func DefaultConfig() Config {
	return Config{Window: DefaultWindow, Tolerance: DefaultTolerance, RunLength: DefaultRunLength}
}

type Result struct {
	Stable     bool
	Explicit   bool
	Count      int
	LastStable *float64
}

// Estimator keeps the rolling state of one connection. It is owned by the
// link's reader goroutine and is not safe for concurrent use.
type Estimator struct {
	cfg        Config
	history    []float64
	lastStable *float64
	count      int
}

func New(cfg Config) *Estimator {
	if cfg.Window < 1 {
		cfg.Window = DefaultWindow
	}
	if cfg.RunLength < 1 {
		cfg.RunLength = DefaultRunLength
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Estimator{cfg: cfg, history: make([]float64, 0, cfg.Window)}
}

func (e *Estimator) Config() Config {
	return e.cfg
}

// HasStableToken reports whether the frame text carries a standalone ST.
func HasStableToken(text string) bool {
	return stableToken.MatchString(text)
}

// Observe classifies weight w decoded from frame text.
//
// The run counter resets relative to lastStable, not the previous reading,
// so a slow drift never accumulates a run.
func (e *Estimator) Observe(text string, w float64) Result {
	if HasStableToken(text) {
		e.lastStable = &w
		return Result{Stable: true, Explicit: true, Count: e.count, LastStable: e.copyLastStable()}
	}

	e.history = append(e.history, w)
	if len(e.history) > e.cfg.Window {
		e.history = e.history[len(e.history)-e.cfg.Window:]
	}

	if e.lastStable != nil && math.Abs(w-*e.lastStable) <= e.cfg.Tolerance+epsilon {
		e.count++
	} else {
		e.count = 1
		e.lastStable = &w
	}

	return Result{
		Stable:     e.count >= e.cfg.RunLength,
		Count:      e.count,
		LastStable: e.copyLastStable(),
	}
}

// History returns a copy of the rolling window, oldest first.
func (e *Estimator) History() []float64 {
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Estimator) Reset() {
	e.history = e.history[:0]
	e.lastStable = nil
	e.count = 0
}

func (e *Estimator) copyLastStable() *float64 {
	if e.lastStable == nil {
		return nil
	}
	v := *e.lastStable
	return &v
}
