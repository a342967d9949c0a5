package link

import (
	"time"

	"go.uber.org/atomic"

	"pesaje-scale-link/decoder"
	"pesaje-scale-link/devices"
	"pesaje-scale-link/framing"
	"pesaje-scale-link/stability"
	"pesaje-scale-link/types"
	"pesaje-scale-link/utils"
)

const readBufferSize = 256

// session is one open connection. Its reader goroutine is the only code
// that touches the assembler and the estimator, so neither needs a lock.
type session struct {
	m    *Manager
	port devices.Port
	cfg  types.LinkConfig

	asm *framing.Assembler
	est *stability.Estimator

	stopping atomic.Bool
	done     chan struct{}
}

func newSession(m *Manager, port devices.Port, cfg types.LinkConfig) *session {
	return &session{
		m:    m,
		port: port,
		cfg:  cfg,
		asm:  framing.New(cfg.Delimiter, cfg.Timeout),
		est:  stability.New(m.opts.Stability),
		done: make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.done)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.port.Read(buf)
		if s.stopping.Load() {
			return
		}
		now := time.Now()
		if n > 0 {
			s.feed(now, buf[:n])
		}
		if err != nil {
			// fault takes m.mu, which a concurrent stop may hold while
			// waiting on done
			go s.m.fault(s, err)
			return
		}
		if n == 0 {
			for _, f := range s.asm.Expire(now) {
				s.process(f)
			}
		}
	}
}

// stop closes the port and waits for the reader to exit.
func (s *session) stop() error {
	s.stopping.Store(true)
	err := s.port.Close()
	<-s.done
	return err
}

func (s *session) feed(now time.Time, chunk []byte) {
	c := &s.m.counters
	c.bytes.Add(int64(len(chunk)))
	c.chunks.Inc()

	raw, frames := s.asm.Feed(now, chunk)
	s.m.log.Trace().Str("data", utils.FormatDataForLog(chunk)).Msg("chunk")
	s.m.publish(types.Event{Type: types.EventRawData, Timestamp: now, Port: s.cfg.Port, Chunk: &raw})

	for _, f := range frames {
		s.process(f)
	}
}

// process decodes and classifies one frame, then publishes weightData (when
// a value came out) followed by messageProcessed.
func (s *session) process(f types.RawFrame) {
	c := &s.m.counters
	c.frames.Inc()

	res := decoder.Decode(f.Text)
	reading := types.DecodedReading{
		Timestamp: f.Timestamp,
		Frame:     f.Text,
		RawValue:  res.RawValue,
		Pattern:   res.Pattern,
	}

	if !res.OK() {
		c.failures.Inc()
		s.m.log.Debug().Str("frame", f.Text).Str("hex", f.Hex).Msg("frame produced no weight")
		// a garbled frame supersedes the last good weight
		s.m.setReading(reading)
	} else {
		c.decoded.Inc()
		st := s.est.Observe(f.Text, *res.Weight)
		reading.Weight = res.Weight
		reading.IsStable = st.Stable
		reading.Explicit = st.Explicit
		reading.RunCount = st.Count
		if st.Stable {
			c.stable.Inc()
		}

		s.m.setReading(reading)
		r := reading
		s.m.publish(types.Event{Type: types.EventWeightData, Timestamp: f.Timestamp, Port: s.cfg.Port, Reading: &r})
	}

	frame := f
	s.m.publish(types.Event{Type: types.EventMessageProcessed, Timestamp: f.Timestamp, Port: s.cfg.Port, Frame: &frame, Reading: &reading})
}
