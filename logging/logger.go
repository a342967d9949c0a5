package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pesaje-scale-link/broadcast"
	"pesaje-scale-link/types"
)

const streamHistory = 200

var (
	streamMu sync.RWMutex
	stream   = broadcast.New[types.LogMessage](broadcast.Options{History: streamHistory})
)

// Init configures the global zerolog logger. pretty selects the console writer.
func Init(level string, pretty bool) zerolog.Logger {
	return InitWithWriter(level, pretty, os.Stderr)
}

func InitWithWriter(level string, pretty bool, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	sys := For("system")
	sys.Info().Str("level", lvl.String()).Msg("logging initialised")
	return log.Logger
}

// For returns a component logger. Its messages are also pushed to the log
// stream tagged with the component name.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger().Hook(streamHook{component: component})
}

// Stream is the fan-out behind /logs/stream.
func Stream() *broadcast.Broadcaster[types.LogMessage] {
	streamMu.RLock()
	defer streamMu.RUnlock()
	return stream
}

// ResetStream swaps in a fresh stream; used on shutdown and in tests.
func ResetStream() {
	streamMu.Lock()
	defer streamMu.Unlock()
	stream.Close()
	stream = broadcast.New[types.LogMessage](broadcast.Options{History: streamHistory})
}

type streamHook struct {
	component string
}

func (h streamHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if msg == "" || level < zerolog.GlobalLevel() {
		return
	}
	Stream().Publish(types.LogMessage{
		Time:    time.Now().Format("15:04:05"),
		Level:   level.String(),
		Message: msg,
		Type:    h.component,
	})
}
