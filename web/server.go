package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pesaje-scale-link/broadcast"
	"pesaje-scale-link/types"
	"pesaje-scale-link/weighing"
	"pesaje-scale-link/wedge"
)

// Link is what the routes need from the link manager.
type Link interface {
	ListAvailablePorts() ([]types.PortInfo, error)
	Connect(ctx context.Context, cfg types.LinkConfig) error
	Disconnect() error
	Status() types.Status
	CurrentWeight() (types.CurrentWeight, error)
	ToggleMock(ctx context.Context, enabled bool) error
	Subscribe() (*broadcast.Subscription[types.Event], error)
	Unsubscribe(sub *broadcast.Subscription[types.Event])
}

type Saver interface {
	Save(ctx context.Context, req weighing.SaveRequest) (types.WeighingRecord, error)
}

type Server struct {
	link  Link
	saver Saver
	// clip receives POST /scale/weight/copy
	clip wedge.Output
	logs func() *broadcast.Broadcaster[types.LogMessage]
	log  zerolog.Logger
}

func NewServer(link Link, saver Saver, clip wedge.Output, logs func() *broadcast.Broadcaster[types.LogMessage], logger zerolog.Logger) *Server {
	if clip == nil {
		clip = wedge.Clipboard{}
	}
	return &Server{link: link, saver: saver, clip: clip, logs: logs, log: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/scale/ports", s.portsHandler)
	mux.HandleFunc("/scale/connect", s.connectHandler)
	mux.HandleFunc("/scale/disconnect", s.disconnectHandler)
	mux.HandleFunc("/scale/status", s.statusHandler)
	mux.HandleFunc("/scale/weight", s.weightHandler)
	mux.HandleFunc("/scale/mock", s.mockHandler)
	mux.HandleFunc("/scale/stream", s.streamHandler)
	mux.HandleFunc("/scale/weight/save", s.saveHandler)
	mux.HandleFunc("/scale/weight/copy", s.copyHandler)
	mux.HandleFunc("/logs/stream", s.logsStreamHandler)
	return mux
}

// StartServer serves until ctx is cancelled, then drains open requests.
func StartServer(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("web server listening on http://localhost" + addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
