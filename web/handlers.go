package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pesaje-scale-link/broadcast"
	"pesaje-scale-link/link"
	"pesaje-scale-link/types"
	"pesaje-scale-link/utils"
	"pesaje-scale-link/weighing"
)

const (
	operatorHeader = "X-Operator-ID"
	keepAlive      = 15 * time.Second
)

func (s *Server) portsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ports, err := s.link.ListAvailablePorts()
	if err != nil {
		s.log.Error().Err(err).Msg("listing ports")
		http.Error(w, fmt.Sprintf("listing ports: %v", err), http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []types.PortInfo{}
	}
	writeJSON(w, http.StatusOK, ports)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Port     string `json:"port"`
		BaudRate int    `json:"baudRate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.BaudRate < 0 {
		http.Error(w, "baudRate must be positive", http.StatusBadRequest)
		return
	}

	if err := s.link.Connect(r.Context(), types.LinkConfig{Port: req.Port, BaudRate: req.BaudRate}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.link.Status())
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.link.Disconnect(); err != nil {
		s.writeError(w, err)
		return
	}
	st := s.link.Status()
	s.log.Info().Msg("scale " + utils.BoolToString(st.Connected) + " on request")
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.link.Status())
}

func (s *Server) weightHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cw, err := s.link.CurrentWeight()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cw)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "Invalid JSON: enabled is required", http.StatusBadRequest)
		return
	}
	if err := s.link.ToggleMock(r.Context(), *req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.link.Status())
}

func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	operator := strings.TrimSpace(r.Header.Get(operatorHeader))
	if operator == "" {
		http.Error(w, "missing "+operatorHeader, http.StatusUnauthorized)
		return
	}

	var req weighing.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.OperatorID = operator

	rec, err := s.saver.Save(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// copyHandler puts the current reading on the clipboard.
func (s *Server) copyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cw, err := s.link.CurrentWeight()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cw.Weight == nil {
		s.writeError(w, weighing.ErrNoReading)
		return
	}

	text := fmt.Sprintf("%.2f", *cw.Weight)
	if err := s.clip.Emit(text); err != nil {
		s.log.Error().Err(err).Msg("copy to clipboard")
		http.Error(w, fmt.Sprintf("copy to clipboard: %v", err), http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("weight", text).Bool("stable", cw.IsStable).Msg("weight copied to clipboard")
	writeJSON(w, http.StatusOK, map[string]any{"copied": text, "isStable": cw.IsStable})
}

func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sub, err := s.link.Subscribe()
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer s.link.Unsubscribe(sub)

	s.log.Debug().Uint64("subscriber", sub.ID()).Str("remote", r.RemoteAddr).Msg("event stream opened")
	serveEvents(w, r, sub)
	s.log.Debug().Uint64("subscriber", sub.ID()).Msg("event stream closed")
}

func (s *Server) logsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logs := s.logs()
	sub, err := logs.Attach()
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer logs.Detach(sub)

	serveEvents(w, r, sub)
}

// serveEvents writes every item of sub as an SSE data line until the client
// goes away or the subscription is dropped.
func serveEvents[T any](w http.ResponseWriter, r *http.Request, sub *broadcast.Subscription[T]) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	send := func(v T) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flush()
		return true
	}
	flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case v := <-sub.C():
			if !send(v) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flush()
		case <-sub.Done():
			// deliver what was queued before the drop
			for {
				select {
				case v := <-sub.C():
					if !send(v) {
						return
					}
				default:
					return
				}
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		s.log.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, link.ErrInvalidPort), errors.Is(err, weighing.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrNotConnected),
		errors.Is(err, weighing.ErrUnstableWeight),
		errors.Is(err, weighing.ErrNoReading),
		errors.Is(err, weighing.ErrDuplicateSequence):
		return http.StatusConflict
	case errors.Is(err, link.ErrPortUnavailable),
		errors.Is(err, broadcast.ErrTooManySubscribers),
		errors.Is(err, broadcast.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
