// Package httpapi exposes the synchronized director state to consumers over
// HTTP: a JSON state document, an SSE change stream, and command endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pkt.systems/directorsync/core"
	"pkt.systems/directorsync/internal/collab"
	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/schema"
)

const maxRequestBytes = 1 << 20

// CollabSource reports the collaborator surface status.
type CollabSource interface {
	Status() collab.Status
}

// StateResponse is the /api/state document.
type StateResponse struct {
	schema.View
	SnapshotAge string    `json:"snapshot_age,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CommandResponse reports the outcome of a command endpoint. Local state is
// updated even when Sent is false.
type CommandResponse struct {
	Sent  bool             `json:"sent"`
	Error string           `json:"error,omitempty"`
	Locks schema.LockState `json:"locks"`
	Value string           `json:"value,omitempty"`
}

// Server serves the consumer bridge.
type Server struct {
	cfg      Config
	service  core.Service
	hub      *Hub
	collab   CollabSource
	now      func() time.Time
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithCollab exposes the collaborator status at /api/collab and
// /api/streamers.
func WithCollab(src CollabSource) Option {
	return func(s *Server) { s.collab = src }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, hub *Hub, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		hub:      hub,
		now:      time.Now,
		basePath: normalizeBasePath(cfg.BasePath),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/streamers", s.handleStreamers)
	mux.HandleFunc("/api/collab", s.handleCollab)
	mux.HandleFunc("/api/streamer", s.handleSetStreamer)
	mux.HandleFunc("/api/context", s.handleSetContext)
	mux.HandleFunc("/api/locks/streamer", s.handleLock(s.service.SetStreamerLock))
	mux.HandleFunc("/api/locks/context", s.handleLock(s.service.SetContextLock))
	mux.HandleFunc("/api/suggestion/accept", s.handleAccept)
	mux.HandleFunc("/api/suggestion/dismiss", s.handleDismiss)
	mux.HandleFunc("/api/event", s.handleEvent)

	return mountAt(s.basePath, withRequestLogging(mux))
}

func (s *Server) buildState() StateResponse {
	now := s.now()
	view := s.service.View()
	resp := StateResponse{View: view, GeneratedAt: now}
	if view.HasSnapshot && !view.SnapshotAt.IsZero() {
		resp.SnapshotAge = humanize.RelTime(view.SnapshotAt, now, "ago", "from now")
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.buildState())
}

func (s *Server) handleStreamers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	streamers := schema.DefaultStreamers()
	if s.collab != nil {
		streamers = s.collab.Status().Streamers
	}
	writeJSON(w, http.StatusOK, schema.StreamersConfig{Streamers: streamers})
}

func (s *Server) handleCollab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.collab == nil {
		writeError(w, http.StatusNotFound, errors.New("collaborator surface not configured"))
		return
	}
	writeJSON(w, http.StatusOK, s.collab.Status())
}

func (s *Server) handleSetStreamer(w http.ResponseWriter, r *http.Request) {
	var payload schema.SetStreamerCommand
	if !s.decodeCommand(w, r, &payload) {
		return
	}
	s.writeCommand(w, r, s.service.SetStreamer(r.Context(), payload.StreamerID), "")
}

func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var payload schema.SetManualContextCommand
	if !s.decodeCommand(w, r, &payload) {
		return
	}
	s.writeCommand(w, r, s.service.SetManualContext(r.Context(), payload.Context), "")
}

func (s *Server) handleLock(set func(ctx context.Context, locked bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload schema.SetLockCommand
		if !s.decodeCommand(w, r, &payload) {
			return
		}
		s.writeCommand(w, r, set(r.Context(), payload.Locked), "")
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	value, err := s.service.AcceptSuggestion(r.Context())
	if errors.Is(err, schema.ErrNoPendingSuggestion) {
		writeError(w, http.StatusConflict, err)
		return
	}
	s.writeCommand(w, r, err, value)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dismissed := s.service.DismissSuggestion(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"dismissed": dismissed})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var payload schema.InjectEventCommand
	if !s.decodeCommand(w, r, &payload) {
		return
	}
	s.writeCommand(w, r, s.service.SendEvent(r.Context(), payload), "")
}

func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBytes), target); err != nil {
		logx.Ctx(r.Context()).Warn("http command decode failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) writeCommand(w http.ResponseWriter, r *http.Request, err error, value string) {
	resp := CommandResponse{Sent: err == nil, Locks: s.service.Locks(), Value: value}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = err.Error()
	status := commandStatus(err)
	if status == http.StatusBadRequest {
		writeError(w, status, err)
		return
	}
	logx.Ctx(r.Context()).Warn("http command not sent", "path", r.URL.Path, "err", err)
	writeJSON(w, status, resp)
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrNotConnected), errors.Is(err, schema.ErrSendQueueFull), errors.Is(err, schema.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	ch, unsubscribe, seq := s.hub.Subscribe()
	defer unsubscribe()

	var replay []StreamEvent
	complete := false
	if lastID > 0 {
		replay, complete = s.hub.Replay(lastID, seq)
	}
	if !complete {
		// New client, or history no longer covers the gap: seed full state.
		state := s.buildState().View
		_ = writeSSEvent(w, StreamEvent{
			Seq:       seq,
			Type:      EventTypeState,
			State:     &state,
			Timestamp: s.now(),
		})
		replay = nil
	}
	for _, event := range replay {
		_ = writeSSEvent(w, event)
	}
	flusher.Flush()

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", len(replay), "seq", seq)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
