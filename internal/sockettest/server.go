// Package sockettest runs an in-process Socket.IO backend for tests.
package sockettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options tunes the fake backend.
type Options struct {
	// Namespace is the namespace the server accepts. Defaults to "/".
	Namespace string
	// BadOpens makes the first N connections send a malformed open packet.
	BadOpens int
	// RejectConnects makes the first N namespace joins fail with connect_error.
	RejectConnects int
	// PingInterval and PingTimeout are advertised in the open packet (ms).
	PingInterval int
	PingTimeout  int
}

// Server is a fake backend. Only the newest connection is addressable.
type Server struct {
	t    testing.TB
	http *httptest.Server
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	accepted  int
	opens     int
	joins     int
	received  []string
	connected chan int
	frames    chan string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer starts a backend and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 25000
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 20000
	}
	s := &Server{
		t:         t,
		opts:      opts,
		connected: make(chan int, 64),
		frames:    make(chan string, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/", s.serve)
	s.http = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// URL returns the http base URL of the backend.
func (s *Server) URL() string {
	return s.http.URL
}

// Close drops the active connection and stops the server.
func (s *Server) Close() {
	s.Drop()
	s.http.Close()
}

// Accepted returns how many connections completed the namespace join.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Opens returns how many websocket upgrades the server has seen.
func (s *Server) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// WaitConnected blocks until the n-th connection has joined.
func (s *Server) WaitConnected(n int, timeout time.Duration) {
	s.t.Helper()
	deadline := time.After(timeout)
	for {
		if s.Accepted() >= n {
			return
		}
		select {
		case <-s.connected:
		case <-deadline:
			s.t.Fatalf("timed out waiting for connection %d (accepted %d)", n, s.Accepted())
		}
	}
}

// Emit sends an event frame to the active client.
func (s *Server) Emit(name string, payload any) {
	s.t.Helper()
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		s.t.Fatalf("marshal event: %v", err)
	}
	prefix := "42"
	if s.opts.Namespace != "/" {
		prefix += s.opts.Namespace + ","
	}
	s.WriteRaw(prefix + string(body))
}

// WriteRaw sends a text frame verbatim to the active client.
func (s *Server) WriteRaw(frame string) {
	s.t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatalf("no active connection")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		s.t.Fatalf("write frame: %v", err)
	}
}

// Drop closes the active connection without a close packet.
func (s *Server) Drop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Received returns every frame the clients sent after joining.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// WaitFrame blocks until a received frame starts with prefix.
func (s *Server) WaitFrame(prefix string, timeout time.Duration) string {
	s.t.Helper()
	for _, frame := range s.Received() {
		if strings.HasPrefix(frame, prefix) {
			return frame
		}
	}
	deadline := time.After(timeout)
	for {
		select {
		case frame := <-s.frames:
			if strings.HasPrefix(frame, prefix) {
				return frame
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for frame %q (received %q)", prefix, s.Received())
			return ""
		}
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.opens++
	badOpen := s.opens <= s.opts.BadOpens
	s.mu.Unlock()
	if badOpen {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("0{not json"))
		return
	}
	open := fmt.Sprintf(`0{"sid":%q,"upgrades":[],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		uuid.NewString(), s.opts.PingInterval, s.opts.PingTimeout)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}
	_, join, err := conn.ReadMessage()
	if err != nil {
		return
	}
	want := "40"
	if s.opts.Namespace != "/" {
		want += s.opts.Namespace + ","
	}
	if string(join) != want {
		return
	}
	ack := "40"
	if s.opts.Namespace != "/" {
		ack += s.opts.Namespace + ","
	}
	s.mu.Lock()
	s.joins++
	reject := s.joins <= s.opts.RejectConnects
	s.mu.Unlock()
	if reject {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("44"+strings.TrimPrefix(ack, "40")+`{"message":"not allowed"}`))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ack+fmt.Sprintf(`{"sid":%q}`, uuid.NewString()))); err != nil {
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.accepted++
	n := s.accepted
	s.mu.Unlock()
	s.connected <- n

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.received = append(s.received, string(frame))
		s.mu.Unlock()
		select {
		case s.frames <- string(frame):
		default:
		}
	}
}
