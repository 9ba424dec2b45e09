package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

type routeKind int

const (
	routeRead routeKind = iota
	routeCommand
	routeStream
)

// commandRoutes maps each command endpoint to the intent it emits.
var commandRoutes = map[string]string{
	"/api/streamer":           string(schema.CommandSetStreamer),
	"/api/context":            string(schema.CommandSetManualContext),
	"/api/locks/streamer":     string(schema.CommandSetStreamerLock),
	"/api/locks/context":      string(schema.CommandSetContextLock),
	"/api/suggestion/accept":  "accept_suggestion",
	"/api/suggestion/dismiss": "dismiss_suggestion",
	"/api/event":              string(schema.CommandEvent),
}

func classifyRoute(path string) (routeKind, string) {
	if path == "/api/stream" {
		return routeStream, ""
	}
	if command, ok := commandRoutes[path]; ok {
		return routeCommand, command
	}
	return routeRead, ""
}

// statusRecorder keeps the status and size of a response while passing
// flushes through for SSE.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// withRequestLogging binds a request logger carrying the remote address to
// the request context. Commands are logged at Info with the intent name,
// streams when they end, and state reads at Debug.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		kind, command := classifyRoute(r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(pslog.ContextWithLogger(r.Context(), log)))

		status := rec.code()
		elapsed := time.Since(start).Milliseconds()
		switch kind {
		case routeCommand:
			if status >= http.StatusInternalServerError {
				log.Warn("http command failed", "command", command, "method", r.Method, "status", status, "duration_ms", elapsed)
				return
			}
			log.Info("http command", "command", command, "method", r.Method, "status", status, "duration_ms", elapsed)
		case routeStream:
			log.Info("http stream closed", "status", status, "bytes", rec.size, "duration_ms", elapsed, "last_event_id", r.Header.Get("Last-Event-ID"))
		default:
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", status, "bytes", rec.size, "duration_ms", elapsed, "ua", r.UserAgent())
		}
	})
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
