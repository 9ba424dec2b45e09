package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

func TestWithEventAndSessionAddFields(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	log := WithSession(WithEvent(logger, schema.EventAudioContext), "sess-1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["event"] != "audio_context" {
		t.Fatalf("expected event field, got %+v", entry)
	}
	if entry["session"] != "sess-1" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	WithSession(logger, "").Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["session"]; ok {
		t.Fatalf("did not expect session field for empty id")
	}
}

func TestWithClientAddsFields(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	WithClient(ctx, "c1", "http://localhost:8002").Info("hello")

	entry := capture.firstEntry(t)
	if entry["client"] != "c1" {
		t.Fatalf("expected client field, got %+v", entry)
	}
	if entry["endpoint"] != "http://localhost:8002" {
		t.Fatalf("expected endpoint field, got %+v", entry)
	}
}

func TestWithClientDeduplicatesContextFields(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("client", "c1", "endpoint", "e")
	ctx := ContextWithClientLogger(context.Background(), logger, "c1", "e")
	WithClient(ctx, "c1", "e").Info("hello")

	line := capture.buf.String()
	if strings.Count(line, `"client"`) != 1 || strings.Count(line, `"endpoint"`) != 1 {
		t.Fatalf("expected de-duplicated fields, got %s", line)
	}
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
