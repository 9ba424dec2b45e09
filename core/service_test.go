package core

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"pkt.systems/directorsync/internal/dispatch"
	"pkt.systems/directorsync/schema"
)

type sentCommand struct {
	name    schema.EventName
	payload any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCommand
	err  error
}

func (f *fakeSender) Send(name schema.EventName, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCommand{name: name, payload: payload})
	return nil
}

func (f *fakeSender) commands(name schema.EventName) []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCommand
	for _, c := range f.sent {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestService(t *testing.T, cfg schema.ServiceConfig) (Service, *dispatch.Dispatcher, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	svc, err := NewService(cfg, ServiceDeps{Sender: sender, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	d := dispatch.New(nil)
	RegisterHandlers(d, svc)
	return svc, d, sender
}

func emit(t *testing.T, d *dispatch.Dispatcher, name schema.EventName, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	d.Dispatch(context.Background(), name, raw)
}

func TestServiceRegistersEveryInboundEvent(t *testing.T) {
	_, d, _ := newTestService(t, schema.ServiceConfig{})
	for _, name := range schema.InboundEvents {
		if !d.Registered(name) {
			t.Fatalf("expected handler for %s", name)
		}
	}
}

func TestServiceViewBeforeAnyEvent(t *testing.T) {
	svc, _, _ := newTestService(t, schema.ServiceConfig{})
	view := svc.View()
	want := OfflineView(schema.DefaultStreamer)
	if !reflect.DeepEqual(view, want) {
		t.Fatalf("expected offline defaults\n got %+v\nwant %+v", view, want)
	}
}

func TestServiceContextLogsAreBounded(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{VisionLogMax: 3})
	for _, text := range []string{"a", "b", "c", "d"} {
		emit(t, d, schema.EventVisionContext, map[string]string{"context": text})
	}
	emit(t, d, schema.EventSpokenWordContext, map[string]string{"context": "said"})
	view := svc.View()
	if !reflect.DeepEqual(view.VisionLog, []string{"b", "c", "d"}) {
		t.Fatalf("unexpected vision log %v", view.VisionLog)
	}
	if !reflect.DeepEqual(view.SpokenLog, []string{"said"}) {
		t.Fatalf("unexpected spoken log %v", view.SpokenLog)
	}
}

func TestServiceMalformedPayloadDoesNotMutate(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	d.Dispatch(context.Background(), schema.EventVisionContext, json.RawMessage(`null`))
	d.Dispatch(context.Background(), schema.EventVisionContext, json.RawMessage(`{}`))
	d.Dispatch(context.Background(), schema.EventTwitchMessage, json.RawMessage(`{"username":"x"}`))
	d.Dispatch(context.Background(), schema.EventScored, json.RawMessage(`{"source":"chat"}`))
	d.Dispatch(context.Background(), schema.EventDirectorState, json.RawMessage(`[1,2]`))
	d.Dispatch(context.Background(), "brand_new_event", json.RawMessage(`{"x":1}`))
	emit(t, d, schema.EventVisionContext, map[string]string{"context": "ok"})

	view := svc.View()
	if len(view.VisionLog) != 1 || len(view.Chat) != 0 || len(view.Scores) != 0 || view.HasSnapshot {
		t.Fatalf("malformed payloads must not mutate state: %+v", view)
	}
	stats := d.Stats()
	if stats.Failed != 5 || stats.Unknown != 1 {
		t.Fatalf("unexpected dispatch stats %+v", stats)
	}
}

func TestServiceAudioCoalescing(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	updates := []map[string]any{
		{"context": "a", "is_partial": true, "session_id": "1"},
		{"context": "ab", "is_partial": true, "session_id": "1"},
		{"context": "abc", "is_partial": false, "session_id": "1"},
		{"context": "xyz", "is_partial": true, "session_id": "1"},
	}
	for _, u := range updates {
		emit(t, d, schema.EventAudioContext, u)
	}
	log := svc.View().AudioLog
	if len(log) != 1 || log[0].Text != "abc" || log[0].IsPartial {
		t.Fatalf("unexpected audio log %+v", log)
	}
}

func TestServiceChatMentionsAndBotReplies(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	emit(t, d, schema.EventTwitchMessage, map[string]string{"username": "viewer", "message": "hey NAMI"})
	emit(t, d, schema.EventTwitchMessage, map[string]string{"username": "viewer", "message": "gg"})
	emit(t, d, schema.EventBotReply, map[string]any{"reply": "hi, I'm Nami", "prompt": "p", "is_censored": false})

	view := svc.View()
	if len(view.Chat) != 3 {
		t.Fatalf("expected three chat lines, got %+v", view.Chat)
	}
	if !view.Chat[0].IsMention || view.Chat[1].IsMention {
		t.Fatalf("unexpected mention flags %+v", view.Chat)
	}
	bot := view.Chat[2]
	if !bot.IsBot || bot.IsMention || bot.Username != schema.DefaultBotName || bot.Message != "hi, I'm Nami" {
		t.Fatalf("unexpected bot chat line %+v", bot)
	}
	if !bot.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected ingestion timestamp, got %v", bot.Timestamp)
	}
	if len(view.Replies) != 1 || view.Replies[0].Prompt != "p" {
		t.Fatalf("unexpected replies %+v", view.Replies)
	}
}

func TestServiceScores(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	emit(t, d, schema.EventScored, map[string]any{"score": 1.7, "source": "chat", "text": "wow"})
	emit(t, d, schema.EventScored, map[string]any{"score": 0.25, "source": "vision", "text": "cat", "timestamp": 1700000000.5})
	view := svc.View()
	if len(view.Scores) != 2 {
		t.Fatalf("expected two scores, got %+v", view.Scores)
	}
	if view.Scores[0].Score != 1 || !view.Scores[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("expected clamped score stamped on arrival, got %+v", view.Scores[0])
	}
	if want := time.Unix(1700000000, 500000000); !view.Scores[1].Timestamp.Equal(want) {
		t.Fatalf("expected backend timestamp, got %v", view.Scores[1].Timestamp)
	}
	if view.Summary.Count != 2 || view.Summary.Max != 1 || view.Summary.Min != 0.25 {
		t.Fatalf("unexpected summary %+v", view.Summary)
	}
}

func TestServiceSuggestionAutoAppliesWhenUnlocked(t *testing.T) {
	svc, d, sender := newTestService(t, schema.ServiceConfig{})
	emit(t, d, schema.EventAIContextSuggestion, map[string]any{"context": "X", "context_locked": true})

	cmds := sender.commands(schema.CommandSetManualContext)
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one set_manual_context, got %+v", sender.sent)
	}
	if payload := cmds[0].payload.(schema.SetManualContextCommand); payload.Context != "X" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if svc.Locks().ManualContext != "X" {
		t.Fatalf("expected manual context X, got %+v", svc.Locks())
	}
	if svc.PendingSuggestion().Present {
		t.Fatalf("expected no pending suggestion")
	}
}

func TestServiceSuggestionHeldWhenLocked(t *testing.T) {
	svc, d, sender := newTestService(t, schema.ServiceConfig{})
	emit(t, d, schema.EventDirectorState, map[string]any{"mood": "Calm", "context_locked": true, "manual_context": "curated"})
	emit(t, d, schema.EventAIContextSuggestion, map[string]any{"context": "X"})

	if len(sender.sent) != 0 {
		t.Fatalf("expected no command while locked, got %+v", sender.sent)
	}
	if pending := svc.PendingSuggestion(); !pending.Present || pending.Value != "X" {
		t.Fatalf("expected pending X, got %+v", pending)
	}
	if svc.Locks().ManualContext != "curated" {
		t.Fatalf("manual context must be untouched, got %q", svc.Locks().ManualContext)
	}

	value, err := svc.AcceptSuggestion(context.Background())
	if err != nil || value != "X" {
		t.Fatalf("accept: %q %v", value, err)
	}
	if len(sender.commands(schema.CommandSetManualContext)) != 1 {
		t.Fatalf("expected one command after accept, got %+v", sender.sent)
	}
	if svc.Locks().ManualContext != "X" || svc.PendingSuggestion().Present {
		t.Fatalf("expected X applied and slot cleared, got %+v %+v", svc.Locks(), svc.PendingSuggestion())
	}
}

func TestServiceUnlockedSnapshotClearsPending(t *testing.T) {
	svc, d, sender := newTestService(t, schema.ServiceConfig{})
	if err := svc.SetContextLock(context.Background(), true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	emit(t, d, schema.EventAIContextSuggestion, map[string]any{"context": "X"})
	if !svc.PendingSuggestion().Present {
		t.Fatalf("expected pending after local lock")
	}
	emit(t, d, schema.EventDirectorState, map[string]any{"context_locked": false})
	if svc.PendingSuggestion().Present {
		t.Fatalf("expected unlocked snapshot to clear pending")
	}
	if got := len(sender.commands(schema.CommandSetManualContext)); got != 0 {
		t.Fatalf("clearing must not emit, got %d", got)
	}
	if svc.DismissSuggestion(context.Background()) {
		t.Fatalf("nothing should be left to dismiss")
	}
}

func TestServiceOptimisticLocksCorrectedBySnapshot(t *testing.T) {
	svc, d, sender := newTestService(t, schema.ServiceConfig{})
	ctx := context.Background()
	if err := svc.SetStreamerLock(ctx, true); err != nil {
		t.Fatalf("set streamer lock: %v", err)
	}
	if err := svc.SetStreamer(ctx, "OtterTwo"); err != nil {
		t.Fatalf("set streamer: %v", err)
	}
	locks := svc.Locks()
	if !locks.StreamerLocked || locks.CurrentStreamer != "ottertwo" {
		t.Fatalf("expected optimistic locks, got %+v", locks)
	}
	if cmds := sender.commands(schema.CommandSetStreamer); len(cmds) != 1 || cmds[0].payload.(schema.SetStreamerCommand).StreamerID != "ottertwo" {
		t.Fatalf("unexpected set_streamer commands %+v", cmds)
	}
	emit(t, d, schema.EventDirectorState, map[string]any{"streamer_locked": false, "current_streamer": "peepingotter"})
	locks = svc.Locks()
	if locks.StreamerLocked || locks.CurrentStreamer != "peepingotter" {
		t.Fatalf("expected snapshot to correct drift, got %+v", locks)
	}
}

func TestServiceSendFailureKeepsLocalState(t *testing.T) {
	sender := &fakeSender{err: schema.ErrNotConnected}
	svc, err := NewService(schema.ServiceConfig{}, ServiceDeps{Sender: sender})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.SetContextLock(context.Background(), true); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if !svc.Locks().ContextLocked {
		t.Fatalf("expected optimistic lock despite send failure")
	}
	if err := svc.SetManualContext(context.Background(), "later"); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if svc.Locks().ManualContext != "later" {
		t.Fatalf("expected optimistic manual context")
	}
}

func TestServiceDisconnectKeepsState(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	svc.OnConnectionState(schema.Connecting)
	svc.OnConnectionState(schema.Connected)
	emit(t, d, schema.EventDirectorState, map[string]any{"mood": "Happy"})
	emit(t, d, schema.EventVisionContext, map[string]string{"context": "seen"})
	svc.OnConnectionState(schema.Disconnected)

	view := svc.View()
	if !view.Stale || view.Connection != schema.Disconnected {
		t.Fatalf("expected stale disconnected view, got %+v", view)
	}
	if !view.HasSnapshot || view.Snapshot.Mood != "Happy" || len(view.VisionLog) != 1 {
		t.Fatalf("disconnect must not clear state, got %+v", view)
	}
}

func TestServiceTopicsPublishChanges(t *testing.T) {
	svc, d, _ := newTestService(t, schema.ServiceConfig{})
	topics := svc.Topics()
	chat, cancelChat := topics.Chat.Subscribe()
	defer cancelChat()
	suggestions, cancelSuggestions := topics.Suggestions.Subscribe()
	defer cancelSuggestions()
	conn, cancelConn := topics.Connection.Subscribe()
	defer cancelConn()

	emit(t, d, schema.EventTwitchMessage, map[string]string{"username": "u", "message": "m"})
	emit(t, d, schema.EventAIContextSuggestion, map[string]any{"context": nil})
	svc.OnConnectionState(schema.Connecting)

	select {
	case lines := <-chat:
		if len(lines) != 1 || lines[0].Message != "m" {
			t.Fatalf("unexpected chat publish %+v", lines)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected chat publish")
	}
	select {
	case s := <-suggestions:
		if s.Context != nil {
			t.Fatalf("expected raw suggestion without context, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected raw suggestion publish")
	}
	select {
	case state := <-conn:
		if state != schema.Connecting {
			t.Fatalf("unexpected state %s", state)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected connection publish")
	}
}

func TestServiceSendEventValidates(t *testing.T) {
	svc, _, sender := newTestService(t, schema.ServiceConfig{})
	if err := svc.SendEvent(context.Background(), schema.InjectEventCommand{Text: "x"}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if err := svc.SendEvent(context.Background(), schema.InjectEventCommand{SourceStr: "DIRECT_INPUT", Text: "hello", Username: "op"}); err != nil {
		t.Fatalf("send event: %v", err)
	}
	cmds := sender.commands(schema.CommandEvent)
	if len(cmds) != 1 {
		t.Fatalf("expected one event command, got %+v", sender.sent)
	}
	payload := cmds[0].payload.(schema.InjectEventCommand)
	if payload.Metadata == nil || payload.Username != "op" {
		t.Fatalf("unexpected event payload %+v", payload)
	}
}
