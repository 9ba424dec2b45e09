package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pkt.systems/directorsync/schema"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New(nil)
	var got []string
	d.Register("vision_context", func(ctx context.Context, payload json.RawMessage) error {
		got = append(got, "vision:"+string(payload))
		return nil
	})
	d.Register("bot_reply", func(ctx context.Context, payload json.RawMessage) error {
		got = append(got, "reply:"+string(payload))
		return nil
	})

	d.Dispatch(context.Background(), "vision_context", json.RawMessage(`1`))
	d.Dispatch(context.Background(), "bot_reply", json.RawMessage(`2`))
	d.Dispatch(context.Background(), "vision_context", json.RawMessage(`3`))

	want := []string{"vision:1", "reply:2", "vision:3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatchDropsUnknownEvent(t *testing.T) {
	d := New(nil)
	d.Dispatch(context.Background(), "future_event", json.RawMessage(`{}`))
	stats := d.Stats()
	if stats.Unknown != 1 || stats.Dispatched != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDispatchContainsErrorsAndPanics(t *testing.T) {
	d := New(nil)
	calls := 0
	d.Register("a", func(context.Context, json.RawMessage) error {
		return errors.New("boom")
	})
	d.Register("b", func(context.Context, json.RawMessage) error {
		panic("bad payload")
	})
	d.Register("c", func(context.Context, json.RawMessage) error {
		calls++
		return nil
	})

	d.Dispatch(context.Background(), "a", nil)
	d.Dispatch(context.Background(), "b", nil)
	d.Dispatch(context.Background(), "c", nil)

	if calls != 1 {
		t.Fatalf("expected later handler to run, got %d calls", calls)
	}
	stats := d.Stats()
	if stats.Failed != 2 || stats.Panicked != 1 || stats.Dispatched != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRegisterReplacesHandler(t *testing.T) {
	d := New(nil)
	var which string
	d.Register("x", func(context.Context, json.RawMessage) error { which = "first"; return nil })
	d.Register("x", func(context.Context, json.RawMessage) error { which = "second"; return nil })
	d.Dispatch(context.Background(), "x", nil)
	if which != "second" {
		t.Fatalf("expected replacement handler, got %q", which)
	}
	d.Unregister("x")
	if d.Registered("x") {
		t.Fatalf("expected handler to be removed")
	}
}

func TestHandleEventDispatches(t *testing.T) {
	d := New(nil)
	var payload string
	d.Register(schema.EventScored, func(_ context.Context, p json.RawMessage) error {
		payload = string(p)
		return nil
	})
	d.HandleEvent(context.Background(), schema.InboundEvent{Name: schema.EventScored, Payload: json.RawMessage(`{"score":1}`)})
	if payload != `{"score":1}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestDecodeMapsErrors(t *testing.T) {
	if _, err := Decode[schema.ContextPayload](nil); !errors.Is(err, schema.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for empty payload, got %v", err)
	}
	if _, err := Decode[schema.ContextPayload](json.RawMessage(`[1,2]`)); !errors.Is(err, schema.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for wrong shape, got %v", err)
	}
	got, err := Decode[schema.ContextPayload](json.RawMessage(`{"context":"x"}`))
	if err != nil || got.Context == nil || *got.Context != "x" {
		t.Fatalf("unexpected decode %+v %v", got, err)
	}
}
