package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/directorsync/schema"
)

func TestEmitterTranslatesIntents(t *testing.T) {
	sender := &fakeSender{}
	e := NewEmitter(sender, nil)
	ctx := context.Background()
	calls := []func() error{
		func() error { return e.SetStreamer(ctx, "otter") },
		func() error { return e.SetManualContext(ctx, "ctx") },
		func() error { return e.SetStreamerLock(ctx, true) },
		func() error { return e.SetContextLock(ctx, false) },
	}
	for i, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	want := []sentCommand{
		{schema.CommandSetStreamer, schema.SetStreamerCommand{StreamerID: "otter"}},
		{schema.CommandSetManualContext, schema.SetManualContextCommand{Context: "ctx"}},
		{schema.CommandSetStreamerLock, schema.SetLockCommand{Locked: true}},
		{schema.CommandSetContextLock, schema.SetLockCommand{Locked: false}},
	}
	if len(sender.sent) != len(want) {
		t.Fatalf("expected %d commands, got %+v", len(want), sender.sent)
	}
	for i := range want {
		if sender.sent[i] != want[i] {
			t.Fatalf("command %d: expected %+v, got %+v", i, want[i], sender.sent[i])
		}
	}
	if sent, failed := e.Counts(); sent != 4 || failed != 0 {
		t.Fatalf("unexpected counts %d/%d", sent, failed)
	}
}

func TestEmitterFailureDoesNotBlockLaterCommands(t *testing.T) {
	sender := &fakeSender{err: schema.ErrSendQueueFull}
	e := NewEmitter(sender, nil)
	if err := e.SetStreamerLock(context.Background(), true); !errors.Is(err, schema.ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", err)
	}
	sender.err = nil
	if err := e.SetStreamerLock(context.Background(), false); err != nil {
		t.Fatalf("expected later command to succeed, got %v", err)
	}
	if sent, failed := e.Counts(); sent != 1 || failed != 1 {
		t.Fatalf("unexpected counts %d/%d", sent, failed)
	}
}

func TestEmitterWithoutSender(t *testing.T) {
	e := NewEmitter(nil, nil)
	if err := e.SetContextLock(context.Background(), true); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
