package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Sender delivers one named event without waiting for acknowledgment.
type Sender interface {
	Send(name schema.EventName, payload any) error
}

// Emitter translates outbound intents 1:1 into named commands. Failures are
// logged and returned; they never block later commands.
type Emitter struct {
	sender Sender
	log    pslog.Logger
	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewEmitter constructs an Emitter. A nil sender makes every command fail
// with ErrNotConnected.
func NewEmitter(sender Sender, logger pslog.Logger) *Emitter {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Emitter{sender: sender, log: logger}
}

// SetStreamer emits set_streamer.
func (e *Emitter) SetStreamer(ctx context.Context, id schema.StreamerID) error {
	return e.emit(ctx, schema.CommandSetStreamer, schema.SetStreamerCommand{StreamerID: id})
}

// SetManualContext emits set_manual_context.
func (e *Emitter) SetManualContext(ctx context.Context, value string) error {
	return e.emit(ctx, schema.CommandSetManualContext, schema.SetManualContextCommand{Context: value})
}

// SetStreamerLock emits set_streamer_lock.
func (e *Emitter) SetStreamerLock(ctx context.Context, locked bool) error {
	return e.emit(ctx, schema.CommandSetStreamerLock, schema.SetLockCommand{Locked: locked})
}

// SetContextLock emits set_context_lock.
func (e *Emitter) SetContextLock(ctx context.Context, locked bool) error {
	return e.emit(ctx, schema.CommandSetContextLock, schema.SetLockCommand{Locked: locked})
}

// SendEvent emits a manually injected event.
func (e *Emitter) SendEvent(ctx context.Context, cmd schema.InjectEventCommand) error {
	cmd.SourceStr = strings.TrimSpace(cmd.SourceStr)
	if cmd.SourceStr == "" || strings.TrimSpace(cmd.Text) == "" {
		return fmt.Errorf("%w: event needs a source and text", schema.ErrInvalidRequest)
	}
	if cmd.Metadata == nil {
		cmd.Metadata = map[string]any{}
	}
	return e.emit(ctx, schema.CommandEvent, cmd)
}

// Counts returns the number of sent and failed commands.
func (e *Emitter) Counts() (sent, failed uint64) {
	return e.sent.Load(), e.failed.Load()
}

func (e *Emitter) emit(ctx context.Context, name schema.EventName, payload any) error {
	log := logx.WithEvent(e.log, name)
	if ctx != nil && ctx.Err() != nil {
		e.failed.Add(1)
		return ctx.Err()
	}
	if e.sender == nil {
		e.failed.Add(1)
		log.Warn("command send failed", "err", schema.ErrNotConnected)
		return schema.ErrNotConnected
	}
	if err := e.sender.Send(name, payload); err != nil {
		e.failed.Add(1)
		log.Warn("command send failed", "err", err)
		return fmt.Errorf("send %s: %w", name, err)
	}
	e.sent.Add(1)
	log.Debug("command sent")
	return nil
}
