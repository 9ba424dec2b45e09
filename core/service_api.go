package core

import (
	"context"

	"pkt.systems/directorsync/internal/dispatch"
	"pkt.systems/directorsync/schema"
)

// Service is the state synchronization core: it ingests backend events,
// keeps the bounded client-side state, and turns operator intents into
// commands.
type Service interface {
	// Handlers returns one dispatch handler per inbound event name.
	Handlers() map[schema.EventName]dispatch.Handler
	// OnConnectionState records a transport state change.
	OnConnectionState(state schema.ConnectionState)

	View() schema.View
	Snapshot() (schema.DirectorSnapshot, bool)
	Locks() schema.LockState
	PendingSuggestion() schema.PendingSuggestion
	Topics() *Topics

	SetStreamer(ctx context.Context, id schema.StreamerID) error
	SetManualContext(ctx context.Context, value string) error
	SetStreamerLock(ctx context.Context, locked bool) error
	SetContextLock(ctx context.Context, locked bool) error
	SendEvent(ctx context.Context, cmd schema.InjectEventCommand) error
	AcceptSuggestion(ctx context.Context) (string, error)
	DismissSuggestion(ctx context.Context) bool
}

// RegisterHandlers binds every service handler on d.
func RegisterHandlers(d *dispatch.Dispatcher, svc Service) {
	for name, handler := range svc.Handlers() {
		d.Register(name, handler)
	}
}
