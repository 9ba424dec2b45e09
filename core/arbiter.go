package core

import (
	"context"

	"pkt.systems/directorsync/schema"
)

// ContextApplier commits a manual context: it updates local state and
// emits set_manual_context.
type ContextApplier interface {
	ApplyManualContext(ctx context.Context, value string) error
}

// ArbiterOutcome reports how a suggestion was handled.
type ArbiterOutcome int

const (
	// Ignored means the suggestion carried no context value.
	Ignored ArbiterOutcome = iota
	// AutoApplied means the context was unlocked and the value was committed.
	AutoApplied
	// Held means the context was locked and the value is now pending.
	Held
)

func (o ArbiterOutcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case AutoApplied:
		return "auto_applied"
	case Held:
		return "held"
	default:
		return "unknown"
	}
}

// Arbiter decides whether an AI context suggestion is committed at once or
// held for the operator. It is the only writer of the pending slot and is
// not safe for concurrent use.
type Arbiter struct {
	apply   ContextApplier
	pending *string
}

// NewArbiter constructs an Arbiter committing through apply.
func NewArbiter(apply ContextApplier) *Arbiter {
	return &Arbiter{apply: apply}
}

// Suggest handles a suggestion given the effective context lock. An empty
// value is ignored. The returned error is the commit error, if any.
func (a *Arbiter) Suggest(ctx context.Context, value string, contextLocked bool) (ArbiterOutcome, error) {
	if value == "" {
		return Ignored, nil
	}
	if contextLocked {
		v := value
		a.pending = &v
		return Held, nil
	}
	return AutoApplied, a.apply.ApplyManualContext(ctx, value)
}

// Accept commits the pending value and clears the slot. The slot is cleared
// even when the send fails since the value is already applied locally.
func (a *Arbiter) Accept(ctx context.Context) (string, error) {
	if a.pending == nil {
		return "", schema.ErrNoPendingSuggestion
	}
	value := *a.pending
	a.pending = nil
	return value, a.apply.ApplyManualContext(ctx, value)
}

// Dismiss clears the slot. It reports whether anything was pending.
func (a *Arbiter) Dismiss() bool {
	had := a.pending != nil
	a.pending = nil
	return had
}

// ObserveSnapshot clears the slot when a fresh snapshot has the context
// unlocked. It reports whether the slot was cleared.
func (a *Arbiter) ObserveSnapshot(contextLocked bool) bool {
	if contextLocked {
		return false
	}
	return a.Dismiss()
}

// Pending returns the held value.
func (a *Arbiter) Pending() schema.PendingSuggestion {
	if a.pending == nil {
		return schema.PendingSuggestion{}
	}
	return schema.PendingSuggestion{Value: *a.pending, Present: true}
}
