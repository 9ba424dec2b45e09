// Package dispatch routes inbound named events to exactly one handler.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Handler processes one event payload. A returned error is logged and
// contained; it never stops later events from being dispatched.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Stats counts dispatch outcomes.
type Stats struct {
	Dispatched uint64
	Unknown    uint64
	Failed     uint64
	Panicked   uint64
}

// Dispatcher demultiplexes events by name. Dispatch runs handlers
// synchronously and one at a time, in the order Dispatch is called.
type Dispatcher struct {
	log pslog.Logger

	mu       sync.RWMutex
	handlers map[schema.EventName]Handler

	runMu sync.Mutex
	stats Stats
}

// New constructs a Dispatcher.
func New(logger pslog.Logger) *Dispatcher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Dispatcher{
		log:      logger,
		handlers: make(map[schema.EventName]Handler),
	}
}

// Register binds handler to name, replacing any previous handler.
func (d *Dispatcher) Register(name schema.EventName, handler Handler) {
	if d == nil || name == "" || handler == nil {
		return
	}
	d.mu.Lock()
	_, replaced := d.handlers[name]
	d.handlers[name] = handler
	d.mu.Unlock()
	logx.WithEvent(d.log, name).Debug("dispatch register", "replaced", replaced)
}

// Unregister removes the handler for name.
func (d *Dispatcher) Unregister(name schema.EventName) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.handlers, name)
	d.mu.Unlock()
}

// Registered reports whether name has a handler.
func (d *Dispatcher) Registered(name schema.EventName) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[name]
	return ok
}

// HandleEvent implements the transport sink.
func (d *Dispatcher) HandleEvent(ctx context.Context, event schema.InboundEvent) {
	d.Dispatch(ctx, event.Name, event.Payload)
}

// Dispatch runs the handler registered for name. Unknown names are dropped
// without error. Handler errors and panics are logged and contained.
func (d *Dispatcher) Dispatch(ctx context.Context, name schema.EventName, payload json.RawMessage) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	handler, ok := d.handlers[name]
	d.mu.RUnlock()

	d.runMu.Lock()
	defer d.runMu.Unlock()
	log := logx.WithEvent(d.log, name)
	if !ok {
		d.stats.Unknown++
		log.Trace("dispatch unknown event dropped")
		return
	}
	d.stats.Dispatched++
	start := time.Now()
	if err := d.invoke(ctx, handler, payload); err != nil {
		d.stats.Failed++
		log.Warn("dispatch handler failed", "err", err, "payload_len", len(payload))
		return
	}
	log.Trace("dispatch handled", "duration", time.Since(start))
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.Panicked++
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// Stats returns a copy of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.stats
}

// Decode unmarshals payload into T, mapping failures to ErrMalformedPayload.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if len(payload) == 0 {
		return out, fmt.Errorf("%w: empty payload", schema.ErrMalformedPayload)
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("%w: %v", schema.ErrMalformedPayload, err)
	}
	return out, nil
}
