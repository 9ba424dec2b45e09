// Package transport keeps one persistent Socket.IO channel to the backend,
// reconnecting with capped exponential backoff for as long as it runs.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pkt.systems/directorsync/internal/wire"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Sink receives inbound events. It is called from the read loop, one event
// at a time, in arrival order.
type Sink interface {
	HandleEvent(ctx context.Context, event schema.InboundEvent)
}

// SinkFunc adapts a func to Sink.
type SinkFunc func(ctx context.Context, event schema.InboundEvent)

// HandleEvent implements Sink.
func (f SinkFunc) HandleEvent(ctx context.Context, event schema.InboundEvent) {
	f(ctx, event)
}

// StateObserver is notified on every ConnectionState change, from the
// goroutine running the connection loop.
type StateObserver func(schema.ConnectionState)

// Stats reports connection loop counters.
type Stats struct {
	Attempts  uint64
	Connects  uint64
	LastError string
	SID       string
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithStateObserver registers the state observer.
func WithStateObserver(observer StateObserver) Option {
	return func(c *Conn) { c.observe = observer }
}

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Conn) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithSleep overrides the reconnect wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Conn) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Conn is the Transport Connection. Run owns the connection loop; Send and
// Status may be called from any goroutine.
type Conn struct {
	cfg     Config
	target  string
	sink    Sink
	observe StateObserver
	dialer  *websocket.Dialer
	sleep   func(ctx context.Context, d time.Duration) error
	backoff Backoff
	log     pslog.Logger

	mu      sync.Mutex
	state   schema.ConnectionState
	active  *session
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	endOnce sync.Once
	stats   Stats
}

var errServerDisconnect = errors.New("server closed the namespace")

// New constructs a Conn. It does not dial until Run is called.
func New(cfg Config, sink Sink, opts ...Option) (*Conn, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	target, err := endpointURL(normalized)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: event sink is required", schema.ErrInvalidConfig)
	}
	c := &Conn{
		cfg:    normalized,
		target: target,
		sink:   sink,
		dialer: &websocket.Dialer{HandshakeTimeout: normalized.HandshakeTimeout},
		sleep:  sleepContext,
		backoff: Backoff{
			Base:   normalized.BaseDelay,
			Max:    normalized.MaxDelay,
			Jitter: normalized.Jitter,
		},
		log:   pslog.Ctx(context.Background()),
		state: schema.Disconnected,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("target", target)
	return c, nil
}

// Target returns the websocket URL the Conn dials.
func (c *Conn) Target() string {
	return c.target
}

// Status returns the current connection state.
func (c *Conn) Status() schema.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a copy of the loop counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Done is closed when Run returns, or when Run is called on a closed Conn.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) finish() {
	c.endOnce.Do(func() { close(c.done) })
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called. Transport failures are never returned; they only move the state
// to Disconnected and schedule the next attempt. Run on a Conn that was
// already closed returns nil at once.
func (c *Conn) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.finish()
		c.log.Debug("transport closed before run")
		return nil
	}
	if c.running {
		c.mu.Unlock()
		return errors.New("transport already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.setState(schema.Disconnected)
		c.finish()
	}()

	attempt := 0
	for ctx.Err() == nil {
		c.setState(schema.Connecting)
		connected, err := c.runSession(ctx)
		c.setState(schema.Disconnected)
		if ctx.Err() != nil {
			break
		}
		if connected {
			attempt = 0
		}
		attempt++
		delay := c.backoff.Delay(attempt)
		c.mu.Lock()
		if err != nil {
			c.stats.LastError = err.Error()
		}
		c.mu.Unlock()
		if connected {
			c.log.Info("transport disconnected", "err", err, "retry_in", delay)
		} else {
			c.log.Debug("transport connect failed", "attempt", attempt, "err", err, "retry_in", delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}
	c.log.Info("transport stopped")
	return nil
}

// Close stops the loop and closes the active socket. It waits for Run to
// return when Run was started.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	running := c.running
	active := c.active
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if active != nil {
		active.shutdown()
	}
	if running {
		<-c.done
	}
	return nil
}

// Send emits name with payload. It never waits for the backend: the frame
// is queued on the active session or the call fails immediately.
func (c *Conn) Send(name schema.EventName, payload any) error {
	frame, err := wire.EncodeEvent(c.cfg.Namespace, name, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	active := c.active
	c.mu.Unlock()
	if closed {
		return schema.ErrClosed
	}
	if active == nil {
		return schema.ErrNotConnected
	}
	return active.enqueue(frame)
}

// Flush waits until every frame queued on the active session has been
// written, or the session ends, or ctx is done.
func (c *Conn) Flush(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return schema.ErrNotConnected
	}
	return active.flush(ctx)
}

func (c *Conn) setState(state schema.ConnectionState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = state
	observe := c.observe
	c.mu.Unlock()
	c.log.Debug("transport state", "from", prev.String(), "to", state.String())
	if observe != nil {
		observe(state)
	}
}

// runSession dials, performs the handshake, and serves frames until the
// socket fails. connected reports whether the namespace handshake completed.
func (c *Conn) runSession(ctx context.Context) (connected bool, err error) {
	connID := uuid.NewString()
	log := c.log.With("conn", connID)
	c.mu.Lock()
	c.stats.Attempts++
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	ws, resp, err := c.dialer.DialContext(dialCtx, c.target, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	s := newSession(ws, c.cfg.SendQueue, c.cfg.WriteTimeout, log)
	defer s.shutdown()

	open, err := s.handshake(c.cfg.Namespace, c.cfg.HandshakeTimeout)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, schema.ErrClosed
	}
	c.active = s
	c.stats.Connects++
	c.stats.SID = open.SID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.active == s {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	go s.writeLoop()
	log.Info("transport connect ok", "sid", open.SID, "ping_interval_ms", open.PingInterval, "ping_timeout_ms", open.PingTimeout)
	c.setState(schema.Connected)
	return true, s.readLoop(ctx, c.cfg.Namespace, open, c.sink)
}
