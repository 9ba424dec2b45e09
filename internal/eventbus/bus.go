// Package eventbus provides one explicit publish/subscribe topic per state
// category. Each topic remembers its latest value so a new subscriber starts
// from the current state.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

const defaultDepth = 16

// Topic fans out values of one state category to its subscribers.
// Publish never blocks: a subscriber that falls behind loses its oldest
// queued value, so the newest value is always delivered.
type Topic[T any] struct {
	name   string
	log    pslog.Logger
	depth  int
	replay bool

	mu        sync.Mutex
	subs      map[chan T]struct{}
	latest    T
	hasLatest bool
	dropped   uint64
}

// Option configures a Topic.
type Option func(*options)

type options struct {
	depth    int
	noReplay bool
}

// WithDepth sets the per-subscriber channel buffer.
func WithDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.depth = depth
		}
	}
}

// WithoutReplay makes the topic deliver only values published after a
// subscriber joined. Use it for one-shot notifications.
func WithoutReplay() Option {
	return func(o *options) { o.noReplay = true }
}

// NewTopic constructs a named Topic.
func NewTopic[T any](name string, logger pslog.Logger, opts ...Option) *Topic[T] {
	o := options{depth: defaultDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Topic[T]{
		name:   name,
		log:    logger.With("topic", name),
		depth:  o.depth,
		replay: !o.noReplay,
		subs:   make(map[chan T]struct{}),
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Subscribe registers a subscriber and returns its channel and an
// unsubscribe func. The latest value, if any, is queued immediately.
// Unsubscribe closes the channel and is safe to call more than once.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	if t == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan T, t.depth)
	t.mu.Lock()
	if t.replay && t.hasLatest {
		ch <- t.latest
	}
	t.subs[ch] = struct{}{}
	count := len(t.subs)
	t.mu.Unlock()
	t.log.Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			close(ch)
			remaining := len(t.subs)
			t.mu.Unlock()
			t.log.Debug("eventbus unsubscribe", "subs", remaining)
		})
	}
}

// Publish records value as the latest and delivers it to every subscriber.
func (t *Topic[T]) Publish(value T) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.latest = value
	t.hasLatest = true
	dropped := 0
	for sub := range t.subs {
		select {
		case sub <- value:
			continue
		default:
		}
		// Full: discard the oldest queued value to make room.
		select {
		case <-sub:
			dropped++
		default:
		}
		select {
		case sub <- value:
		default:
			dropped++
		}
	}
	t.dropped += uint64(dropped)
	t.mu.Unlock()
	if dropped > 0 {
		t.log.Trace("eventbus dropped", "count", dropped)
	}
}

// Latest returns the most recently published value.
func (t *Topic[T]) Latest() (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.hasLatest
}

// Subscribers returns the number of live subscribers.
func (t *Topic[T]) Subscribers() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Dropped returns how many queued values were discarded for slow subscribers.
func (t *Topic[T]) Dropped() uint64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
