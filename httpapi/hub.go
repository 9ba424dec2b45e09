package httpapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pkt.systems/directorsync/core"
	"pkt.systems/directorsync/internal/collab"
	"pkt.systems/directorsync/internal/eventbus"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Stream event types.
const (
	EventTypeState      = "state"
	EventTypeConnection = "connection"
	EventTypeSnapshot   = "director_state"
	EventTypeLocks      = "locks"
	EventTypePending    = "pending_suggestion"
	EventTypeSuggestion = "ai_context_suggestion"
	EventTypeVision     = "vision_log"
	EventTypeSpoken     = "spoken_log"
	EventTypeAudio      = "audio_log"
	EventTypeChat       = "chat"
	EventTypeReplies    = "replies"
	EventTypeScores     = "scores"
	EventTypeCollab     = "collab"
)

// StreamEvent is sent to SSE clients. Exactly one payload field is set,
// matching Type.
type StreamEvent struct {
	Seq        uint64                      `json:"seq"`
	Type       string                      `json:"type"`
	State      *schema.View                `json:"state,omitempty"`
	Connection *schema.ConnectionState     `json:"connection,omitempty"`
	Snapshot   *schema.DirectorSnapshot    `json:"snapshot,omitempty"`
	Locks      *schema.LockState           `json:"locks,omitempty"`
	Pending    *schema.PendingSuggestion   `json:"pending,omitempty"`
	Suggestion *schema.AIContextSuggestion `json:"suggestion,omitempty"`
	Lines      []string                    `json:"lines,omitempty"`
	Audio      []schema.AudioLogEntry      `json:"audio,omitempty"`
	Chat       []schema.ChatMessage        `json:"chat,omitempty"`
	Replies    []schema.BotReply           `json:"replies,omitempty"`
	Scores     []schema.ScoreEntry         `json:"scores,omitempty"`
	Collab     *collab.Status              `json:"collab,omitempty"`
	Timestamp  time.Time                   `json:"timestamp"`
}

// Hub sequences stream events, keeps a bounded history for Last-Event-ID
// replay, and broadcasts to SSE subscribers.
type Hub struct {
	log         pslog.Logger
	now         func() time.Time
	historySize int

	mu      sync.Mutex
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = 256
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		log:         logger,
		now:         time.Now,
		historySize: historySize,
		subs:        make(map[chan StreamEvent]struct{}),
	}
}

// Follow forwards every service topic (and the collaborator status topic,
// when non-nil) into the hub until ctx ends.
func (h *Hub) Follow(ctx context.Context, topics *core.Topics, collabTopic *eventbus.Topic[collab.Status]) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return follow(ctx, h, topics.Connection, func(v schema.ConnectionState) StreamEvent {
			return StreamEvent{Type: EventTypeConnection, Connection: &v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Snapshot, func(v schema.DirectorSnapshot) StreamEvent {
			return StreamEvent{Type: EventTypeSnapshot, Snapshot: &v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Locks, func(v schema.LockState) StreamEvent {
			return StreamEvent{Type: EventTypeLocks, Locks: &v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Pending, func(v schema.PendingSuggestion) StreamEvent {
			return StreamEvent{Type: EventTypePending, Pending: &v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Suggestions, func(v schema.AIContextSuggestion) StreamEvent {
			return StreamEvent{Type: EventTypeSuggestion, Suggestion: &v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Vision, func(v []string) StreamEvent {
			return StreamEvent{Type: EventTypeVision, Lines: v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Spoken, func(v []string) StreamEvent {
			return StreamEvent{Type: EventTypeSpoken, Lines: v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Audio, func(v []schema.AudioLogEntry) StreamEvent {
			return StreamEvent{Type: EventTypeAudio, Audio: v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Chat, func(v []schema.ChatMessage) StreamEvent {
			return StreamEvent{Type: EventTypeChat, Chat: v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Replies, func(v []schema.BotReply) StreamEvent {
			return StreamEvent{Type: EventTypeReplies, Replies: v}
		})
	})
	g.Go(func() error {
		return follow(ctx, h, topics.Scores, func(v []schema.ScoreEntry) StreamEvent {
			return StreamEvent{Type: EventTypeScores, Scores: v}
		})
	})
	if collabTopic != nil {
		g.Go(func() error {
			return follow(ctx, h, collabTopic, func(v collab.Status) StreamEvent {
				return StreamEvent{Type: EventTypeCollab, Collab: &v}
			})
		})
	}
	return g.Wait()
}

func follow[T any](ctx context.Context, h *Hub, topic *eventbus.Topic[T], convert func(T) StreamEvent) error {
	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case value, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish(convert(value))
		}
	}
}

// Publish assigns the next sequence number and broadcasts event.
func (h *Hub) Publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = append(h.history[:0:0], h.history[len(h.history)-h.historySize:]...)
	}
	subs := make([]chan StreamEvent, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.log.Trace("hub event", "type", event.Type, "seq", event.Seq)
	if dropped > 0 {
		h.log.Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

// Subscribe registers a subscriber and returns the current sequence number.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	h.log.Info("hub subscribe", "subs", len(h.subs), "seq", seq)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			h.log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns events with after < seq <= upTo. complete is false when
// the history no longer holds every event in that range.
func (h *Hub) Replay(after, upTo uint64) (events []StreamEvent, complete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if after >= upTo {
		return nil, after == upTo
	}
	events = make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after && event.Seq <= upTo {
			events = append(events, event)
		}
	}
	complete = len(events) > 0 && events[0].Seq == after+1
	h.log.Debug("hub replay", "after", after, "count", len(events), "complete", complete)
	return events, complete
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}
