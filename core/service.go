package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"pkt.systems/directorsync/internal/dispatch"
	"pkt.systems/directorsync/internal/eventbus"
	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior. Every store is mutated
// under mu, so handlers and operator intents observe one total order.
type service struct {
	cfg      schema.ServiceConfig
	logger   pslog.Logger
	now      func() time.Time
	emitter  *Emitter
	topics   *Topics
	mentions MentionMatcher

	snapshots *SnapshotStore

	mu      sync.Mutex
	conn    schema.ConnectionState
	locks   schema.LockState
	arbiter *Arbiter
	vision  *BoundedLog[string]
	spoken  *BoundedLog[string]
	audio   *TranscriptLog
	chat    *BoundedLog[schema.ChatMessage]
	replies *BoundedLog[schema.BotReply]
	scores  *BoundedLog[schema.ScoreEntry]
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &service{
		cfg:       cfg,
		logger:    logger,
		now:       now,
		emitter:   NewEmitter(deps.Sender, logger),
		topics:    newTopics(logger),
		mentions:  NewMentionMatcher(cfg.MentionKeywords),
		snapshots: NewSnapshotStore(cfg.DefaultStreamer),
		conn:      schema.Disconnected,
		locks:     schema.LockState{CurrentStreamer: cfg.DefaultStreamer},
		vision:    NewBoundedLog[string](cfg.VisionLogMax),
		spoken:    NewBoundedLog[string](cfg.SpokenLogMax),
		audio:     NewTranscriptLog(cfg.AudioLogMax),
		chat:      NewBoundedLog[schema.ChatMessage](cfg.ChatLogMax),
		replies:   NewBoundedLog[schema.BotReply](cfg.ReplyLogMax),
		scores:    NewBoundedLog[schema.ScoreEntry](cfg.ScoreLogMax),
	}
	s.arbiter = NewArbiter(contextCommitter{s: s})
	return s, nil
}

func (s *service) Topics() *Topics {
	return s.topics
}

func (s *service) Handlers() map[schema.EventName]dispatch.Handler {
	return map[schema.EventName]dispatch.Handler{
		schema.EventDirectorState:       s.handleDirectorState,
		schema.EventVisionContext:       s.handleVisionContext,
		schema.EventSpokenWordContext:   s.handleSpokenWordContext,
		schema.EventAudioContext:        s.handleAudioContext,
		schema.EventTwitchMessage:       s.handleTwitchMessage,
		schema.EventBotReply:            s.handleBotReply,
		schema.EventScored:              s.handleEventScored,
		schema.EventAIContextSuggestion: s.handleSuggestion,
	}
}

func (s *service) OnConnectionState(state schema.ConnectionState) {
	s.mu.Lock()
	prev := s.conn
	s.conn = state
	if prev != state {
		s.topics.Connection.Publish(state)
	}
	s.mu.Unlock()
	if prev != state {
		s.logger.Debug("service connection state", "from", prev.String(), "to", state.String())
	}
}

func (s *service) handleDirectorState(ctx context.Context, payload json.RawMessage) error {
	snap, err := decodePayload[schema.DirectorSnapshot](payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots.Replace(snap, s.now())
	s.locks = schema.LockState{
		StreamerLocked:  snap.StreamerLocked,
		ContextLocked:   snap.ContextLocked,
		ManualContext:   snap.ManualContext,
		CurrentStreamer: snap.CurrentStreamer,
	}
	if s.locks.CurrentStreamer == "" {
		s.locks.CurrentStreamer = s.cfg.DefaultStreamer
	}
	cleared := s.arbiter.ObserveSnapshot(snap.ContextLocked)
	current, _ := s.snapshots.Current()
	s.topics.Snapshot.Publish(current)
	s.topics.Locks.Publish(s.locks)
	if cleared {
		s.topics.Pending.Publish(s.arbiter.Pending())
	}
	s.logger.Debug("service snapshot replaced", "mood", snap.Mood, "conversation_state", snap.ConversationState, "pending_cleared", cleared)
	return nil
}

func (s *service) handleVisionContext(ctx context.Context, payload json.RawMessage) error {
	return s.appendContext(payload, s.vision, s.topics.Vision)
}

func (s *service) handleSpokenWordContext(ctx context.Context, payload json.RawMessage) error {
	return s.appendContext(payload, s.spoken, s.topics.Spoken)
}

func (s *service) appendContext(payload json.RawMessage, log *BoundedLog[string], topic *eventbus.Topic[[]string]) error {
	msg, err := decodePayload[schema.ContextPayload](payload)
	if err != nil {
		return err
	}
	if msg.Context == nil {
		return fmt.Errorf("%w: missing context", schema.ErrMalformedPayload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Append(*msg.Context)
	topic.Publish(log.Current())
	return nil
}

func (s *service) handleAudioContext(ctx context.Context, payload json.RawMessage) error {
	msg, err := decodePayload[schema.AudioContext](payload)
	if err != nil {
		return err
	}
	if msg.Context == nil {
		return fmt.Errorf("%w: missing context", schema.ErrMalformedPayload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.audio.Coalesce(schema.AudioLogEntry{
		Text:      *msg.Context,
		SessionID: msg.SessionID,
		IsPartial: msg.IsPartial,
	})
	logx.WithSession(s.logger, msg.SessionID).Trace("service transcript update", "result", result.String(), "partial", msg.IsPartial)
	if result != Dropped {
		s.topics.Audio.Publish(s.audio.Current())
	}
	return nil
}

func (s *service) handleTwitchMessage(ctx context.Context, payload json.RawMessage) error {
	msg, err := decodePayload[schema.TwitchMessage](payload)
	if err != nil {
		return err
	}
	if msg.Message == nil {
		return fmt.Errorf("%w: missing message", schema.ErrMalformedPayload)
	}
	entry := schema.ChatMessage{
		Username:  msg.Username,
		Message:   *msg.Message,
		IsMention: s.mentions.Match(*msg.Message),
		Timestamp: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat.Append(entry)
	s.topics.Chat.Publish(s.chat.Current())
	return nil
}

func (s *service) handleBotReply(ctx context.Context, payload json.RawMessage) error {
	reply, err := decodePayload[schema.BotReply](payload)
	if err != nil {
		return err
	}
	if reply.Reply == "" && reply.Prompt == "" {
		return fmt.Errorf("%w: missing reply", schema.ErrMalformedPayload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies.Append(reply)
	s.chat.Append(schema.ChatMessage{
		Username:  s.cfg.BotName,
		Message:   reply.Reply,
		IsBot:     true,
		Timestamp: s.now(),
	})
	s.topics.Replies.Publish(s.replies.Current())
	s.topics.Chat.Publish(s.chat.Current())
	return nil
}

func (s *service) handleEventScored(ctx context.Context, payload json.RawMessage) error {
	msg, err := decodePayload[schema.ScoredEvent](payload)
	if err != nil {
		return err
	}
	if msg.Score == nil {
		return fmt.Errorf("%w: missing score", schema.ErrMalformedPayload)
	}
	score, ok := schema.ClampScore(*msg.Score)
	if !ok {
		return fmt.Errorf("%w: invalid score", schema.ErrMalformedPayload)
	}
	at := s.now()
	if msg.Timestamp > 0 {
		sec, frac := math.Modf(msg.Timestamp)
		at = time.Unix(int64(sec), int64(frac*1e9))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores.Append(schema.ScoreEntry{Score: score, Source: msg.Source, Text: msg.Text, Timestamp: at})
	s.topics.Scores.Publish(s.scores.Current())
	return nil
}

func (s *service) handleSuggestion(ctx context.Context, payload json.RawMessage) error {
	msg, err := decodePayload[schema.AIContextSuggestion](payload)
	if err != nil {
		return err
	}
	s.topics.Suggestions.Publish(msg)
	if msg.Context == nil || *msg.Context == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, err := s.arbiter.Suggest(ctx, *msg.Context, s.locks.ContextLocked)
	if outcome == Held {
		s.topics.Pending.Publish(s.arbiter.Pending())
	}
	s.logger.Debug("service suggestion", "outcome", outcome.String(), "context_locked", s.locks.ContextLocked)
	if err != nil {
		// The value is committed locally; the next snapshot reconciles.
		s.logger.Warn("service suggestion send failed", "err", err)
	}
	return nil
}

func (s *service) View() schema.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots.Current()
	scores := s.scores.Current()
	return schema.View{
		Connection:  s.conn,
		Stale:       s.conn != schema.Connected,
		HasSnapshot: ok,
		Snapshot:    snap,
		SnapshotAt:  s.snapshots.UpdatedAt(),
		Locks:       s.locks,
		Pending:     s.arbiter.Pending(),
		VisionLog:   s.vision.Current(),
		SpokenLog:   s.spoken.Current(),
		AudioLog:    s.audio.Current(),
		Chat:        s.chat.Current(),
		Replies:     s.replies.Current(),
		Scores:      scores,
		Summary:     SummarizeScores(scores, s.cfg.ScoreWindow),
	}
}

func (s *service) Snapshot() (schema.DirectorSnapshot, bool) {
	return s.snapshots.Current()
}

func (s *service) Locks() schema.LockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks
}

func (s *service) PendingSuggestion() schema.PendingSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arbiter.Pending()
}

func (s *service) SetStreamer(ctx context.Context, id schema.StreamerID) error {
	normalized, err := schema.NormalizeStreamerID(string(id))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.locks.CurrentStreamer = normalized
	s.topics.Locks.Publish(s.locks)
	s.mu.Unlock()
	return s.emitter.SetStreamer(ctx, normalized)
}

func (s *service) SetManualContext(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitContextLocked(ctx, value)
}

func (s *service) SetStreamerLock(ctx context.Context, locked bool) error {
	s.mu.Lock()
	s.locks.StreamerLocked = locked
	s.topics.Locks.Publish(s.locks)
	s.mu.Unlock()
	return s.emitter.SetStreamerLock(ctx, locked)
}

func (s *service) SetContextLock(ctx context.Context, locked bool) error {
	s.mu.Lock()
	s.locks.ContextLocked = locked
	s.topics.Locks.Publish(s.locks)
	s.mu.Unlock()
	return s.emitter.SetContextLock(ctx, locked)
}

func (s *service) SendEvent(ctx context.Context, cmd schema.InjectEventCommand) error {
	return s.emitter.SendEvent(ctx, cmd)
}

func (s *service) AcceptSuggestion(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.arbiter.Accept(ctx)
	if !errors.Is(err, schema.ErrNoPendingSuggestion) {
		s.topics.Pending.Publish(s.arbiter.Pending())
	}
	return value, err
}

func (s *service) DismissSuggestion(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := s.arbiter.Dismiss()
	if cleared {
		s.topics.Pending.Publish(s.arbiter.Pending())
	}
	return cleared
}

// commitContextLocked applies value as the manual context and emits it.
// Callers hold s.mu.
func (s *service) commitContextLocked(ctx context.Context, value string) error {
	s.locks.ManualContext = value
	s.topics.Locks.Publish(s.locks)
	return s.emitter.SetManualContext(ctx, value)
}

// contextCommitter lets the Arbiter commit through the service while the
// caller already holds s.mu.
type contextCommitter struct {
	s *service
}

func (c contextCommitter) ApplyManualContext(ctx context.Context, value string) error {
	return c.s.commitContextLocked(ctx, value)
}

// decodePayload decodes an event payload, treating a missing argument as
// malformed.
func decodePayload[T any](payload json.RawMessage) (T, error) {
	var zero T
	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, fmt.Errorf("%w: missing payload", schema.ErrMalformedPayload)
	}
	return dispatch.Decode[T](payload)
}
