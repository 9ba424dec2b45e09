package core

import (
	"pkt.systems/directorsync/internal/eventbus"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Topics are the per-category publish/subscribe channels of the service.
// Log topics carry the whole current log after each change.
type Topics struct {
	Connection  *eventbus.Topic[schema.ConnectionState]
	Snapshot    *eventbus.Topic[schema.DirectorSnapshot]
	Locks       *eventbus.Topic[schema.LockState]
	Pending     *eventbus.Topic[schema.PendingSuggestion]
	Suggestions *eventbus.Topic[schema.AIContextSuggestion]
	Vision      *eventbus.Topic[[]string]
	Spoken      *eventbus.Topic[[]string]
	Audio       *eventbus.Topic[[]schema.AudioLogEntry]
	Chat        *eventbus.Topic[[]schema.ChatMessage]
	Replies     *eventbus.Topic[[]schema.BotReply]
	Scores      *eventbus.Topic[[]schema.ScoreEntry]
}

func newTopics(logger pslog.Logger) *Topics {
	return &Topics{
		Connection:  eventbus.NewTopic[schema.ConnectionState]("connection", logger),
		Snapshot:    eventbus.NewTopic[schema.DirectorSnapshot]("director_state", logger),
		Locks:       eventbus.NewTopic[schema.LockState]("locks", logger),
		Pending:     eventbus.NewTopic[schema.PendingSuggestion]("pending_suggestion", logger),
		Suggestions: eventbus.NewTopic[schema.AIContextSuggestion]("ai_context_suggestion", logger, eventbus.WithoutReplay()),
		Vision:      eventbus.NewTopic[[]string]("vision_log", logger),
		Spoken:      eventbus.NewTopic[[]string]("spoken_log", logger),
		Audio:       eventbus.NewTopic[[]schema.AudioLogEntry]("audio_log", logger),
		Chat:        eventbus.NewTopic[[]schema.ChatMessage]("chat", logger),
		Replies:     eventbus.NewTopic[[]schema.BotReply]("replies", logger),
		Scores:      eventbus.NewTopic[[]schema.ScoreEntry]("scores", logger),
	}
}
