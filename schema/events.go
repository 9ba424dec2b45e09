package schema

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventDirectorState       EventName = "director_state"
	EventVisionContext       EventName = "vision_context"
	EventSpokenWordContext   EventName = "spoken_word_context"
	EventAudioContext        EventName = "audio_context"
	EventTwitchMessage       EventName = "twitch_message"
	EventBotReply            EventName = "bot_reply"
	EventScored              EventName = "event_scored"
	EventAIContextSuggestion EventName = "ai_context_suggestion"
)

// Outbound command names.
const (
	CommandSetStreamer      EventName = "set_streamer"
	CommandSetManualContext EventName = "set_manual_context"
	CommandSetStreamerLock  EventName = "set_streamer_lock"
	CommandSetContextLock   EventName = "set_context_lock"
	CommandEvent            EventName = "event"
)

// InboundEvents lists every event the service registers a handler for.
var InboundEvents = []EventName{
	EventDirectorState,
	EventVisionContext,
	EventSpokenWordContext,
	EventAudioContext,
	EventTwitchMessage,
	EventBotReply,
	EventScored,
	EventAIContextSuggestion,
}

// ContextPayload carries vision_context and spoken_word_context.
type ContextPayload struct {
	Context *string `json:"context"`
}

// AudioContext carries a possibly partial desktop audio transcript.
type AudioContext struct {
	Context   *string   `json:"context"`
	IsPartial bool      `json:"is_partial"`
	SessionID SessionID `json:"session_id,omitempty"`
}

// TwitchMessage is a chat line from the stream chat.
type TwitchMessage struct {
	Username string  `json:"username"`
	Message  *string `json:"message"`
}

// BotReply is a reply generated by the bot persona.
type BotReply struct {
	Reply            string  `json:"reply"`
	Prompt           string  `json:"prompt"`
	IsCensored       bool    `json:"is_censored"`
	CensorshipReason *string `json:"censorship_reason"`
	FilteredArea     *string `json:"filtered_area"`
}

// EventScore breaks down the interest score dimensions.
type EventScore struct {
	Interestingness     float64 `json:"interestingness"`
	Urgency             float64 `json:"urgency"`
	ConversationalValue float64 `json:"conversational_value"`
	EmotionalIntensity  float64 `json:"emotional_intensity"`
	TopicRelevance      float64 `json:"topic_relevance"`
}

// ScoredEvent is emitted after the backend scores an incoming event.
type ScoredEvent struct {
	ID        string      `json:"id,omitempty"`
	Score     *float64    `json:"score"`
	Scores    *EventScore `json:"scores,omitempty"`
	Timestamp float64     `json:"timestamp,omitempty"`
	Source    string      `json:"source"`
	Text      string      `json:"text"`
}

// AIContextSuggestion proposes a new manual context.
type AIContextSuggestion struct {
	Streamer       *string `json:"streamer"`
	Context        *string `json:"context"`
	StreamerLocked bool    `json:"streamer_locked"`
	ContextLocked  bool    `json:"context_locked"`
}

// SetStreamerCommand is the set_streamer payload.
type SetStreamerCommand struct {
	StreamerID StreamerID `json:"streamer_id"`
}

// SetManualContextCommand is the set_manual_context payload.
type SetManualContextCommand struct {
	Context string `json:"context"`
}

// SetLockCommand is the payload of set_streamer_lock and set_context_lock.
type SetLockCommand struct {
	Locked bool `json:"locked"`
}

// InjectEventCommand is the payload of the manual event command.
type InjectEventCommand struct {
	SourceStr string         `json:"source_str"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Username  string         `json:"username,omitempty"`
}

// InboundEvent is a decoded Socket.IO event as received from the backend.
type InboundEvent struct {
	Name       EventName
	Payload    json.RawMessage
	ReceivedAt time.Time
}
