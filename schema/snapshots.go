package schema

import "time"

// Directive is the current instruction the director hands to the persona.
type Directive struct {
	Objective       string   `json:"objective"`
	Tone            string   `json:"tone"`
	Constraints     []string `json:"constraints"`
	TopicFocus      string   `json:"topic_focus"`
	SuggestedAction string   `json:"suggested_action"`
	Reasoning       string   `json:"reasoning"`
}

// UserFact is a remembered fact about a chat user.
type UserFact struct {
	Content    string  `json:"content"`
	Timestamp  float64 `json:"timestamp"`
	Category   string  `json:"category"`
	UsageCount int     `json:"usage_count"`
	LastUsed   float64 `json:"last_used"`
}

// UserRelationship is the persona's relationship to a chat user.
type UserRelationship struct {
	Tier     string  `json:"tier"`
	Affinity float64 `json:"affinity"`
	Vibe     string  `json:"vibe"`
}

// UserProfile is the profile of the currently active user.
type UserProfile struct {
	Username     string           `json:"username"`
	Nickname     string           `json:"nickname"`
	Role         string           `json:"role"`
	IsAdult      bool             `json:"is_adult"`
	CreatedAt    float64          `json:"created_at"`
	LastSeen     float64          `json:"last_seen"`
	Relationship UserRelationship `json:"relationship"`
	Facts        []UserFact       `json:"facts"`
	NamiOpinions []string         `json:"nami_opinions"`
}

// Memory is a retrieved memory attached to the snapshot.
type Memory struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Type   string  `json:"type"`
}

// SocialBattery tracks the persona's remaining social energy.
type SocialBattery struct {
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
	Percent float64 `json:"percent"`
}

// AdaptiveState carries the adaptive controller metrics.
type AdaptiveState struct {
	Threshold     float64       `json:"threshold"`
	State         string        `json:"state"`
	ChatVelocity  float64       `json:"chat_velocity"`
	Energy        float64       `json:"energy"`
	SocialBattery SocialBattery `json:"social_battery"`
	CurrentGoal   string        `json:"current_goal"`
	CurrentScene  string        `json:"current_scene"`
}

// DirectorSnapshot is the authoritative full state broadcast by the backend.
// It is always replaced wholesale.
type DirectorSnapshot struct {
	Summary           string        `json:"summary"`
	RawContext        string        `json:"raw_context"`
	Prediction        string        `json:"prediction"`
	Mood              string        `json:"mood"`
	ConversationState string        `json:"conversation_state"`
	Flow              string        `json:"flow"`
	Intent            string        `json:"intent"`
	ActiveUser        *UserProfile  `json:"active_user"`
	Memories          []Memory      `json:"memories"`
	Directive         *Directive    `json:"directive"`
	Adaptive          AdaptiveState `json:"adaptive"`
	ManualContext     string        `json:"manual_context"`
	CurrentStreamer   StreamerID    `json:"current_streamer"`
	StreamerLocked    bool          `json:"streamer_locked"`
	ContextLocked     bool          `json:"context_locked"`
}

const (
	// DefaultMood is shown before the first snapshot arrives.
	DefaultMood = "Neutral"
	// DefaultConversationState is shown before the first snapshot arrives.
	DefaultConversationState = "IDLE"
	// DefaultStreamer is the streamer assumed when none is known.
	DefaultStreamer StreamerID = "peepingotter"
	// DefaultStreamerDisplayName is the display name of DefaultStreamer.
	DefaultStreamerDisplayName = "PeepingOtter"
	// DefaultBotName is the chat username used for bot replies.
	DefaultBotName = "Nami"
)

// DefaultSnapshot returns the unset snapshot surfaced before the first
// director_state arrives.
func DefaultSnapshot(streamer StreamerID) DirectorSnapshot {
	if streamer == "" {
		streamer = DefaultStreamer
	}
	return DirectorSnapshot{
		Mood:              DefaultMood,
		ConversationState: DefaultConversationState,
		CurrentStreamer:   streamer,
	}
}

// DefaultStreamers is the fallback streamer list.
func DefaultStreamers() []Streamer {
	return []Streamer{{ID: DefaultStreamer, DisplayName: DefaultStreamerDisplayName}}
}

// Clone returns a deep copy of the snapshot.
func (s DirectorSnapshot) Clone() DirectorSnapshot {
	out := s
	if s.ActiveUser != nil {
		user := *s.ActiveUser
		user.Facts = append([]UserFact(nil), s.ActiveUser.Facts...)
		user.NamiOpinions = append([]string(nil), s.ActiveUser.NamiOpinions...)
		out.ActiveUser = &user
	}
	if s.Memories != nil {
		out.Memories = append([]Memory(nil), s.Memories...)
	}
	if s.Directive != nil {
		directive := *s.Directive
		directive.Constraints = append([]string(nil), s.Directive.Constraints...)
		out.Directive = &directive
	}
	return out
}

// AudioLogEntry is one line of the coalesced transcript log.
type AudioLogEntry struct {
	Text      string    `json:"text"`
	SessionID SessionID `json:"session_id,omitempty"`
	IsPartial bool      `json:"is_partial"`
}

// ChatMessage is a stored chat line. IsMention is computed once at ingestion.
type ChatMessage struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	IsBot     bool      `json:"is_bot"`
	IsMention bool      `json:"is_mention"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoreEntry is a stored interest score.
type ScoreEntry struct {
	Score     float64   `json:"score"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoreSummary aggregates the trailing window of scores.
type ScoreSummary struct {
	Count  int          `json:"count"`
	Mean   float64      `json:"mean"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	Latest *ScoreEntry  `json:"latest,omitempty"`
	Recent []ScoreEntry `json:"recent"`
}

// LockState is the effective lock and manual-context view: the latest
// snapshot values overlaid with local optimistic changes.
type LockState struct {
	StreamerLocked  bool       `json:"streamer_locked"`
	ContextLocked   bool       `json:"context_locked"`
	ManualContext   string     `json:"manual_context"`
	CurrentStreamer StreamerID `json:"current_streamer"`
}
