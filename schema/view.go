package schema

import "time"

// View is the complete consumer-facing state at one instant.
type View struct {
	Connection ConnectionState `json:"connection"`
	// Stale is set while the transport is not connected; every value below
	// is then the last known state or the documented defaults.
	Stale       bool              `json:"stale"`
	HasSnapshot bool              `json:"has_snapshot"`
	Snapshot    DirectorSnapshot  `json:"snapshot"`
	SnapshotAt  time.Time         `json:"snapshot_at,omitzero"`
	Locks       LockState         `json:"locks"`
	Pending     PendingSuggestion `json:"pending_suggestion"`
	VisionLog   []string          `json:"vision_log"`
	SpokenLog   []string          `json:"spoken_log"`
	AudioLog    []AudioLogEntry   `json:"audio_log"`
	Chat        []ChatMessage     `json:"chat"`
	Replies     []BotReply        `json:"replies"`
	Scores      []ScoreEntry      `json:"scores"`
	Summary     ScoreSummary      `json:"score_summary"`
}

// PendingSuggestion is the held AI context suggestion. Present is false
// when the slot is empty.
type PendingSuggestion struct {
	Value   string `json:"value"`
	Present bool   `json:"present"`
}
