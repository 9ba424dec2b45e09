package core

import "pkt.systems/directorsync/schema"

// CoalesceResult reports what Coalesce did with an update.
type CoalesceResult int

const (
	// Appended means the update consumed a new slot.
	Appended CoalesceResult = iota
	// Replaced means a live partial entry was updated in place.
	Replaced
	// Dropped means the update targeted a closed session and was ignored.
	Dropped
)

func (r CoalesceResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// TranscriptLog is a BoundedLog of transcript lines that merges streaming
// partial updates sharing a session id into one entry.
type TranscriptLog struct {
	log *BoundedLog[schema.AudioLogEntry]
}

// NewTranscriptLog returns a transcript log with capacity max.
func NewTranscriptLog(max int) *TranscriptLog {
	return &TranscriptLog{log: NewBoundedLog[schema.AudioLogEntry](max)}
}

// Coalesce applies one update.
//
// Without a session id the update is always appended. Otherwise the newest
// entry of that session decides: a partial entry is replaced in place; a
// final entry closes the session, so a further partial is dropped and a
// further final starts a new entry. Unknown sessions are appended.
func (t *TranscriptLog) Coalesce(update schema.AudioLogEntry) CoalesceResult {
	if update.SessionID == "" {
		t.log.Append(update)
		return Appended
	}
	idx := t.log.findLast(func(e schema.AudioLogEntry) bool {
		return e.SessionID == update.SessionID
	})
	if idx < 0 {
		t.log.Append(update)
		return Appended
	}
	if t.log.entries[idx].IsPartial {
		t.log.set(idx, update)
		return Replaced
	}
	if update.IsPartial {
		return Dropped
	}
	t.log.Append(update)
	return Appended
}

// Current returns a copy of the transcript, oldest first.
func (t *TranscriptLog) Current() []schema.AudioLogEntry {
	return t.log.Current()
}

// Len returns the number of entries.
func (t *TranscriptLog) Len() int {
	return t.log.Len()
}
