package core

import (
	"sync/atomic"
	"time"

	"pkt.systems/directorsync/schema"
)

type storedSnapshot struct {
	value schema.DirectorSnapshot
	at    time.Time
}

// SnapshotStore holds the latest authoritative DirectorSnapshot. Replace
// swaps a private copy in one atomic store, so readers see either the old
// or the new snapshot and never a mix.
type SnapshotStore struct {
	current  atomic.Pointer[storedSnapshot]
	fallback schema.DirectorSnapshot
}

// NewSnapshotStore returns an empty store whose unset value names streamer.
func NewSnapshotStore(streamer schema.StreamerID) *SnapshotStore {
	return &SnapshotStore{fallback: schema.DefaultSnapshot(streamer)}
}

// Replace overwrites the whole snapshot.
func (s *SnapshotStore) Replace(snapshot schema.DirectorSnapshot, at time.Time) {
	s.current.Store(&storedSnapshot{value: snapshot.Clone(), at: at})
}

// Current returns a copy of the latest snapshot, or the defaults and false
// before the first snapshot arrives.
func (s *SnapshotStore) Current() (schema.DirectorSnapshot, bool) {
	stored := s.current.Load()
	if stored == nil {
		return s.fallback.Clone(), false
	}
	return stored.value.Clone(), true
}

// UpdatedAt returns when the current snapshot was stored.
func (s *SnapshotStore) UpdatedAt() time.Time {
	stored := s.current.Load()
	if stored == nil {
		return time.Time{}
	}
	return stored.at
}
