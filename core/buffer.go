package core

import "pkt.systems/directorsync/schema"

const defaultMaxEntries = schema.DefaultLogMax

// BoundedLog is an insertion-ordered log holding at most max entries.
// When full, Append evicts from the front so only the newest max survive.
// It is not safe for concurrent use; the service serialises writers.
type BoundedLog[T any] struct {
	entries []T
	max     int
}

// NewBoundedLog returns a log with the given capacity. A non-positive
// capacity falls back to the default.
func NewBoundedLog[T any](max int) *BoundedLog[T] {
	if max <= 0 {
		max = defaultMaxEntries
	}
	return &BoundedLog[T]{max: max}
}

// Append adds entry at the end, evicting the oldest entries on overflow.
func (l *BoundedLog[T]) Append(entry T) {
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		trim := len(l.entries) - l.max
		n := copy(l.entries, l.entries[trim:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
	}
}

// Current returns a copy of the entries, oldest first.
func (l *BoundedLog[T]) Current() []T {
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns a copy of the newest k entries, oldest first.
func (l *BoundedLog[T]) Last(k int) []T {
	if k <= 0 {
		return []T{}
	}
	start := len(l.entries) - k
	if start < 0 {
		start = 0
	}
	out := make([]T, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of stored entries.
func (l *BoundedLog[T]) Len() int {
	return len(l.entries)
}

// Cap returns the capacity.
func (l *BoundedLog[T]) Cap() int {
	return l.max
}

// findLast returns the index of the newest entry matching fn, or -1.
func (l *BoundedLog[T]) findLast(fn func(T) bool) int {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if fn(l.entries[i]) {
			return i
		}
	}
	return -1
}

// set replaces the entry at index i. It never changes the length.
func (l *BoundedLog[T]) set(i int, entry T) {
	l.entries[i] = entry
}
