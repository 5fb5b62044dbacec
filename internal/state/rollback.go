package state

import "sort"

// RollBack stores a timeline of values tagged by the height at which each
// was set: a small append-only vector with binary search by height, rather
// than a persistent tree, per spec.md §9.
type RollBack[T any] struct {
	entries []rollbackEntry[T]
}

type rollbackEntry[T any] struct {
	height uint32
	value  T
}

// Set appends a new value effective as of height. Callers must call Set with
// non-decreasing heights; height ties overwrite the most recent entry for
// that height.
func (r *RollBack[T]) Set(height uint32, value T) {
	if n := len(r.entries); n > 0 && r.entries[n-1].height == height {
		r.entries[n-1].value = value
		return
	}
	r.entries = append(r.entries, rollbackEntry[T]{height: height, value: value})
}

// Get returns the value effective at height (the latest entry with
// entry.height <= height) and whether one exists.
func (r *RollBack[T]) Get(height uint32) (T, bool) {
	var zero T
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].height > height
	})
	if i == 0 {
		return zero, false
	}
	return r.entries[i-1].value, true
}

// Latest returns the most recently set value.
func (r *RollBack[T]) Latest() (T, bool) {
	var zero T
	if len(r.entries) == 0 {
		return zero, false
	}
	return r.entries[len(r.entries)-1].value, true
}

// RollBack walks the timeline back to just before height, discarding every
// entry at or above it — used by disconnect to undo mutations made at or
// above the height being rolled back past.
func (r *RollBack[T]) RollBack(height uint32) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].height >= height
	})
	r.entries = r.entries[:i]
}
