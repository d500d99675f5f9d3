// Package seen holds the dedup ledger: the set of entry identifiers
// already surfaced to the user. The set only grows; entries are never
// un-seen. It is persisted as a flat list of strings and reloaded in
// full at startup.
package seen

import (
	"sort"
	"sync"
)

// Set is a concurrency-safe set of seen entry IDs.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSet returns a Set pre-populated with the given IDs.
func NewSet(ids []string) *Set {
	s := &Set{ids: make(map[string]struct{}, len(ids))}
	s.Restore(ids)
	return s
}

// IsNew reports whether the ID has not been marked seen.
func (s *Set) IsNew(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return !ok
}

// MarkSeen records the ID. After this call IsNew returns false for the
// ID for the remainder of the process and after any restore that
// includes a snapshot taken later.
func (s *Set) MarkSeen(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Restore merges the given IDs into the set.
func (s *Set) Restore(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Snapshot returns the set contents sorted, for deterministic
// persistence.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of seen IDs.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
