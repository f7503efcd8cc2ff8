// Package changes tracks per-element style and text edits keyed by
// selector key, and replays them into a document.
package changes

import "sync"

// ChangeSet maps a serialised selector key to property -> value. Last write
// per property wins; insertion order is irrelevant.
type ChangeSet map[string]map[string]string

// Clone returns a deep copy.
func (cs ChangeSet) Clone() ChangeSet {
	out := make(ChangeSet, len(cs))
	for k, props := range cs {
		m := make(map[string]string, len(props))
		for p, v := range props {
			m[p] = v
		}
		out[k] = m
	}
	return out
}

// Store is the in-memory change map of one browsing session.
//
// It keeps two views: the session view written by Record, and the durable
// baseline (what was last loaded or saved). BeginTracking resets a key's
// session entry to its baseline, so re-selecting an element never drops
// values durable storage still holds.
type Store struct {
	mu       sync.Mutex
	current  ChangeSet
	baseline ChangeSet
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{current: ChangeSet{}, baseline: ChangeSet{}}
}

// Rehydrate replaces both views with a copy of cs (typically just loaded
// from persistence).
func (s *Store) Rehydrate(cs ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cs.Clone()
	s.baseline = cs.Clone()
}

// BeginTracking (re)initialises key's entry. This is a reset, not a merge:
// whatever the session recorded for key since the last save is discarded.
func (s *Store) BeginTracking(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]string, len(s.baseline[key]))
	for p, v := range s.baseline[key] {
		m[p] = v
	}
	s.current[key] = m
}

// Record upserts value for property under key.
func (s *Store) Record(key, property, value string) error {
	if _, err := Lookup(property); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.current[key]
	if !ok {
		m = make(map[string]string)
		s.current[key] = m
	}
	m[property] = value
	return nil
}

// Tracked returns a copy of key's entry, or nil.
func (s *Store) Tracked(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.current[key]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(props))
	for p, v := range props {
		out[p] = v
	}
	return out
}

// SnapshotAll returns the live session map. Callers must not assume it is
// immutable; use Commit or Clone for a stable copy.
func (s *Store) SnapshotAll() ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshot returns a deep copy of the session view without committing it.
func (s *Store) Snapshot() ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Commit returns a deep copy of the session view and makes it the new
// baseline. Every save path goes through Commit.
func (s *Store) Commit() ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = s.current.Clone()
	return s.current.Clone()
}
