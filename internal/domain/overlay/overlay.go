// Package overlay keeps locally-known counter values that are more
// current than the last full fetch. An override, while present, wins over
// whatever the server returned; a fresh fetch never clears one by itself.
// Overrides live for the process lifetime only.
package overlay

import (
	"sync"

	"github.com/okian/drillbook/internal/domain/model"
)

// Store holds per-exercise counter overrides.
type Store struct {
	mu        sync.RWMutex
	overrides map[string]model.Counters
}

// NewStore creates an empty overlay store.
func NewStore() *Store {
	return &Store{
		overrides: make(map[string]model.Counters),
	}
}

// Merge returns the freshly fetched exercise with its counters replaced by
// the stored override, when one exists. Without an override the exercise
// is returned unchanged. Merge never mutates the store, so applying it
// repeatedly to its own output is a no-op.
func (s *Store) Merge(fresh model.Exercise) model.Exercise {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov, ok := s.overrides[fresh.ID]
	if !ok {
		return fresh
	}
	fresh.LastScore = ov.LastScore
	fresh.ExecutionCount = ov.ExecutionCount
	return fresh
}

// Set stores the override for an exercise. Setting an equal value twice
// is observably a no-op.
func (s *Store) Set(exerciseID string, c model.Counters) {
	if exerciseID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[exerciseID] = c
}

// Get returns the override for an exercise, if any.
func (s *Store) Get(exerciseID string) (model.Counters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.overrides[exerciseID]
	return c, ok
}

// Clear removes the override for an exercise.
func (s *Store) Clear(exerciseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, exerciseID)
}

// Len returns the number of stored overrides.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overrides)
}
