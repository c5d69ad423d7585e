package store

import (
	"sync"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

var (
	// ErrNotFound is returned while the cache has never been populated.
	ErrNotFound = coherence.ErrNoSnapshot
)

// MemoryStore is a concurrency-safe holder of the current snapshot.
// Writes replace the whole value; reads return a deep copy.
type MemoryStore struct {
	mu sync.RWMutex

	current *coherence.Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the current snapshot.
func (s *MemoryStore) Save(snapshot coherence.Snapshot) {
	c := snapshot.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &c
}

// SaveIfNewer replaces the current snapshot only if the store is empty or
// holds an older one.
func (s *MemoryStore) SaveIfNewer(snapshot coherence.Snapshot) bool {
	c := snapshot.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !c.Timestamp.After(s.current.Timestamp) {
		return false
	}
	s.current = &c
	return true
}

// Latest returns a copy of the current snapshot.
func (s *MemoryStore) Latest() (coherence.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return coherence.Snapshot{}, ErrNotFound
	}
	return s.current.Clone(), nil
}
