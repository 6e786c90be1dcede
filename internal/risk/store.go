package risk

import (
	"context"
	"sync"
)

// Store maps subject identities to the last risk level reported for
// them. Unseen subjects are Low.
type Store interface {
	Get(ctx context.Context, subject string) (Level, error)
	Set(ctx context.Context, subject string, level Level) error
}

// MemoryStore is the default in-process Store. State does not survive a
// restart; after a cold start every subject reads as Low again.
type MemoryStore struct {
	mu     sync.RWMutex
	levels map[string]Level
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		levels: make(map[string]Level),
	}
}

func (s *MemoryStore) Get(ctx context.Context, subject string) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.levels[subject], nil
}

func (s *MemoryStore) Set(ctx context.Context, subject string, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[subject] = level
	return nil
}
