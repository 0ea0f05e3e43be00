package memory

import (
	"context"
	"sync"
)

// InMemoryStore keeps transcripts in process. Used when no redis address
// is configured, and in tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]Turn
	summaries map[string]Summary
}

// NewInMemoryStore creates an empty in-process memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:     map[string][]Turn{},
		summaries: map[string]Summary{},
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) AppendTurn(_ context.Context, sessionID string, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], t)
	return nil
}

func (s *InMemoryStore) Turns(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.turns[sessionID]
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) SaveSummary(_ context.Context, sessionID string, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = sum
	return nil
}

func (s *InMemoryStore) LoadSummary(_ context.Context, sessionID string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[sessionID], nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	delete(s.summaries, sessionID)
	return nil
}
