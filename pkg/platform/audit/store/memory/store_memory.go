package memory

import (
	"context"
	"sync"

	audit "mfrid/pkg/platform/audit"
)

// InMemoryStore keeps events for the life of the process. Used when no
// Redis URL is configured, and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	limit  int
}

// NewInMemoryStore keeps at most limit events, discarding the oldest. A
// limit of zero keeps everything.
func NewInMemoryStore(limit int) *InMemoryStore {
	return &InMemoryStore{limit: limit}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append([]audit.Event(nil), s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

// ListRecent returns the last limit events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	return append([]audit.Event{}, s.events[start:]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
