package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory event log for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ev := range s.events {
		if ev.UserID == userID && !ev.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) FirstEventAt(_ context.Context, userID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first *time.Time
	for _, ev := range s.events {
		if ev.UserID != userID {
			continue
		}
		t := ev.CreatedAt
		if first == nil || t.Before(*first) {
			first = &t
		}
	}
	return first, nil
}

var _ Store = (*MemoryStore)(nil)
