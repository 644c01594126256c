package mailer

import (
	"context"
	"sync"
)

// MemoryLedgerStore is an in-memory LedgerStore for tests and local
// development.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{entries: make(map[string]LedgerEntry)}
}

func (s *MemoryLedgerStore) Reserve(_ context.Context, entry LedgerEntry) (bool, error) {
	if entry.Key == "" {
		return false, ErrMissingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.Key]; ok {
		return false, nil
	}
	s.entries[entry.Key] = entry
	return true, nil
}

func (s *MemoryLedgerStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryLedgerStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok, nil
}

// Len reports the number of recorded entries.
func (s *MemoryLedgerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
