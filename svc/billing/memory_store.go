package billing

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by record id
	seq     int64
	order   map[string]int64 // insertion order for stable listing
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		order:   make(map[string]int64),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID.String()
	if _, exists := s.records[id]; exists {
		return ErrRecordAlreadyExists
	}
	s.seq++
	s.records[id] = rec
	s.order[id] = s.seq
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].ID.String()] < s.order[out[j].ID.String()]
	})
	return out, nil
}

func (s *MemoryStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.SubscriptionID == subscriptionID {
			found := rec
			return &found, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.records {
		if existing.SubscriptionID == rec.SubscriptionID && existing.UserID == rec.UserID {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			s.records[id] = rec
			return nil
		}
	}

	s.seq++
	id := rec.ID.String()
	s.records[id] = rec
	s.order[id] = s.seq
	return nil
}

func (s *MemoryStore) DeleteBySubscriptionID(_ context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.SubscriptionID == subscriptionID {
			delete(s.records, id)
			delete(s.order, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteFreeByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.UserID == userID && rec.IsFree() {
			delete(s.records, id)
			delete(s.order, id)
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
