package user

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) Upsert(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[u.ID]; ok {
		existing.Email = u.Email
		existing.Name = u.Name
		existing.UpdatedAt = u.UpdatedAt
		s.users[u.ID] = existing
		return nil
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customerID == "" {
		return nil, ErrUserNotFound
	}
	for _, u := range s.users {
		if u.CustomerID == customerID {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) LinkCustomer(_ context.Context, userID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.CustomerID = customerID
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}
