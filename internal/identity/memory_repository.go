package identity

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu         sync.RWMutex
	byID       map[string]Identity
	byUsername map[string]string
}

// NewMemoryStore builds an in-memory identity store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{byID: make(map[string]Identity), byUsername: make(map[string]string)}
}

func (s *memoryStore) Create(_ context.Context, ident Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := NormalizeUsername(ident.Username)
	if _, exists := s.byUsername[key]; exists {
		return ErrDuplicateUsername
	}
	s.byID[ident.ID] = ident
	s.byUsername[key] = ident.ID
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}

func (s *memoryStore) FindByUsername(_ context.Context, username string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byUsername, NormalizeUsername(ident.Username))
	return nil
}

func (s *memoryStore) SetEmailConfirmed(_ context.Context, id string) error {
	return s.update(id, func(ident *Identity) bool {
		if !ident.HasEmail() {
			return false
		}
		ident.EmailConfirmed = true
		return true
	})
}

func (s *memoryStore) SetPhoneConfirmed(_ context.Context, id string) error {
	return s.update(id, func(ident *Identity) bool {
		if !ident.HasPhone() {
			return false
		}
		ident.PhoneConfirmed = true
		return true
	})
}

func (s *memoryStore) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	return s.update(id, func(ident *Identity) bool {
		ident.PasswordHash = hash
		return true
	})
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func (s *memoryStore) update(id string, apply func(*Identity) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok || !apply(&ident) {
		return ErrNotFound
	}
	ident.UpdatedAt = time.Now().UTC()
	s.byID[id] = ident
	return nil
}
