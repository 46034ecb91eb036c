package store

import (
	"context"
	"sync"

	"mailomat/internal/auth/models"
	"mailomat/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	byUsername map[string]models.Operator
}

func NewInMemory() *InMemory {
	return &InMemory{byUsername: make(map[string]models.Operator)}
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.byUsername[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &op, nil
}

// Upsert stores op, keeping the original id and creation time when the username exists.
func (s *InMemory) Upsert(_ context.Context, op *models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byUsername[op.Username]; ok {
		existing.PasswordHash = op.PasswordHash
		s.byUsername[op.Username] = existing
		return nil
	}
	s.byUsername[op.Username] = *op
	return nil
}
