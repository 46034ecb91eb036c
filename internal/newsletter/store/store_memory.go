package store

import (
	"context"
	"sync"
	"time"

	"mailomat/internal/newsletter/models"
)

type entry struct {
	report    *models.DispatchReport
	expiresAt time.Time
}

// InMemory keeps keys in a map. Expired keys are dropped lazily on access.
type InMemory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

// Begin claims key. It returns the saved report when the key already completed,
// ErrInFlight while another dispatch holds it, and (nil, nil) once claimed.
func (s *InMemory) Begin(_ context.Context, key string) (*models.DispatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if e.report == nil {
			return nil, ErrInFlight
		}
		saved := *e.report
		return &saved, nil
	}
	s.entries[key] = entry{expiresAt: now.Add(s.ttl)}
	return nil, nil
}

func (s *InMemory) Complete(_ context.Context, key string, report *models.DispatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *report
	s.entries[key] = entry{report: &saved, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *InMemory) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
