package store

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"mailomat/internal/subscription/models"
	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded subscription store. The single lock gives the same
// atomicity the Postgres store gets from its transaction.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.SubscriberID]*models.SubscriptionRecord
	byEmail map[string]id.SubscriberID
	tokens  map[string]id.SubscriberID
	tokenOf map[id.SubscriberID]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.SubscriberID]*models.SubscriptionRecord),
		byEmail: make(map[string]id.SubscriberID),
		tokens:  make(map[string]id.SubscriberID),
		tokenOf: make(map[id.SubscriberID]string),
	}
}

func (s *InMemory) InsertPending(_ context.Context, in models.PendingInsert) (*models.PendingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := in.Subscriber.Email()
	if existingID, ok := s.byEmail[email]; ok {
		rec := s.byID[existingID]
		res := &models.PendingResult{ID: rec.ID, Token: s.tokenOf[rec.ID], Status: rec.Status}
		if rec.Status == models.StatusPendingConfirmation && resendDue(rec.NotifiedAt, in.SubscribedAt, in.ResendAfter) {
			now := in.SubscribedAt
			rec.NotifiedAt = &now
			res.Notify = true
		}
		return res, nil
	}

	if _, taken := s.tokens[in.Token]; taken {
		return nil, sentinel.ErrAlreadyUsed
	}
	now := in.SubscribedAt
	rec := &models.SubscriptionRecord{
		ID:           in.ID,
		Email:        email,
		Name:         in.Subscriber.Name(),
		Status:       models.StatusPendingConfirmation,
		SubscribedAt: in.SubscribedAt,
		NotifiedAt:   &now,
	}
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	s.tokens[in.Token] = rec.ID
	s.tokenOf[rec.ID] = in.Token

	return &models.PendingResult{
		ID:      rec.ID,
		Token:   in.Token,
		Status:  rec.Status,
		Created: true,
		Notify:  true,
	}, nil
}

func (s *InMemory) ReleaseNotification(_ context.Context, subscriberID id.SubscriberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[subscriberID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.NotifiedAt = nil
	return nil
}

func (s *InMemory) Confirm(_ context.Context, subscriberID id.SubscriberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[subscriberID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !rec.Status.CanTransitionTo(models.StatusConfirmed) {
		return sentinel.ErrInvalidState
	}
	rec.Status = models.StatusConfirmed
	return nil
}

func (s *InMemory) FindByToken(_ context.Context, token string) (id.SubscriberID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subscriberID, ok := s.tokens[token]; ok {
		return subscriberID, nil
	}
	return id.SubscriberID{}, sentinel.ErrNotFound
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subscriberID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec := *s.byID[subscriberID]
	return &rec, nil
}

// ListConfirmed yields a snapshot taken when iteration starts, ordered by email.
func (s *InMemory) ListConfirmed(_ context.Context) iter.Seq2[models.Recipient, error] {
	return func(yield func(models.Recipient, error) bool) {
		s.mu.RLock()
		recipients := make([]models.Recipient, 0, len(s.byID))
		for _, rec := range s.byID {
			if rec.IsConfirmed() {
				recipients = append(recipients, models.Recipient{Email: rec.Email, Name: rec.Name})
			}
		}
		s.mu.RUnlock()

		sort.Slice(recipients, func(i, j int) bool { return recipients[i].Email < recipients[j].Email })
		for _, r := range recipients {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func resendDue(notifiedAt *time.Time, now time.Time, cooldown time.Duration) bool {
	return notifiedAt == nil || !notifiedAt.After(now.Add(-cooldown))
}
