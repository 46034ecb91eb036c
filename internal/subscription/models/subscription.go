package models

import (
	"time"

	id "mailomat/pkg/domain"
)

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
)

func (s Status) IsValid() bool {
	return s == StatusPendingConfirmation || s == StatusConfirmed
}

// CanTransitionTo allows pending to confirmed, plus confirmed to confirmed as a no-op.
// Nothing ever returns to pending.
func (s Status) CanTransitionTo(next Status) bool {
	return next == StatusConfirmed && s.IsValid()
}

// SubscriptionRecord is the stored subscriber.
type SubscriptionRecord struct {
	ID           id.SubscriberID
	Email        string
	Name         string
	Status       Status
	SubscribedAt time.Time
	// NotifiedAt is when the last confirmation email was claimed; nil after a failed send.
	NotifiedAt *time.Time
}

func (r *SubscriptionRecord) IsConfirmed() bool {
	return r.Status == StatusConfirmed
}

// Recipient is the newsletter fan-out projection of a confirmed subscriber.
type Recipient struct {
	Email string
	Name  string
}

// PendingInsert is what the workflow asks the store to persist for a new subscription.
type PendingInsert struct {
	ID           id.SubscriberID
	Subscriber   ValidSubscriber
	Token        string
	SubscribedAt time.Time
	// ResendAfter: an existing pending record is re-notified only if its last
	// notification is older than this.
	ResendAfter time.Duration
}

// PendingResult describes the record that now exists for the email.
type PendingResult struct {
	ID     id.SubscriberID
	Token  string
	Status Status
	// Created is true when this call inserted the record.
	Created bool
	// Notify is true when this call claimed the right to send the confirmation email.
	Notify bool
}
