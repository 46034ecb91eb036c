package audit

import "time"

// Category controls routing and retention downstream.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

// Action names a recorded event.
type Action string

const (
	ActionSubscriptionRequested Action = "subscription_requested"
	ActionConfirmationSent      Action = "confirmation_sent"
	ActionConfirmationFailed    Action = "confirmation_email_failed"
	ActionSubscriptionConfirmed Action = "subscription_confirmed"
	ActionNewsletterDispatched  Action = "newsletter_dispatched"
	ActionOperatorAuthFailed    Action = "operator_auth_failed"
)

var categories = map[Action]Category{
	ActionSubscriptionRequested: CategoryCompliance,
	ActionSubscriptionConfirmed: CategoryCompliance,
	ActionOperatorAuthFailed:    CategorySecurity,
}

// Category defaults to operations for unlisted actions.
func (a Action) Category() Category {
	if c, ok := categories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It never carries
// an email address or a confirmation token.
type Event struct {
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// Subject is the affected subscriber id, or the newsletter idempotency key.
	Subject   string `json:"subject,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Count     int    `json:"count,omitempty"`
}
