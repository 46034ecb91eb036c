// Package service runs the subscribe and confirm workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mailomat/internal/audit"
	"mailomat/internal/email"
	"mailomat/internal/subscription/metrics"
	"mailomat/internal/subscription/models"
	"mailomat/internal/subscription/token"
	id "mailomat/pkg/domain"
	dErrors "mailomat/pkg/domain-errors"
	"mailomat/pkg/platform/sentinel"
	"mailomat/pkg/requestcontext"
)

type Store interface {
	InsertPending(ctx context.Context, in models.PendingInsert) (*models.PendingResult, error)
	ReleaseNotification(ctx context.Context, subscriberID id.SubscriberID) error
	Confirm(ctx context.Context, subscriberID id.SubscriberID) error
}

type TokenResolver interface {
	Resolve(ctx context.Context, token string) (id.SubscriberID, error)
}

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SubscribeResult reports what Subscribe did for the submitted address.
type SubscribeResult struct {
	ID        id.SubscriberID
	Status    models.Status
	Created   bool
	EmailSent bool
}

// Service orchestrates subscription requests and confirmations.
type Service struct {
	store          Store
	tokens         TokenResolver
	sender         EmailSender
	confirmURL     *url.URL
	resendAfter    time.Duration
	issueToken     func() (string, error)
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithResendCooldown sets how long a pending subscriber waits before a repeat
// request triggers another confirmation email.
func WithResendCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.resendAfter = d
	}
}

// WithTokenIssuer replaces token.Issue.
func WithTokenIssuer(issue func() (string, error)) Option {
	return func(s *Service) {
		s.issueToken = issue
	}
}

// New builds the service. baseURL is the public address confirmation links point at.
func New(store Store, tokens TokenResolver, sender EmailSender, baseURL string, opts ...Option) (*Service, error) {
	confirmURL, err := confirmationEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:       store,
		tokens:      tokens,
		sender:      sender,
		confirmURL:  confirmURL,
		resendAfter: 10 * time.Minute,
		issueToken:  token.Issue,
		logger:      slog.Default(),
		tracer:      otel.Tracer("mailomat/subscription"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe validates the submission, stores it as pending and sends the
// confirmation email when this call owns the notification. A failed email
// leaves the record in place and is reported as an internal error.
func (s *Service) Subscribe(ctx context.Context, raw models.RawSubscriber) (*SubscribeResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "subscription.Subscribe")
	defer span.End()
	defer s.observeSubscribe(start)

	valid, err := raw.Validate()
	if err != nil {
		span.SetStatus(codes.Error, "invalid subscriber")
		return nil, err
	}

	tok, err := s.issueToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue confirmation token")
	}

	res, err := s.store.InsertPending(ctx, models.PendingInsert{
		ID:           id.NewSubscriberID(),
		Subscriber:   valid,
		Token:        tok,
		SubscribedAt: requestcontext.Now(ctx),
		ResendAfter:  s.resendAfter,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store subscriber")
	}
	span.SetAttributes(
		attribute.String("subscriber.id", res.ID.String()),
		attribute.Bool("subscription.created", res.Created),
		attribute.Bool("subscription.notify", res.Notify),
	)

	result := &SubscribeResult{ID: res.ID, Status: res.Status, Created: res.Created}
	if res.Created {
		s.incCreated()
		s.logAudit(ctx, audit.ActionSubscriptionRequested, res.ID.String(), "")
	}
	if !res.Notify {
		s.logger.InfoContext(ctx, "confirmation email not resent",
			"request_id", requestcontext.RequestID(ctx),
			"subscriber_id", res.ID,
			"status", res.Status,
		)
		return result, nil
	}

	msg := confirmationMessage(valid.Email(), valid.Name(), s.confirmationLink(res.Token))
	if err := s.sender.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirmation email failed")
		s.incEmail("failure")
		s.releaseNotification(ctx, res.ID)
		s.logger.ErrorContext(ctx, "failed to send confirmation email",
			"request_id", requestcontext.RequestID(ctx),
			"subscriber_id", res.ID,
			"error", err,
		)
		s.logAudit(ctx, audit.ActionConfirmationFailed, res.ID.String(), err.Error())
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to send confirmation email")
	}
	s.incEmail("success")
	s.logAudit(ctx, audit.ActionConfirmationSent, res.ID.String(), "")
	result.EmailSent = true
	return result, nil
}

// Confirm marks the subscriber owning tok as confirmed. Confirming twice succeeds.
func (s *Service) Confirm(ctx context.Context, tok string) error {
	ctx, span := s.tracer.Start(ctx, "subscription.Confirm")
	defer span.End()

	if tok == "" {
		return dErrors.New(dErrors.CodeBadRequest, "confirmation token is required")
	}

	subscriberID, err := s.tokens.Resolve(ctx, tok)
	if err != nil {
		span.SetStatus(codes.Error, "token not resolved")
		if errors.Is(err, token.ErrTokenNotFound) {
			return dErrors.Wrap(err, dErrors.CodeUnauthorized, "unknown confirmation token")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve confirmation token")
	}
	span.SetAttributes(attribute.String("subscriber.id", subscriberID.String()))

	if err := s.store.Confirm(ctx, subscriberID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(token.ErrTokenNotFound, dErrors.CodeUnauthorized, "unknown confirmation token")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm subscriber")
	}

	if s.metrics != nil {
		s.metrics.SubscriptionsConfirmed.Inc()
	}
	s.logAudit(ctx, audit.ActionSubscriptionConfirmed, subscriberID.String(), "")
	return nil
}

// releaseNotification lets the next request for the same address retry the email.
// It runs detached from ctx so a cancelled request still releases the claim.
func (s *Service) releaseNotification(ctx context.Context, subscriberID id.SubscriberID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.ReleaseNotification(ctx, subscriberID); err != nil {
		s.logger.WarnContext(ctx, "failed to release confirmation claim",
			"subscriber_id", subscriberID,
			"error", err,
		)
	}
}

func (s *Service) confirmationLink(tok string) string {
	u := *s.confirmURL
	u.RawQuery = url.Values{"token": {tok}}.Encode()
	return u.String()
}

func confirmationEndpoint(baseURL string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	return u.JoinPath("subscriptions", "confirm"), nil
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, subject, reason string) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, string(action),
		"subject", subject,
		"request_id", requestID,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Action:    action,
		Subject:   subject,
		Reason:    reason,
		RequestID: requestID,
	})
}

func (s *Service) observeSubscribe(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSubscribe(start)
	}
}

func (s *Service) incCreated() {
	if s.metrics != nil {
		s.metrics.SubscriptionsCreated.Inc()
	}
}

func (s *Service) incEmail(outcome string) {
	if s.metrics != nil {
		s.metrics.IncConfirmationEmail(outcome)
	}
}
