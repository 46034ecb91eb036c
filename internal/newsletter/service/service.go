// Package service broadcasts newsletters to confirmed subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mailomat/internal/audit"
	"mailomat/internal/auth"
	authmodels "mailomat/internal/auth/models"
	"mailomat/internal/email"
	"mailomat/internal/newsletter/metrics"
	"mailomat/internal/newsletter/models"
	"mailomat/internal/newsletter/store"
	submodels "mailomat/internal/subscription/models"
	dErrors "mailomat/pkg/domain-errors"
	"mailomat/pkg/platform/sentinel"
	"mailomat/pkg/requestcontext"
)

const maxIdempotencyKeyLen = 255

type Gate interface {
	Check(ctx context.Context, header string) (*authmodels.Operator, error)
}

type RecipientSource interface {
	ListConfirmed(ctx context.Context) iter.Seq2[submodels.Recipient, error]
}

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*models.DispatchReport, error)
	Complete(ctx context.Context, key string, report *models.DispatchReport) error
	Abandon(ctx context.Context, key string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher authenticates the operator, then sends one email per confirmed
// subscriber. A failed recipient never stops the others.
type Dispatcher struct {
	gate           Gate
	recipients     RecipientSource
	sender         EmailSender
	idempotency    IdempotencyStore
	concurrency    int
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(d *Dispatcher) {
		d.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// WithConcurrency bounds the number of sends in flight. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.concurrency = max(n, 1)
	}
}

func WithIdempotencyStore(s IdempotencyStore) Option {
	return func(d *Dispatcher) {
		d.idempotency = s
	}
}

func New(gate Gate, recipients RecipientSource, sender EmailSender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gate:        gate,
		recipients:  recipients,
		sender:      sender,
		idempotency: store.NewInMemory(24 * time.Hour),
		concurrency: 8,
		logger:      slog.Default(),
		tracer:      otel.Tracer("mailomat/newsletter"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Authenticate runs only the auth gate.
func (d *Dispatcher) Authenticate(ctx context.Context, header string) error {
	_, err := d.authenticate(ctx, header)
	return err
}

// Broadcast sends n to every confirmed subscriber. The report is returned with a
// delivery_failed error when any recipient was not delivered. A non-empty
// idempotencyKey replays the saved report of an earlier call by the same operator.
func (d *Dispatcher) Broadcast(ctx context.Context, header string, n models.Newsletter, idempotencyKey string) (*models.DispatchReport, error) {
	ctx, span := d.tracer.Start(ctx, "newsletter.Broadcast")
	defer span.End()

	op, err := d.authenticate(ctx, header)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		d.incDispatch("rejected")
		return nil, err
	}
	span.SetAttributes(attribute.String("operator.id", op.ID.String()))

	if err := n.Validate(); err != nil {
		d.incDispatch("rejected")
		return nil, err
	}
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		return nil, dErrors.New(dErrors.CodeBadRequest, "idempotency key is too long")
	}

	var scopedKey string
	if idempotencyKey != "" {
		scopedKey = op.ID.String() + ":" + idempotencyKey
		saved, err := d.idempotency.Begin(ctx, scopedKey)
		switch {
		case errors.Is(err, store.ErrInFlight):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "a dispatch with this idempotency key is in progress")
		case errors.Is(err, sentinel.ErrUnavailable):
			return nil, dErrors.Wrap(err, dErrors.CodeServiceUnavailable, "idempotency store is unavailable")
		case err != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
		case saved != nil:
			span.SetAttributes(attribute.Bool("newsletter.replayed", true))
			d.incDispatch("replayed")
			return outcome(saved)
		}
	}

	recipients, err := d.snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list recipients failed")
		d.abandon(ctx, scopedKey)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list confirmed subscribers")
	}
	span.SetAttributes(attribute.Int("newsletter.recipients", len(recipients)))

	start := time.Now()
	report := d.fanOut(ctx, recipients, n)
	d.observe(start, report)

	if scopedKey != "" {
		if err := d.idempotency.Complete(context.WithoutCancel(ctx), scopedKey, report); err != nil {
			d.logger.ErrorContext(ctx, "failed to save dispatch report",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	d.logger.InfoContext(ctx, "newsletter dispatched",
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", op.ID,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", len(report.Failures),
		"skipped", report.Skipped,
	)
	d.emitAudit(ctx, audit.Event{
		Action:  audit.ActionNewsletterDispatched,
		Subject: idempotencyKey,
		ActorID: op.ID.String(),
		Count:   report.Delivered,
	})

	if !report.Complete() {
		span.SetStatus(codes.Error, "partial delivery")
	}
	return outcome(report)
}

func (d *Dispatcher) authenticate(ctx context.Context, header string) (*authmodels.Operator, error) {
	op, err := d.gate.Check(ctx, header)
	if err != nil {
		if kind := auth.KindOf(err); kind != "" && kind != auth.KindStore {
			d.emitAudit(ctx, audit.Event{
				Action: audit.ActionOperatorAuthFailed,
				Reason: string(kind),
			})
		}
		return nil, auth.ToDomain(err)
	}
	return op, nil
}

// snapshot reads every recipient before the first send so no store cursor stays
// open while emails go out.
func (d *Dispatcher) snapshot(ctx context.Context) ([]submodels.Recipient, error) {
	var recipients []submodels.Recipient
	for r, err := range d.recipients.ListConfirmed(ctx) {
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// fanOut sends on a context detached from ctx, so sends already started finish
// when the caller disconnects. Recipients not started by then are skipped.
// An expired deadline on ctx is not a disconnect and stops nothing.
func (d *Dispatcher) fanOut(ctx context.Context, recipients []submodels.Recipient, n models.Newsletter) *models.DispatchReport {
	report := &models.DispatchReport{Failures: []models.Failure{}}
	var mu sync.Mutex
	sendCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			if callerGone(ctx) {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}
			err := d.sender.Send(sendCtx, email.Message{
				To:      r.Email,
				Subject: n.Title,
				HTML:    n.Content.HTML,
				Text:    n.Content.Text,
			})

			mu.Lock()
			defer mu.Unlock()
			report.Attempted++
			if err != nil {
				report.Failures = append(report.Failures, models.Failure{Email: r.Email, Reason: err.Error()})
				d.logger.WarnContext(ctx, "newsletter delivery failed",
					"request_id", requestcontext.RequestID(ctx),
					"recipient_email", r.Email,
					"error", err,
				)
				return nil
			}
			report.Delivered++
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func callerGone(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), context.DeadlineExceeded)
}

func outcome(report *models.DispatchReport) (*models.DispatchReport, error) {
	if report.Complete() {
		return report, nil
	}
	total := report.Attempted + report.Skipped
	return report, dErrors.New(dErrors.CodeDeliveryFailed,
		fmt.Sprintf("%d of %d recipients were not delivered", report.Undelivered(), total))
}

func (d *Dispatcher) abandon(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := d.idempotency.Abandon(context.WithoutCancel(ctx), key); err != nil {
		d.logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
	}
}

func (d *Dispatcher) emitAudit(ctx context.Context, event audit.Event) {
	if d.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	_ = d.auditPublisher.Emit(ctx, event)
}

func (d *Dispatcher) observe(start time.Time, report *models.DispatchReport) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveDispatch(start)
	d.metrics.Recipients.WithLabelValues("delivered").Add(float64(report.Delivered))
	d.metrics.Recipients.WithLabelValues("failed").Add(float64(len(report.Failures)))
	d.metrics.Recipients.WithLabelValues("skipped").Add(float64(report.Skipped))
	if report.Complete() {
		d.metrics.Dispatches.WithLabelValues("complete").Inc()
	} else {
		d.metrics.Dispatches.WithLabelValues("partial").Inc()
	}
}

func (d *Dispatcher) incDispatch(result string) {
	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(result).Inc()
	}
}
