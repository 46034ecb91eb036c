package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store appends events to a sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps events and hands them to a Worker through a bounded inbox.
// Emit never blocks the caller; when the inbox is full the event is dropped and logged.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher returns a publisher and the worker that drains it into store.
func NewPublisher(store Store, buffer int, opts ...Option) (*Publisher, *Worker) {
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{
		inbox:  make(chan Event, buffer),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, NewWorker(store, p.inbox, p.logger)
}

var ErrMissingAction = errors.New("audit event requires an action")

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return ErrMissingAction
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event", "action", event.Action)
	}
	return nil
}
