// Package auth authenticates newsletter operators from a Basic Authorization header.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"mailomat/internal/auth/models"
	"mailomat/pkg/platform/sentinel"
	"mailomat/pkg/requestcontext"
)

// OperatorStore looks up stored operator credentials.
type OperatorStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Operator, error)
}

// Gate checks credentials on every call and keeps no state between requests.
type Gate struct {
	store     OperatorStore
	logger    *slog.Logger
	tracer    trace.Tracer
	dummyHash []byte
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gate) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// NewGate builds a gate. Unknown usernames are checked against a throwaway hash of
// the same cost so a miss takes as long as a wrong password.
func NewGate(store OperatorStore, opts ...Option) (*Gate, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("could not generate dummy secret: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("could not hash dummy secret: %w", err)
	}
	g := &Gate{
		store:     store,
		logger:    slog.Default(),
		tracer:    otel.Tracer("mailomat/auth"),
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check authenticates the raw Authorization header value.
func (g *Gate) Check(ctx context.Context, header string) (*models.Operator, error) {
	ctx, span := g.tracer.Start(ctx, "auth.Check")
	defer span.End()

	op, err := g.check(ctx, header)
	if err != nil {
		span.SetAttributes(attribute.String("auth.failure", string(KindOf(err))))
		span.SetStatus(codes.Error, "authentication failed")
		g.logger.WarnContext(ctx, "operator authentication failed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", string(KindOf(err)),
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("operator.id", op.ID.String()))
	return op, nil
}

func (g *Gate) check(ctx context.Context, header string) (*models.Operator, error) {
	creds, err := ParseBasic(header)
	if err != nil {
		return nil, err
	}

	op, err := g.store.FindByUsername(ctx, creds.Username)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, errStore(err)
		}
		_ = bcrypt.CompareHashAndPassword(g.dummyHash, []byte(creds.Password))
		return nil, errInvalidCredentials("invalid username or password")
	}

	if err := verifyPassword(creds.Password, op.PasswordHash); err != nil {
		if KindOf(err) == KindInvalidCredentials {
			return nil, err
		}
		return nil, errStore(err)
	}
	return op, nil
}
