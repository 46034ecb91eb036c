package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"mailomat/internal/platform/postgres"
	"mailomat/internal/subscription/models"
	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

// Postgres persists subscriptions and their tokens. Writes touching both tables run
// in one transaction, and the email unique constraint serializes concurrent inserts.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) execer(ctx context.Context) postgres.Execer {
	return postgres.ExecerFrom(ctx, s.db)
}

func (s *Postgres) InsertPending(ctx context.Context, in models.PendingInsert) (*models.PendingResult, error) {
	var res *models.PendingResult
	err := postgres.RunInTx(ctx, s.db, func(ctx context.Context) error {
		created, err := s.insertSubscriber(ctx, in)
		if err != nil {
			return err
		}
		if created {
			if err := s.insertToken(ctx, in.Token, in.ID); err != nil {
				return err
			}
			res = &models.PendingResult{
				ID:      in.ID,
				Token:   in.Token,
				Status:  models.StatusPendingConfirmation,
				Created: true,
				Notify:  true,
			}
			return nil
		}
		res, err = s.claimExisting(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Postgres) insertSubscriber(ctx context.Context, in models.PendingInsert) (bool, error) {
	query := `
		INSERT INTO subscriptions (id, email, name, status, subscribed_at, notified_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`
	var inserted uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(in.ID), in.Subscriber.Email(), in.Subscriber.Name(),
		string(models.StatusPendingConfirmation), in.SubscribedAt,
	).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	return true, nil
}

func (s *Postgres) insertToken(ctx context.Context, token string, subscriberID id.SubscriberID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO subscription_tokens (token, subscriber_id) VALUES ($1, $2)`,
		token, uuid.UUID(subscriberID),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("insert token: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// claimExisting locks the existing row and, when a resend is due, claims it by
// stamping notified_at. Concurrent duplicates queue on the row lock so only one claims.
func (s *Postgres) claimExisting(ctx context.Context, in models.PendingInsert) (*models.PendingResult, error) {
	query := `
		SELECT s.id, s.status, s.notified_at, t.token
		FROM subscriptions s
		JOIN subscription_tokens t ON t.subscriber_id = s.id
		WHERE s.email = $1
		FOR UPDATE OF s
	`
	var (
		rawID      uuid.UUID
		status     string
		notifiedAt sql.NullTime
		token      string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, in.Subscriber.Email()).
		Scan(&rawID, &status, &notifiedAt, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load existing subscriber: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load existing subscriber: %w", err)
	}

	res := &models.PendingResult{ID: id.SubscriberID(rawID), Token: token, Status: models.Status(status)}
	if res.Status != models.StatusPendingConfirmation {
		return res, nil
	}
	var last *time.Time
	if notifiedAt.Valid {
		last = &notifiedAt.Time
	}
	if !resendDue(last, in.SubscribedAt, in.ResendAfter) {
		return res, nil
	}
	_, err = s.execer(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET notified_at = $2 WHERE id = $1`, rawID, in.SubscribedAt)
	if err != nil {
		return nil, fmt.Errorf("claim notification: %w", err)
	}
	res.Notify = true
	return res, nil
}

func (s *Postgres) ReleaseNotification(ctx context.Context, subscriberID id.SubscriberID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET notified_at = NULL WHERE id = $1`, uuid.UUID(subscriberID))
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return requireRow(result)
}

// Confirm is idempotent: updating an already confirmed row still matches it.
func (s *Postgres) Confirm(ctx context.Context, subscriberID id.SubscriberID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET status = $2 WHERE id = $1`,
		uuid.UUID(subscriberID), string(models.StatusConfirmed))
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	return requireRow(result)
}

func (s *Postgres) FindByToken(ctx context.Context, token string) (id.SubscriberID, error) {
	var rawID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT subscriber_id FROM subscription_tokens WHERE token = $1`, token).Scan(&rawID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return id.SubscriberID{}, sentinel.ErrNotFound
		}
		return id.SubscriberID{}, fmt.Errorf("find by token: %w", err)
	}
	return id.SubscriberID(rawID), nil
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.SubscriptionRecord, error) {
	query := `
		SELECT id, email, name, status, subscribed_at, notified_at
		FROM subscriptions
		WHERE email = $1
	`
	var (
		rec        models.SubscriptionRecord
		rawID      uuid.UUID
		status     string
		notifiedAt sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, email).
		Scan(&rawID, &rec.Email, &rec.Name, &status, &rec.SubscribedAt, &notifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find by email: %w", err)
	}
	rec.ID = id.SubscriberID(rawID)
	rec.Status = models.Status(status)
	if notifiedAt.Valid {
		t := notifiedAt.Time
		rec.NotifiedAt = &t
	}
	return &rec, nil
}

// ListConfirmed streams confirmed recipients ordered by email. A query or scan
// failure is yielded once and ends the sequence.
func (s *Postgres) ListConfirmed(ctx context.Context) iter.Seq2[models.Recipient, error] {
	return func(yield func(models.Recipient, error) bool) {
		rows, err := s.execer(ctx).QueryContext(ctx,
			`SELECT email, name FROM subscriptions WHERE status = $1 ORDER BY email`,
			string(models.StatusConfirmed))
		if err != nil {
			yield(models.Recipient{}, fmt.Errorf("list confirmed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r models.Recipient
			if err := rows.Scan(&r.Email, &r.Name); err != nil {
				yield(models.Recipient{}, fmt.Errorf("scan recipient: %w", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Recipient{}, fmt.Errorf("iterate recipients: %w", err))
		}
	}
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
