// Package postgres opens the shared connection pool and applies the bootstrap schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mailomat/internal/platform/config"
)

const uniqueViolation = "23505"

// Open connects, pings and applies the schema.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending_confirmation', 'confirmed')),
		subscribed_at TIMESTAMPTZ NOT NULL,
		notified_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS subscription_tokens (
		token TEXT PRIMARY KEY,
		subscriber_id UUID NOT NULL UNIQUE REFERENCES subscriptions(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
	`CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the idempotent bootstrap schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
