package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mailomat/internal/auth/models"
	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var (
		op    models.Operator
		rawID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM operators WHERE username = $1`, username,
	).Scan(&rawID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find operator: %w", err)
	}
	op.ID = id.OperatorID(rawID)
	return &op, nil
}

// Upsert inserts op or rotates the password of the existing username.
func (s *Postgres) Upsert(ctx context.Context, op *models.Operator) error {
	query := `
		INSERT INTO operators (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash
	`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(op.ID), op.Username, op.PasswordHash, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert operator: %w", err)
	}
	return nil
}
