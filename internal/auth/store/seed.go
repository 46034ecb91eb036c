package store

import (
	"context"
	"time"

	"mailomat/internal/auth"
	"mailomat/internal/auth/models"
	id "mailomat/pkg/domain"
)

type upserter interface {
	Upsert(ctx context.Context, op *models.Operator) error
}

// SeedOperator hashes password and stores the operator, rotating the password if
// the username already exists.
func SeedOperator(ctx context.Context, s upserter, username, password string, now time.Time) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	op, err := models.NewOperator(id.NewOperatorID(), username, hash, now)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, op)
}
