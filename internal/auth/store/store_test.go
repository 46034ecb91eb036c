package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailomat/internal/auth/models"
	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

func TestInMemory_UpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	require.NoError(t, SeedOperator(ctx, s, "publisher", "first", time.Now()))
	first, err := s.FindByUsername(ctx, "publisher")
	require.NoError(t, err)

	require.NoError(t, SeedOperator(ctx, s, "publisher", "second", time.Now()))
	second, err := s.FindByUsername(ctx, "publisher")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.PasswordHash, second.PasswordHash)

	_, err = s.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSeedOperator_RejectsEmptyPassword(t *testing.T) {
	assert.Error(t, SeedOperator(context.Background(), NewInMemory(), "publisher", "", time.Now()))
}

func TestPostgres_FindByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	opID := uuid.New()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM operators WHERE username = $1")).
		WithArgs("publisher").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}).
			AddRow(opID.String(), "publisher", "$2a$10$hash", created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM operators WHERE username = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}))

	op, err := s.FindByUsername(context.Background(), "publisher")
	require.NoError(t, err)
	assert.Equal(t, id.OperatorID(opID), op.ID)
	assert.Equal(t, created, op.CreatedAt)

	_, err = s.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	op := &models.Operator{ID: id.NewOperatorID(), Username: "publisher", PasswordHash: "h", CreatedAt: time.Now()}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (username) DO UPDATE")).
		WithArgs(uuid.UUID(op.ID), "publisher", "h", op.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).Upsert(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())
}
