package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is the subset of *sql.DB and *sql.Tx used by stores.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// InTx reports whether ctx carries a transaction opened by RunInTx.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// ExecerFrom returns the transaction carried by ctx, or db when there is none.
func ExecerFrom(ctx context.Context, db *sql.DB) Execer {
	if t, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return t
	}
	return db
}

// RunInTx runs fn inside a transaction carried on the context, committing on success.
// Nested calls reuse the outer transaction, so a store method that opens one can be
// called from another that already has.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	t, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
