package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRunner opens a database/sql transaction per scope. Savepoints map to
// SAVEPOINT / ROLLBACK TO SAVEPOINT so a failed best-effort statement does not
// leave the outer transaction in the aborted state.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRunner builds a runner over db. A zero timeout means DefaultTimeout.
func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	return &PostgresRunner{db: db, timeout: timeout}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	// Nested scopes join the outer transaction.
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	scoped := withScope(WithTx(ctx, sqlTx), &pgScope{tx: sqlTx})
	if err := fn(scoped); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgScope struct {
	tx   *sql.Tx
	next int
}

func (s *pgScope) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	s.next++
	name := fmt.Sprintf("sp_%d", s.next)
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
