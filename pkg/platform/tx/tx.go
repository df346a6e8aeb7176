// Package tx carries a transactional scope through context so that stores
// participating in one service operation share a single unit of work.
//
// Postgres stores pick the *sql.Tx out of the context via Querier; in-memory
// stores register undo steps via RecordUndo. Services open scopes through a
// Runner and isolate best-effort steps with Savepoint.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "flock/pkg/domain-errors"
)

// DefaultTimeout bounds a scope when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

type ctxKey struct{}
type scopeKey struct{}

var (
	txKey       = ctxKey{}
	scopeCtxKey = scopeKey{}
)

// Runner opens one transactional scope around fn. Every store call made with
// the context passed to fn joins the scope; returning an error rolls back
// all of them.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DBTX is the subset of *sql.DB and *sql.Tx used by stores.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Querier returns the scope's transaction when one is open, else db.
func Querier(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// scope is implemented by each runner's per-transaction state.
type scope interface {
	savepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

func withScope(ctx context.Context, s scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, s)
}

func scopeFrom(ctx context.Context) (scope, bool) {
	s, ok := ctx.Value(scopeCtxKey).(scope)
	return s, ok
}

// InScope reports whether ctx already belongs to an open scope.
func InScope(ctx context.Context) bool {
	_, ok := scopeFrom(ctx)
	return ok
}

// Savepoint runs fn so that a failure undoes only fn's own writes and leaves
// the enclosing scope usable. Outside a scope fn runs directly.
func Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	s, ok := scopeFrom(ctx)
	if !ok {
		return fn(ctx)
	}
	return s.savepoint(ctx, fn)
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}
