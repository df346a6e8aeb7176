package tx

import (
	"context"
	"sync"
	"time"
)

// MemoryRunner gives in-memory stores real rollback. Scopes are serialized by
// one coarse lock; stores push undo steps with RecordUndo and the runner
// replays them newest-first when fn fails.
type MemoryRunner struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewMemoryRunner builds an in-memory runner. A zero timeout means DefaultTimeout.
func NewMemoryRunner(timeout time.Duration) *MemoryRunner {
	return &MemoryRunner{timeout: timeout}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := cancelled(ctx); err != nil {
		return err
	}
	if _, ok := journalFrom(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring lock
	if err := cancelled(ctx); err != nil {
		return err
	}

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
		if err != nil {
			j.rollback()
		}
	}()

	return fn(withScope(withJournal(ctx, j), j))
}

type journalKey struct{}

// journal is the undo log for one in-memory scope (or savepoint).
type journal struct {
	mu    sync.Mutex
	undos []func()
}

func withJournal(ctx context.Context, j *journal) context.Context {
	return context.WithValue(ctx, journalKey{}, j)
}

func journalFrom(ctx context.Context) (*journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	return j, ok
}

func (j *journal) record(undo func()) {
	j.mu.Lock()
	j.undos = append(j.undos, undo)
	j.mu.Unlock()
}

func (j *journal) rollback() {
	j.mu.Lock()
	undos := j.undos
	j.undos = nil
	j.mu.Unlock()
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func (j *journal) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	child := &journal{}
	if err := fn(withScope(withJournal(ctx, child), child)); err != nil {
		child.rollback()
		return err
	}
	child.mu.Lock()
	undos := child.undos
	child.mu.Unlock()
	j.mu.Lock()
	j.undos = append(j.undos, undos...)
	j.mu.Unlock()
	return nil
}

// RecordUndo registers a compensating step with the scope in ctx. Outside a
// scope the write is final and undo is dropped.
func RecordUndo(ctx context.Context, undo func()) {
	if j, ok := journalFrom(ctx); ok {
		j.record(undo)
	}
}
