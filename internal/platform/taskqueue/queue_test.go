package taskqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueRunsTasks(t *testing.T) {
	q := New(WithLogger(quietLogger()), WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for range 5 {
		wg.Add(1)
		ok := q.Enqueue(Task{Name: "count", Run: func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}})
		require.True(t, ok)
	}
	wg.Wait()
	assert.Equal(t, int32(5), ran.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := New(WithLogger(quietLogger()), WithCapacity(1))

	assert.True(t, q.Enqueue(Task{Name: "first", Run: func(context.Context) error { return nil }}))
	assert.False(t, q.Enqueue(Task{Name: "second", Run: func(context.Context) error { return nil }}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	q := New(WithLogger(quietLogger()), WithWorkers(1))
	var ran atomic.Int32
	for range 3 {
		q.Enqueue(Task{Name: "drain", Run: func(ctx context.Context) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ran.Add(1)
			return nil
		}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
	assert.Equal(t, int32(3), ran.Load())

	assert.False(t, q.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}))
}

func TestQueueSurvivesFailingTasks(t *testing.T) {
	q := New(WithLogger(quietLogger()), WithWorkers(1), WithTaskTimeout(time.Second))
	var ran atomic.Int32
	q.Enqueue(Task{Name: "error", Run: func(context.Context) error { return errors.New("boom") }})
	q.Enqueue(Task{Name: "panic", Run: func(context.Context) error { panic("kaboom") }})
	q.Enqueue(Task{Name: "ok", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
	assert.Equal(t, int32(1), ran.Load())
}
