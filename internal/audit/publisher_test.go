package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/pkg/platform/tx"
	"flock/pkg/requestcontext"
)

func TestPublisherFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), now), "req-1")

	require.NoError(t, pub.Emit(ctx, Event{ChurchID: 7, MemberID: 42, Action: ActionExitCreated}))

	events, err := pub.ListByMember(ctx, 7, 42)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestInMemoryStoreRollsBackWithScope(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	runner := tx.NewMemoryRunner(0)

	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := pub.Emit(ctx, Event{ChurchID: 7, MemberID: 42, Action: ActionExitDeleted}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	events, err := store.ListByMember(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Empty(t, events)
}
