package milestone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exit "flock/internal/exit/models"
	"flock/pkg/platform/tx"
)

func seed(t *testing.T, store *InMemoryStore) {
	t.Helper()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []*Record{
		{ChurchID: 7, MemberID: 42, Name: "Baptism class", Status: StatusPending, UpdatedAt: now},
		{ChurchID: 7, MemberID: 42, Name: "Membership course", Status: StatusCompleted, UpdatedAt: now},
	} {
		require.NoError(t, store.Save(context.Background(), r))
	}
}

func TestHookPausesAndResumes(t *testing.T) {
	store := NewInMemoryStore()
	seed(t, store)
	hook := NewHook(store, nil)
	ctx := context.Background()
	ev := exit.LifecycleEvent{ChurchID: 7, MemberID: 42, ExitID: 3}

	require.NoError(t, hook.OnExit(ctx, ev))
	records, err := store.ListByMember(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, records[0].Status)
	require.NotNil(t, records[0].PausedByExit)
	assert.Equal(t, StatusCompleted, records[1].Status)

	require.NoError(t, hook.OnReinstate(ctx, ev))
	records, err = store.ListByMember(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, records[0].Status)
	assert.Nil(t, records[0].PausedByExit)
}

func TestHookWritesRollBackInSavepoint(t *testing.T) {
	store := NewInMemoryStore()
	seed(t, store)
	hook := NewHook(store, nil)
	runner := tx.NewMemoryRunner(0)
	ev := exit.LifecycleEvent{ChurchID: 7, MemberID: 42, ExitID: 3}

	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		spErr := tx.Savepoint(ctx, func(ctx context.Context) error {
			if err := hook.OnExit(ctx, ev); err != nil {
				return err
			}
			return errors.New("later step failed")
		})
		assert.Error(t, spErr)
		return nil
	})
	require.NoError(t, err)

	records, err := store.ListByMember(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, records[0].Status)
}
