//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/platform/postgres"
	"flock/pkg/testutil/containers"
)

func TestSchemaIndexes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	// applying twice must be harmless
	require.NoError(t, postgres.Migrate(ctx, pg.DB))

	rows, err := pg.DB.QueryContext(ctx,
		`SELECT tablename, indexname FROM pg_indexes WHERE tablename IN ('member_exits', 'notifications')`)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]string{}
	for rows.Next() {
		var table, index string
		require.NoError(t, rows.Scan(&table, &index))
		got[index] = table
	}
	require.NoError(t, rows.Err())

	for index, table := range map[string]string{
		"member_exits_one_active":          "member_exits",
		"member_exits_church_member_idx":   "member_exits",
		"member_exits_church_created_idx":  "member_exits",
		"notifications_church_user_idx":    "notifications",
		"notifications_church_member_idx":  "notifications",
		"notifications_church_created_idx": "notifications",
	} {
		assert.Equal(t, table, got[index], index)
	}
}
