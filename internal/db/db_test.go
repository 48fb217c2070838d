package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	d, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Migrate(ctx))
	v, err := d.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	// Re-running is a no-op.
	require.NoError(t, d.Migrate(ctx))
	var rows int
	require.NoError(t, d.GetContext(ctx, &rows, "SELECT COUNT(*) FROM schema_version"))
	assert.Equal(t, len(migrations), rows)

	for _, table := range []string{"users", "pages", "tasks", "subtasks"} {
		var n int
		err := d.GetContext(ctx, &n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestSQLiteEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	d, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(ctx))

	_, err = d.ExecContext(ctx,
		"INSERT INTO tasks (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		999, "orphan", time.Now().UTC(), time.Now().UTC())
	assert.Error(t, err)
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(context.Background(), Options{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

func TestLockClause(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", Postgres.LockClause())
	assert.Equal(t, "", SQLite.LockClause())
}

func TestTimestamp(t *testing.T) {
	in := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.FixedZone("x", 3600))
	out := Timestamp(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123456000, out.Nanosecond())
	assert.True(t, in.Equal(out.Add(789)))
}

// TestMigratePostgres runs against a real server when TASKER_TEST_POSTGRES_URL
// is set.
func TestMigratePostgres(t *testing.T) {
	url := os.Getenv("TASKER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TASKER_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	d, err := Connect(ctx, Options{Driver: Postgres, URL: url, MaxConns: 2, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Migrate(ctx))
	now, err := d.Now(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, now)
}
