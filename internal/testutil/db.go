// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"zenith-tasker/internal/db"
)

// NewDB opens an in-memory SQLite database with all migrations applied and
// closes it when the test completes.
func NewDB(t *testing.T) *db.DB {
	t.Helper()

	ctx := context.Background()
	d, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	if err := d.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return d
}
