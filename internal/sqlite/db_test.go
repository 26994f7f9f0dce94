package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"projects",
		"entries",
		"documents",
		"changes",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

// TestMigrationsIdempotent verifies that migrations can run against an existing schema
func TestMigrationsIdempotent(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, db.RunMigrations())
}

// TestEntriesTable verifies store keys are unique
func TestEntriesTable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO entries (collection, key, data) VALUES (?, ?, ?)`,
		"projects/p1/actions", "k1", `{"id":1}`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO entries (collection, key, data) VALUES (?, ?, ?)`,
		"projects/p1/actions", "k1", `{"id":2}`)
	require.Error(t, err, "should fail with duplicate key")
	require.True(t, isUniqueViolation(err))
}
