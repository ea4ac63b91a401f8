package testutil

import (
	"testing"

	"dedupe-go/internal/database"
	"dedupe-go/internal/dedup"
)

// NewTestDatabase creates a new migrated in-memory SQLite audit log.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, clock dedup.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
