package store

import (
	"context"
	"testing"

	"github.com/nerrad567/boxlink/internal/infrastructure/database"
	"github.com/nerrad567/boxlink/migrations"
)

// openTestDB returns an in-memory database with the boxlink schema applied.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
