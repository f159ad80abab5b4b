package testutil

import (
	"testing"

	"drivesync/internal/database"
)

// NewTestIndex creates a new in-memory index with the schema migrated.
// The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T) *database.SQLiteIndex {
	t.Helper()

	idx, err := database.NewSQLiteIndex(":memory:")
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() {
		idx.Close()
	})

	if err := idx.Migrate(); err != nil {
		t.Fatalf("failed to migrate index: %v", err)
	}
	return idx
}
