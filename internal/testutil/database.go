package testutil

import (
	"database/sql"
	"testing"

	"github.com/ndewijer/strategy-index-backend/internal/database"
	"github.com/ndewijer/strategy-index-backend/internal/repository"
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The schema comes from the production migrations, so tests always run
// against the current layout. The database is closed when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestCache returns a market cache repository over a fresh test database.
func SetupTestCache(t *testing.T) *repository.MarketCacheRepository {
	t.Helper()

	return repository.NewMarketCacheRepository(SetupTestDB(t))
}
