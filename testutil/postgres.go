package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/onnwee/chatter/db"
)

// SetupTestDB connects to TEST_PG_DSN, migrates it and clears the accounts
// row so each test starts from the template. Skips when TEST_PG_DSN is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		t.Fatalf("migrate test database: %v", err)
	}
	ResetAccounts(t, database)
	t.Cleanup(func() {
		ResetAccounts(t, database)
		_ = database.Close()
	})
	return database
}

// ResetAccounts deletes the stored accounts snapshot.
func ResetAccounts(t *testing.T, database *sql.DB) {
	t.Helper()
	if _, err := database.ExecContext(context.Background(), `DELETE FROM kv WHERE key=$1`, db.AccountsKey); err != nil {
		t.Fatalf("reset accounts: %v", err)
	}
}
