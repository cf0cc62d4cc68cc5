package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func txn(id, account string, amount float64, date time.Time) Transaction {
	return Transaction{
		ID:        id,
		AccountID: account,
		Date:      date,
		Name:      "txn " + id,
		Amount:    amount,
		Currency:  "USD",
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func ids(txs []Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.ID)
	}
	return out
}
