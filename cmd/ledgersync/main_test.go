package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/service"
)

func filterCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "t"}
	addFilterFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestFiltersFromFlags(t *testing.T) {
	t.Parallel()

	f, err := filtersFromFlags(filterCmd(t,
		"--from", "2025-03-01", "--to", "2025-03-31",
		"--bank", "Chase,Amex", "--min", "5", "--pending=false", "--limit", "10"))
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *f.DateStart)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), *f.DateEnd)
	require.Equal(t, []string{"Chase", "Amex"}, f.Banks)
	require.NotNil(t, f.AmountMin)
	require.Equal(t, 5.0, *f.AmountMin)
	require.Nil(t, f.AmountMax)
	require.NotNil(t, f.Pending)
	require.False(t, *f.Pending)
	require.Equal(t, 10, f.Limit)
}

func TestFiltersFromFlagsDefaults(t *testing.T) {
	t.Parallel()

	f, err := filtersFromFlags(filterCmd(t))
	require.NoError(t, err)
	require.Nil(t, f.DateStart)
	require.Nil(t, f.Pending)
	require.Nil(t, f.AmountMin)
	require.Equal(t, 50, f.Limit)
}

func TestFiltersFromFlagsRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := filtersFromFlags(filterCmd(t, "--from", "03/01/2025"))
	require.ErrorContains(t, err, "--from")

	_, err = filtersFromFlags(filterCmd(t, "--min", "10", "--max", "2"))
	require.ErrorContains(t, err, "greater than")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
	require.Equal(t, "é", truncate("éé", 1))
}

func TestRenderSyncResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderSyncResult(&buf, service.SyncResult{
		RunID:    "run-1",
		NewCount: 3,
		Institutions: map[string]service.InstitutionResult{
			"Chase": {New: 3, Pages: 2},
			"Amex":  {Error: "credential unreadable"},
		},
		Errors: []string{"Amex: credential unreadable"},
		Info:   []string{"Chase: history truncated"},
	})
	out := buf.String()
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "3 new, 0 updated, 0 removed over 2 page(s)")
	require.Contains(t, out, "credential unreadable")
	require.Contains(t, out, "history truncated")
}

func TestRenderSummaryAndTransactions(t *testing.T) {
	t.Parallel()

	rows := []repository.Transaction{
		{ID: "a", Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), Name: "UBER EATS", Amount: 12.5, Institution: "Chase", AICategory: "restaurants_or_bars"},
		{ID: "b", Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Name: "SALARY", Amount: -1000, Institution: "Chase", Pending: true},
	}
	var buf bytes.Buffer
	renderTransactions(&buf, rows)
	require.Contains(t, buf.String(), "(pending) SALARY")
	require.Contains(t, buf.String(), "2 transaction(s)")

	buf.Reset()
	st := service.Summarize(rows)
	require.True(t, st.NetFlow.Equal(decimal.RequireFromString("987.50")))
	renderSummary(&buf, st, repository.StoreStats{Institutions: 1})
	require.Contains(t, buf.String(), "987.50")
	require.Contains(t, buf.String(), "2025-03")
}

func TestRenderSyncResultFlagsTruncatedHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderSyncResult(&buf, service.SyncResult{
		Success:      true,
		Institutions: map[string]service.InstitutionResult{"Chase": {New: 5, Pages: 50, Truncated: true}},
		Info:         []string{"Chase: stopped after 50 pages, remaining changes arrive on the next sync"},
	})
	out := buf.String()
	require.Contains(t, out, "incomplete: page limit reached")
	require.Contains(t, out, "stopped after 50 pages")
}
