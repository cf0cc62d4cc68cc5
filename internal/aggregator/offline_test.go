package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOfflineClientPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewOfflineClient(10)
	c.Now = func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) }

	_, err := c.ExchangeToken(ctx, "bogus")
	require.True(t, IsCredentialError(err))

	cred, err := c.ExchangeToken(ctx, "public-demo")
	require.NoError(t, err)

	accounts, err := c.ListAccounts(ctx, cred)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	batch, err := SyncAll(ctx, c, cred, "", 100)
	require.NoError(t, err)
	require.Greater(t, batch.Pages, 1)
	require.Equal(t, len(c.generate(cred)), len(batch.Added))

	seen := map[string]bool{}
	for _, r := range batch.Added {
		require.False(t, seen[r.TransactionID], "duplicate id %s", r.TransactionID)
		seen[r.TransactionID] = true
	}

	// resuming from the final cursor yields nothing new
	page, err := c.SyncPage(ctx, cred, batch.NextCursor)
	require.NoError(t, err)
	require.Empty(t, page.Added)
	require.False(t, page.HasMore)
}
