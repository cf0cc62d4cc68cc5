package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	require.Equal(t, 50, c.Sync.MaxPages)
	require.Equal(t, 5*time.Minute, c.Sync.MinInterval)
	require.Equal(t, 500*time.Millisecond, c.LLM.RequestDelay)
	require.EqualValues(t, 150, c.LLM.MaxTokens)
	require.InDelta(t, 0.001, c.Policy.AmountTolerance, 1e-9)
	require.InDelta(t, 0.01, c.Policy.TransferTolerance, 1e-9)
	require.Equal(t, 3, c.Policy.TransferWindowDays)
	require.Equal(t, 5, c.Policy.TransferMaxResults)
	require.Equal(t, "sandbox", c.Plaid.Environment)
	require.NoError(t, c.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/ls.db"

[policy]
transfer_window_days = 5
`), 0o600))
	t.Setenv("LEDGERSYNC_CONFIG", path)
	t.Setenv("LEDGERSYNC_SYNC_MAX_PAGES", "7")
	t.Setenv("GEMINI_API_KEY", "from-env")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/ls.db", c.Database.Path)
	require.Equal(t, 5, c.Policy.TransferWindowDays)
	require.Equal(t, 7, c.Sync.MaxPages)
	require.Equal(t, "from-env", c.LLM.APIKey)
}

func TestValidateCollectsErrors(t *testing.T) {
	c := Default()
	c.Database.Path = ""
	c.Plaid.Environment = "development"
	c.Sync.MaxPages = 0

	err := c.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "database.path")
	require.Contains(t, err.Error(), "plaid.environment")
	require.Contains(t, err.Error(), "sync.max_pages")
}
