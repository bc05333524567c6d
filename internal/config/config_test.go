package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	flags.Set("db-path", "/tmp/db")
	flags.Set("blockchain-db-path", "/tmp/chain.sqlite")

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, uint16(3000), cfg.Port)
	require.Equal(t, uint32(1000), cfg.BatchSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, 5, cfg.RetryAttempts)
}

// TestFlagOverridesFileValue exercises SPEC_FULL.md scenario 7: a TOML file
// sets batch_size=500 but a --batch-size flag also sets 2000; the flag wins.
func TestFlagOverridesFileValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	writeFile(t, path, `
db_path = "/var/lib/explorer"
blockchain_db_path = "/var/lib/chain.sqlite"
batch_size = 500
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--batch-size=2000"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, uint32(2000), cfg.BatchSize)
	require.Equal(t, "/var/lib/explorer", cfg.DBPath)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)

	_, err := Load("", flags)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
