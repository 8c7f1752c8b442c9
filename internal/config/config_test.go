package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HTTP_ADDR", "PUBLIC_URL", "LOG_LEVEL", "DATA_DIR", "KEY_PATH", "DIRECTORY_BACKEND",
	"SQLITE_PATH", "POSTGRES_DSN", "CAS_DIR", "CHLU_NETWORK", "POPR_POLICY_PATH",
	"RESOLVE_TIMEOUT_SECONDS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS",
	"RATE_LIMIT_MAX_KEYS", "RATE_LIMIT_FAIL_CLOSED", "REDIS_ADDR", "REDIS_PASSWORD",
	"REDIS_DB", ConfigFileEnv,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/var/lib/chlu")

	cfg := FromEnv()
	require.Equal(t, ":3000", cfg.HTTPAddr)
	require.Equal(t, "production", cfg.Network)
	require.Equal(t, BackendSQLite, cfg.DirectoryBackend)
	require.Equal(t, filepath.Join("/var/lib/chlu", "marketplace.key"), cfg.KeyPath)
	require.Equal(t, filepath.Join("/var/lib/chlu", "marketplace.db"), cfg.SQLitePath)
	require.Equal(t, filepath.Join("/var/lib/chlu", "cas"), cfg.CASDir)
	require.Equal(t, 10, cfg.ResolveTimeoutSeconds)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvPicksPostgresWhenDSNSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/chlu")
	t.Setenv("RATE_LIMIT_REQUESTS", "30")
	t.Setenv("RATE_LIMIT_FAIL_CLOSED", "yes")

	cfg := FromEnv()
	require.Equal(t, BackendPostgres, cfg.DirectoryBackend)
	require.Equal(t, 30, cfg.RateLimitRequests)
	require.True(t, cfg.RateLimitFailClosed)
}

func TestLoadOverlaysFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "marketplace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":4000"
public_url: https://market.example
data_dir: `+dir+`
directory_backend: memory
network: experimental
resolve_timeout_seconds: 3
`), 0o600))
	t.Setenv("CHLU_NETWORK", "staging")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.HTTPAddr)
	require.Equal(t, "https://market.example", cfg.PublicURL)
	require.Equal(t, BackendMemory, cfg.DirectoryBackend)
	require.Equal(t, "staging", cfg.Network)
	require.Equal(t, 3, cfg.ResolveTimeoutSeconds)
	require.Equal(t, filepath.Join(dir, "marketplace.key"), cfg.KeyPath)
}

func TestLoadReadsPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":5000\"\ndirectory_backend: memory\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.HTTPAddr)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	clearEnv(t)

	t.Setenv("DIRECTORY_BACKEND", "mongo")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("DIRECTORY_BACKEND", "postgres")
	_, err = Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
