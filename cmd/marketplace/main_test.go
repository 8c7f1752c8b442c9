package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"chlumarket/internal/config"
	httpinfra "chlumarket/internal/infra/http"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DataDir:               dir,
		KeyPath:               filepath.Join(dir, "marketplace.key"),
		DirectoryBackend:      config.BackendSQLite,
		SQLitePath:            filepath.Join(dir, "marketplace.db"),
		CASDir:                filepath.Join(dir, "cas"),
		Network:               "test",
		ResolveTimeoutSeconds: 1,
	}
}

func TestBuildMarketplaceKeepsIdentityAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := buildMarketplace(ctx, cfg)
	require.NoError(t, err)
	require.Empty(t, first.closers)
	require.Nil(t, first.rateLimiter)
	wk, err := first.mkt.WellKnown(ctx)
	require.NoError(t, err)
	require.NoError(t, first.mkt.Stop(ctx))

	second, err := buildMarketplace(ctx, cfg)
	require.NoError(t, err)
	again, err := second.mkt.WellKnown(ctx)
	require.NoError(t, err)
	require.NoError(t, second.mkt.Stop(ctx))

	require.Equal(t, wk.Identity, again.Identity)
	require.Equal(t, wk.NodeID, again.NodeID)
}

func TestBuildDirectoryRejectsPostgresWithoutDSN(t *testing.T) {
	_, _, err := buildDirectory(config.Config{DirectoryBackend: config.BackendPostgres})
	require.Error(t, err)

	_, _, err = buildDirectory(config.Config{DirectoryBackend: "mongo"})
	require.Error(t, err)
}

func TestBuildMarketplaceSharesRedisClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.DirectoryBackend = config.BackendMemory
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.RateLimitRequests = 10

	a, err := buildMarketplace(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.rateLimiter)
	require.Len(t, a.closers, 1)
	a.close()
}

func TestSetupVendorCommand(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.DirectoryBackend = config.BackendMemory
	ctx := context.Background()
	a, err := buildMarketplace(ctx, cfg)
	require.NoError(t, err)
	mkt := a.mkt
	t.Cleanup(func() { _ = mkt.Stop(ctx) })
	srv := httptest.NewServer(httpinfra.NewServer(cfg, mkt).Handler())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"setup-vendor", "--url", srv.URL, "--network", "test"})
	require.NoError(t, root.ExecuteContext(ctx))

	text := out.String()
	require.Contains(t, text, "Vendor registered and countersigned")
	start := strings.Index(text, "{")
	require.GreaterOrEqual(t, start, 0)
	var export vendorExport
	require.NoError(t, json.Unmarshal([]byte(text[start:]), &export))
	require.NotEmpty(t, export.PrivateKey)
	require.NotEmpty(t, export.KeyRef)

	vendor, err := mkt.GetVendor(ctx, export.DID)
	require.NoError(t, err)
	require.NotNil(t, vendor.VendorSignature)
}

func TestSetupVendorRejectsWrongNetwork(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.DirectoryBackend = config.BackendMemory
	ctx := context.Background()
	a, err := buildMarketplace(ctx, cfg)
	require.NoError(t, err)
	mkt := a.mkt
	t.Cleanup(func() { _ = mkt.Stop(ctx) })
	srv := httptest.NewServer(httpinfra.NewServer(cfg, mkt).Handler())
	t.Cleanup(srv.Close)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"setup-vendor", "-u", srv.URL, "-n", "production"})
	require.Error(t, root.ExecuteContext(ctx))
}
