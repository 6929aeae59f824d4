package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.DB.MaxOpenConns)
	assert.Equal(t, "migrations", cfg.DB.MigrationsDir)
	assert.Equal(t, "", cfg.Redis.URL)
	assert.Equal(t, int64(8453), cfg.Gate.ChainID)
	assert.Equal(t, 60*time.Second, cfg.Gate.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, 8080, cfg.Server.APIPort)
	assert.Equal(t, 8081, cfg.Server.HealthPort)
	assert.Equal(t, "https://mainnet.base.org", cfg.Chains.RPCURLs[8453])
	assert.Empty(t, cfg.Auth.AdminAddresses)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Tracing.Insecure)
}

func TestLoad_ChainRPCURLs(t *testing.T) {
	t.Setenv("CHAIN_RPC_URLS", "8453=https://base.example, 1 = https://eth.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://base.example", cfg.Chains.RPCURLs[8453])
	assert.Equal(t, "https://eth.example", cfg.Chains.RPCURLs[1])
}

func TestLoad_MalformedChainEntry(t *testing.T) {
	t.Setenv("CHAIN_RPC_URLS", "8453")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadChainID(t *testing.T) {
	t.Setenv("CHAIN_RPC_URLS", "base=https://base.example")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_GateChainMustBeRegistered(t *testing.T) {
	t.Setenv("CHAIN_RPC_URLS", "1=https://eth.example")
	t.Setenv("GATE_CHAIN_ID", "8453")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AdminAddresses(t *testing.T) {
	t.Setenv("ADMIN_ADDRESSES", "0xAbC, 0xDeF ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"0xAbC", "0xDeF"}, cfg.Auth.AdminAddresses)
}

func TestLoad_IntOverrides(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL_SEC", "5")
	t.Setenv("RECONCILE_WORKERS", "2")
	t.Setenv("GATE_CACHE_TTL_SEC", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, 2, cfg.Reconcile.Workers)
	assert.Equal(t, 120*time.Second, cfg.Gate.CacheTTL)
}

func TestLoad_NonNumericIntFallsBack(t *testing.T) {
	t.Setenv("RECONCILE_WORKERS", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
}
