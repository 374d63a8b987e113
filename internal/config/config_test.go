package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_BACKEND", "")

	cfg := Load()
	assert.Equal(t, StorageOracle, cfg.Storage)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "billing_admin", cfg.JWT.PrivilegedRole)
	assert.Equal(t, int32(2), cfg.Billing.CurrencyPlaces)
	assert.Equal(t, time.Hour, cfg.Billing.Interval)
	assert.Empty(t, cfg.Billing.Tenants)
	assert.Empty(t, cfg.Invoicing.BaseURL)
	assert.Equal(t, "leasebill", cfg.NATS.SubjectPrefix)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_BACKEND", "Memory")
	t.Setenv("BILLING_TENANTS", " acme, ,globex ")
	t.Setenv("BILLING_INTERVAL", "15m")
	t.Setenv("BILLING_CONCURRENCY", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("OWNERSHIP_CACHE_TTL", "30s")

	cfg := Load()
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Billing.Tenants)
	assert.Equal(t, 15*time.Minute, cfg.Billing.Interval)
	assert.Equal(t, 4, cfg.Billing.Concurrency)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoad_Panics(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		assert.Panics(t, func() { Load() })
	})
	t.Run("unknown storage", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("STORAGE_BACKEND", "postgres")
		assert.Panics(t, func() { Load() })
	})
}

func TestOracleConfig_DSN(t *testing.T) {
	cfg := OracleConfig{Host: "db", Port: "1521", Service: "FREEPDB1", User: "billing", Password: `p"w\d`}
	assert.Equal(t, `user="billing" password="p\"w\\d" connectString="db:1521/FREEPDB1"`, cfg.DSN())

	cfg.WalletPath = "/wallet"
	cfg.TNSAlias = "adb_high"
	dsn := cfg.DSN()
	require.Contains(t, dsn, `connectString="adb_high"`)
	assert.Contains(t, dsn, `walletLocation="/wallet"`)
}
