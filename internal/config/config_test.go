package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "ETH", cfg.Wallet.Currency)
	assert.Equal(t, 8, cfg.Wallet.MinPasswordLength)
	assert.Equal(t, 5*time.Second, cfg.Balance.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Intent.Expiry)
	assert.Equal(t, 12, cfg.Confirmation.Depth)
	assert.Equal(t, 30*time.Minute, cfg.Confirmation.MaxWait)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BALANCE_CACHE_TTL_MS", "1500")
	t.Setenv("INTENT_EXPIRY_SECONDS", "90")
	t.Setenv("CONFIRMATION_DEPTH", "3")
	t.Setenv("CONFIRMATION_MAX_WAIT", "2m")
	t.Setenv("VERIFIED_PHONES", "+15550001111, +15550002222 ,")
	t.Setenv("PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Balance.TTL)
	assert.Equal(t, 90*time.Second, cfg.Intent.Expiry)
	assert.Equal(t, 3, cfg.Confirmation.Depth)
	assert.Equal(t, 2*time.Minute, cfg.Confirmation.MaxWait)
	assert.Equal(t, []string{"+15550001111", "+15550002222"}, cfg.VerifiedPhones)
	assert.Equal(t, ":9090", cfg.Address())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BALANCE_CACHE_TTL_MS", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresBackendsOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")
}
