package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func TestDefaults(t *testing.T) {
	c, err := load(map[string]string{"JWT_SECRET": "dev-secret"})
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, "5000", c.Leverage.String())
	assert.Equal(t, 5*time.Second, c.CommitTimeout)
	assert.Equal(t, 3, c.MaxConflictRetries)
	assert.Equal(t, "reject", c.WithdrawalPolicy)
	assert.Equal(t, "live", c.QuoteSource)
	assert.Equal(t, time.Second, c.FXInterval)
	assert.Equal(t, 2*time.Second, c.CryptoInterval)
	assert.Equal(t, "Sun 22:00", c.ForexOpen)
	assert.Nil(t, c.KafkaBrokers)
	assert.False(t, c.Production())
}

func TestOverrides(t *testing.T) {
	c, err := load(map[string]string{
		"JWT_SECRET":        "dev-secret",
		"LEVERAGE":          "100",
		"WITHDRAWAL_POLICY": "Clamp",
		"KAFKA_BROKERS":     "k1:9092, k2:9092,",
		"FOREX_HOLIDAYS":    "2024-12-25,2025-01-01",
		"QUOTE_SOURCE":      "SIM",
		"STORE_DRIVER":      "postgres",
		"DB_DSN":            "postgres://localhost/zentum",
	})
	require.NoError(t, err)
	assert.Equal(t, "100", c.Leverage.String())
	assert.Equal(t, "clamp", c.WithdrawalPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, []string{"2024-12-25", "2025-01-01"}, c.ForexHolidays)
	assert.Equal(t, "sim", c.QuoteSource)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"missing_secret", map[string]string{}, "JWT_SECRET"},
		{"bad_leverage", map[string]string{"JWT_SECRET": "x", "LEVERAGE": "0"}, "LEVERAGE"},
		{"bad_decimal", map[string]string{"JWT_SECRET": "x", "LEVERAGE": "high"}, "Leverage"},
		{"postgres_without_dsn", map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "postgres"}, "DB_DSN"},
		{"bad_policy", map[string]string{"JWT_SECRET": "x", "WITHDRAWAL_POLICY": "maybe"}, "WITHDRAWAL_POLICY"},
		{"prod_memory", map[string]string{"JWT_SECRET": "x", "APP_ENV": "production"}, "STORE_DRIVER=postgres"},
		{"prod_short_secret", map[string]string{"JWT_SECRET": "x", "APP_ENV": "production", "STORE_DRIVER": "postgres", "DB_DSN": "d"}, "32 characters"},
		{"admin_half", map[string]string{"JWT_SECRET": "x", "ADMIN_EMAIL": "a@b.c"}, "ADMIN_PASSWORD_HASH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
