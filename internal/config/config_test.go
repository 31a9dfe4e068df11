package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "DATABASE_DRIVER", "SESSION_BACKEND", "SESSION_TTL", "TAX_RATE",
		"FREE_SHIPPING_THRESHOLD", "FLAT_SHIPPING_RATE", "KAFKA_BROKERS", "REQUEST_TIMEOUT", "SECURE_COOKIES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)

	p := cfg.Pricing()
	assert.Equal(t, "0.1", p.TaxRate.String())
	assert.Equal(t, "100", p.FreeShippingThreshold.String())
	assert.Equal(t, "10", p.FlatShippingRate.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("SESSION_TTL", "3600")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.2", cfg.TaxRate.String())
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric tax", "TAX_RATE", "ten"},
		{"negative shipping", "FLAT_SHIPPING_RATE", "-1"},
		{"bad ttl", "SESSION_TTL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestConfig_ValidateJWT(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).ValidateJWT(), ErrJWTSecretMissing)
	assert.ErrorIs(t, (&Config{JWTSecret: "short"}).ValidateJWT(), ErrJWTSecretTooShort)
	assert.NoError(t, (&Config{JWTSecret: strings.Repeat("x", 32)}).ValidateJWT())
}
