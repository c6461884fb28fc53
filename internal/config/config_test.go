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

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.PaymentPollDelay)
	assert.Equal(t, 0, cfg.PaymentMaxPollAttempts)
	assert.Equal(t, "0.05", cfg.TaxRate.String())
	assert.Equal(t, "2.99", cfg.DeliveryFee.String())
	assert.Equal(t, "/payment-result", cfg.PaymentResultMarker)
	assert.Equal(t, 24*time.Hour, cfg.CartCacheTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "payment-outcome", cfg.OutboxTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("PAYMENT_POLL_DELAY", "500ms")
	t.Setenv("PAYMENT_MAX_POLL_ATTEMPTS", "20")
	t.Setenv("TAX_RATE", "0.10")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.PaymentPollDelay)
	assert.Equal(t, 20, cfg.PaymentMaxPollAttempts)
	assert.Equal(t, "0.1", cfg.TaxRate.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 6543, cfg.DBPort)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PAYMENT_POLL_DELAY", "three seconds"},
		{"DB_PORT", "postgres"},
		{"TAX_RATE", "five percent"},
		{"TAX_RATE", "-0.05"},
		{"DELIVERY_FEE", "-1"},
		{"PAYMENT_MAX_POLL_ATTEMPTS", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
