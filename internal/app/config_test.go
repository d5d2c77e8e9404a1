package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SHOPDESK_DATABASE_URL", "postgres://localhost/shopdesk")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, "shopdesk.orders", cfg.Kafka.Topic)
	assert.Equal(t, time.Second, cfg.Relay.Interval)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformFallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SHOPDESK_DATABASE_URL", "postgres://localhost/shopdesk")
	t.Setenv("SHOPDESK_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SHOPDESK_RELAY_BATCH_SIZE", "25")
	t.Setenv("SHOPDESK_LOW_STOCK_THRESHOLD", "3")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, 25, cfg.Relay.BatchSize)
	assert.Equal(t, 3, cfg.LowStockThreshold)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("MissingDatabase", func(t *testing.T) {
		t.Setenv("SHOPDESK_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "")
		_, err := loadConfig(true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database URL is required")
	})
	t.Run("NegativeThreshold", func(t *testing.T) {
		t.Setenv("SHOPDESK_DATABASE_URL", "postgres://localhost/shopdesk")
		t.Setenv("SHOPDESK_LOW_STOCK_THRESHOLD", "-1")
		_, err := loadConfig(true)
		require.Error(t, err)
	})
}
