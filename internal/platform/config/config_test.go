package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("LOCK_LEASE_TTL", "")
		t.Setenv("REFERENCE_TZ", "")
		t.Setenv("KAFKA_BROKERS", "")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, cfg.Lock.LeaseTTL)
		assert.Equal(t, "UTC", cfg.Reference.Location.String())
		assert.Equal(t, "civicdesk.audit", cfg.Outbox.Topic)
		assert.Empty(t, cfg.Outbox.Brokers)
		assert.False(t, cfg.RateLimit.Disabled)
		assert.Equal(t, 60, cfg.RateLimit.WriteRequests)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("LOCK_LEASE_TTL", "90s")
		t.Setenv("REFERENCE_TZ", "Europe/Berlin")
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
		t.Setenv("OUTBOX_BATCH_SIZE", "25")
		t.Setenv("RATE_LIMIT_WRITE", "5")
		t.Setenv("RATE_LIMIT_WINDOW", "10s")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Lock.LeaseTTL)
		assert.Equal(t, "Europe/Berlin", cfg.Reference.Location.String())
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Outbox.Brokers)
		assert.Equal(t, 25, cfg.Outbox.BatchSize)
		assert.Equal(t, 5, cfg.RateLimit.WriteRequests)
		assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	})

	t.Run("rejects bad lease", func(t *testing.T) {
		t.Setenv("LOCK_LEASE_TTL", "soon")
		_, err := FromEnv()
		assert.Error(t, err)

		t.Setenv("LOCK_LEASE_TTL", "-1m")
		_, err = FromEnv()
		assert.Error(t, err)
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		t.Setenv("LOCK_LEASE_TTL", "")
		t.Setenv("REFERENCE_TZ", "Mars/Olympus")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
