package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8091", cfg.OpsAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 5, cfg.AllocMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.AllocBaseDelay)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 30, cfg.RateLimitMax)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.NotifierConfigured())
	assert.Empty(t, cfg.BoardKeyHashes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_ENVIRONMENT", "production")
	t.Setenv("QUEUE_REDIS_URL", "redis:6380")
	t.Setenv("QUEUE_TIMEZONE", "Asia/Vientiane")
	t.Setenv("QUEUE_RATE_LIMIT_WINDOW", "2m")
	t.Setenv("QUEUE_RATE_LIMIT_MAX", "10")
	t.Setenv("QUEUE_BOARD_KEY_HASHES", "$2a$10$aaa,$2a$10$bbb")
	t.Setenv("QUEUE_PUBNUB_PUBLISH_KEY", "pub-c-demo")
	t.Setenv("QUEUE_PUBNUB_SUBSCRIBE_KEY", "sub-c-demo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis:6380", cfg.RedisURL)
	assert.Equal(t, "Asia/Vientiane", cfg.Timezone)
	assert.Equal(t, "Asia/Vientiane", cfg.Location().String())
	assert.Equal(t, 2*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 10, cfg.RateLimitMax)
	assert.Equal(t, []string{"$2a$10$aaa", "$2a$10$bbb"}, cfg.BoardKeyHashes)
	assert.True(t, cfg.NotifierConfigured())
}

func TestLoadBoardKeyHashesTrimmed(t *testing.T) {
	t.Setenv("QUEUE_BOARD_KEY_HASHES", " $2a$10$aaa , ,$2a$10$bbb,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"$2a$10$aaa", "$2a$10$bbb"}, cfg.BoardKeyHashes)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yaml")
	body := []byte("ops_addr: \":9100\"\nbooking_fee: \"1.50\"\nsubscriber_buffer: 16\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("QUEUE_CONFIG_PATH", path)
	// Environment still beats the file.
	t.Setenv("QUEUE_SUBSCRIBER_BUFFER", "32")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.OpsAddr)
	assert.Equal(t, "1.50", cfg.BookingFee)
	assert.Equal(t, 32, cfg.SubscriberBuffer)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("QUEUE_TIMEZONE", "Not/AZone")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("QUEUE_ALLOC_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}
