package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COMMISSION_ORGANIZER_PERCENT", "")
	t.Setenv("INVOICE_NUMBER_PREFIX", "")
	t.Setenv("RATE_LIMIT_SCAN", "")

	cfg := LoadConfig()

	assert.True(t, decimal.NewFromInt(5).Equal(cfg.Commission.OrganizerPercent))
	assert.True(t, decimal.NewFromInt(30).Equal(cfg.Commission.SetupPoolPercent))
	assert.Equal(t, "INV", cfg.Invoice.NumberPrefix)
	assert.Equal(t, 3, cfg.Invoice.NumberRetries)
	assert.Equal(t, "10-M", cfg.RateLimit.Scan)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("COMMISSION_ORGANIZER_PERCENT", "7.5")
	t.Setenv("INVOICE_NUMBER_RETRIES", "5")
	t.Setenv("SHARE_LINK_TTL", "2h")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("SCAN_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	assert.True(t, decimal.RequireFromString("7.5").Equal(cfg.Commission.OrganizerPercent))
	assert.Equal(t, 5, cfg.Invoice.NumberRetries)
	assert.Equal(t, 2*time.Hour, cfg.Share.TTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 60*time.Second, cfg.AI.ScanTimeout)
}

func TestNewRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(RedisConfig{Enabled: false})
	assert.Error(t, err)
	assert.Nil(t, client)
}
