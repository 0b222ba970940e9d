package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SYNC_BATCH_SIZE", "SYNC_PAGE_DELAY_MS", "FANOUT_STAGGER_MINUTES",
		"WEBHOOK_MAX_BODY_BYTES", "WEBHOOK_DEDUP_TTL_SECONDS", "WEBHOOK_PUSH_TIMEOUT_SECONDS", "TRACE_SAMPLE_RATIO", "ALERT_EMAIL_TO"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.FanOutStagger)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, time.Duration(0), cfg.Webhook.DedupTTL)
	assert.Equal(t, 2*time.Minute, cfg.Webhook.PushTimeout)
	assert.Equal(t, float64(1), cfg.Observ.TraceSampleRatio)
	assert.Empty(t, cfg.Alerts.To)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_BATCH_SIZE", "25")
	t.Setenv("WEBHOOK_DEDUP_TTL_SECONDS", "600")
	t.Setenv("WEBHOOK_PUSH_TIMEOUT_SECONDS", "30")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ALERT_EMAIL_TO", "ops@example.com, ,oncall@example.com")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	t.Setenv("SYNC_PAGE_SIZE", "lots")

	cfg := Load()

	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Webhook.DedupTTL)
	assert.Equal(t, 30*time.Second, cfg.Webhook.PushTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Alerts.To)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
	assert.Equal(t, 50, cfg.Sync.PageSize)
}
