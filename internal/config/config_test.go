package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LARDER_PORT", "")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "")
	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 25*time.Second, cfg.Reasoning.Timeout)
	assert.Equal(t, 7, cfg.Reasoning.MaxRounds)
	assert.Equal(t, 20, cfg.History.MaxMessages)
	assert.Equal(t, 15*time.Minute, cfg.History.TTL)
	assert.Empty(t, cfg.Telegram.AllowedChatIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LARDER_PORT", "9090")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "123, -456,,abc")
	t.Setenv("REASONING_TIMEOUT", "5s")
	t.Setenv("JANITOR_ENABLED", "false")
	t.Setenv("HISTORY_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []int64{123, -456}, cfg.Telegram.AllowedChatIDs)
	assert.Equal(t, 5*time.Second, cfg.Reasoning.Timeout)
	assert.False(t, cfg.Janitor.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.History.TTL)
}
