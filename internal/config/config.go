package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the larder server.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	Database  DatabaseConfig
	Telegram  TelegramConfig
	Reasoning ReasoningConfig
	Search    SearchConfig
	History   HistoryConfig
	Engrams   EngramConfig
	Janitor   JanitorConfig
	Telemetry TelemetryConfig
	Admin     AdminConfig
}

type DatabaseConfig struct {
	// URL selects PostgreSQL. Empty means the in-memory store.
	URL            string
	MaxConnections int
	// SnapshotPath persists the in-memory store between restarts.
	SnapshotPath string
}

type TelegramConfig struct {
	BotToken       string
	WebhookSecret  string
	AllowedChatIDs []int64
	APIEndpoint    string
}

type ReasoningConfig struct {
	APIKey    string
	Endpoint  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	MaxRounds int
}

type SearchConfig struct {
	BraveAPIKey string
}

type HistoryConfig struct {
	// RedisURL moves conversation history into Redis when set.
	RedisURL    string
	MaxMessages int
	TTL         time.Duration
}

type EngramConfig struct {
	CacheTTL         time.Duration
	Capacity         int
	PipelineCacheTTL time.Duration
	SnapshotTTL      time.Duration
}

type JanitorConfig struct {
	Enabled  bool
	Schedule string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AdminConfig struct {
	// APIKey guards /api/v1. Empty disables the admin API.
	APIKey string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env")
	}

	return &Config{
		Port:     envInt("LARDER_PORT", 8080),
		Version:  envStr("LARDER_VERSION", "0.1.0"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 10),
			SnapshotPath:   envStr("LARDER_SNAPSHOT_PATH", ""),
		},
		Telegram: TelegramConfig{
			BotToken:       envStr("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret:  envStr("TELEGRAM_WEBHOOK_SECRET", ""),
			AllowedChatIDs: envInt64List("TELEGRAM_ALLOWED_CHAT_IDS"),
			APIEndpoint:    envStr("TELEGRAM_API_ENDPOINT", ""),
		},
		Reasoning: ReasoningConfig{
			APIKey:    envStr("ANTHROPIC_API_KEY", ""),
			Endpoint:  envStr("ANTHROPIC_ENDPOINT", ""),
			Model:     envStr("ANTHROPIC_MODEL", ""),
			MaxTokens: envInt("ANTHROPIC_MAX_TOKENS", 0),
			Timeout:   envDuration("REASONING_TIMEOUT", 25*time.Second),
			MaxRounds: envInt("REASONING_MAX_ROUNDS", 7),
		},
		Search: SearchConfig{
			BraveAPIKey: envStr("BRAVE_SEARCH_API_KEY", ""),
		},
		History: HistoryConfig{
			RedisURL:    envStr("REDIS_URL", ""),
			MaxMessages: envInt("HISTORY_MAX_MESSAGES", 20),
			TTL:         envDuration("HISTORY_TTL", 15*time.Minute),
		},
		Engrams: EngramConfig{
			CacheTTL:         envDuration("ENGRAM_CACHE_TTL", 5*time.Minute),
			Capacity:         envInt("ENGRAM_CAPACITY", 200),
			PipelineCacheTTL: envDuration("PIPELINE_CACHE_TTL", 5*time.Minute),
			SnapshotTTL:      envDuration("INVENTORY_SNAPSHOT_TTL", 60*time.Second),
		},
		Janitor: JanitorConfig{
			Enabled:  envBool("JANITOR_ENABLED", true),
			Schedule: envStr("JANITOR_SCHEDULE", "@every 10m"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "larder"),
		},
		Admin: AdminConfig{
			APIKey: envStr("LARDER_ADMIN_API_KEY", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envInt64List parses a comma separated list, skipping malformed entries.
func envInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warn().Str("key", key).Str("value", part).Msg("Ignoring malformed chat ID")
			continue
		}
		out = append(out, id)
	}
	return out
}
