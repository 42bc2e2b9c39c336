// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DiscordWebhook   string
	DatabasePath     string
	StateDir         string
	LogLevel         string
	AllowedUsers     []int64
	MetricsAddr      string

	PollInterval time.Duration
	TagBatch     int
	RequestDelay time.Duration
	SteamRegion  string
	SteamLang    string

	// Webhook-mode thresholds; bot mode uses per-channel preferences.
	MinDiscount int
	MaxPrice    *float64
	MinYear     *int
	MaxYear     *int
	MinReviews  int

	EmbedItems          int
	MaxQueuePerTarget   int
	FlushInterval       time.Duration
	DeliveryMaxAttempts int
	DeliveryRatePerMin  int
	DeliveryTimeout     time.Duration
	EmbedTitle          string
	EmbedColor          int
	EmbedFooter         string
}

// BotMode reports whether the chat bot drives subscriptions.
// Without a bot token the process runs in webhook mode.
func (c *Config) BotMode() bool {
	return c.TelegramBotToken != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DiscordWebhook:   os.Getenv("DISCORD_WEBHOOK"),
		DatabasePath:     envOr("DATABASE_PATH", "./data/bot.db"),
		StateDir:         envOr("STATE_DIR", "./state"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		SteamRegion:      envOr("STEAM_REGION", "DE"),
		SteamLang:        envOr("STEAM_LANG", "en"),
		EmbedTitle:       envOr("EMBED_TITLE", "Steam Specials"),
		EmbedFooter:      os.Getenv("EMBED_FOOTER"),
	}
	if cfg.TelegramBotToken == "" && cfg.DiscordWebhook == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN or DISCORD_WEBHOOK is required")
	}

	var err error
	if cfg.AllowedUsers, err = parseUserList(os.Getenv("ALLOWED_USERS")); err != nil {
		return nil, err
	}

	var pollSec, delayMs, flushSec, timeoutSec int
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"POLL_SECONDS", 600, &pollSec},
		{"TAG_BATCH", 10, &cfg.TagBatch},
		{"REQ_DELAY_MS", 400, &delayMs},
		{"MIN_DISCOUNT", 0, &cfg.MinDiscount},
		{"MIN_REVIEWS", 0, &cfg.MinReviews},
		{"EMBED_ITEMS", 8, &cfg.EmbedItems},
		{"MAX_QUEUE_PER_TARGET", 1000, &cfg.MaxQueuePerTarget},
		{"FLUSH_SECONDS", 300, &flushSec},
		{"DELIVERY_MAX_ATTEMPTS", 0, &cfg.DeliveryMaxAttempts},
		{"DELIVERY_RATE_PER_MIN", 30, &cfg.DeliveryRatePerMin},
		{"DELIVERY_TIMEOUT_SECONDS", 15, &timeoutSec},
	}
	for _, v := range ints {
		if *v.dst, err = envInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if cfg.EmbedColor, err = envColor("EMBED_COLOR", 0x00b0ff); err != nil {
		return nil, err
	}
	if cfg.MaxPrice, err = envOptionalFloat("MAX_PRICE"); err != nil {
		return nil, err
	}
	if cfg.MinYear, err = envOptionalInt("MIN_YEAR"); err != nil {
		return nil, err
	}
	if cfg.MaxYear, err = envOptionalInt("MAX_YEAR"); err != nil {
		return nil, err
	}

	if pollSec < 1 {
		pollSec = 600
	}
	if flushSec < 1 {
		flushSec = 300
	}
	if cfg.TagBatch < 1 {
		cfg.TagBatch = 10
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second
	cfg.FlushInterval = time.Duration(flushSec) * time.Second
	cfg.RequestDelay = time.Duration(max(0, delayMs)) * time.Millisecond
	cfg.DeliveryTimeout = time.Duration(max(1, timeoutSec)) * time.Second
	cfg.EmbedItems = min(25, max(1, cfg.EmbedItems))
	cfg.MaxQueuePerTarget = max(100, cfg.MaxQueuePerTarget)
	cfg.DeliveryMaxAttempts = max(0, cfg.DeliveryMaxAttempts)

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envOptionalInt(key string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return &n, nil
}

func envOptionalFloat(key string) (*float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return &f, nil
}

// envColor accepts decimal or 0x-prefixed hex.
func envColor(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return int(n), nil
}

func parseUserList(raw string) ([]int64, error) {
	var users []int64
	if raw == "" {
		return nil, nil
	}
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		users = append(users, uid)
	}
	return users, nil
}
