package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DISCORD_WEBHOOK", "DATABASE_PATH", "STATE_DIR", "LOG_LEVEL",
	"ALLOWED_USERS", "METRICS_ADDR", "POLL_SECONDS", "TAG_BATCH", "REQ_DELAY_MS",
	"STEAM_REGION", "STEAM_LANG", "MIN_DISCOUNT", "MAX_PRICE", "MIN_YEAR", "MAX_YEAR",
	"MIN_REVIEWS", "EMBED_ITEMS", "MAX_QUEUE_PER_TARGET", "FLUSH_SECONDS",
	"DELIVERY_MAX_ATTEMPTS", "DELIVERY_RATE_PER_MIN", "DELIVERY_TIMEOUT_SECONDS",
	"EMBED_TITLE", "EMBED_COLOR", "EMBED_FOOTER",
}

func defaults() *Config {
	return &Config{
		DatabasePath:       "./data/bot.db",
		StateDir:           "./state",
		LogLevel:           "info",
		PollInterval:       600 * time.Second,
		TagBatch:           10,
		RequestDelay:       400 * time.Millisecond,
		SteamRegion:        "DE",
		SteamLang:          "en",
		EmbedItems:         8,
		MaxQueuePerTarget:  1000,
		FlushInterval:      300 * time.Second,
		DeliveryRatePerMin: 30,
		DeliveryTimeout:    15 * time.Second,
		EmbedTitle:         "Steam Specials",
		EmbedColor:         0x00b0ff,
	}
}

func TestLoad(t *testing.T) {
	price := 25.0
	year := 2018

	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token and webhook",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: func() *Config {
				c := defaults()
				c.TelegramBotToken = "test-token"
				return c
			},
		},
		{
			name: "webhook mode with thresholds",
			env: map[string]string{
				"DISCORD_WEBHOOK": "https://discord.com/api/webhooks/1/abc",
				"MIN_DISCOUNT":    "50",
				"MAX_PRICE":       "25",
				"MIN_YEAR":        "2018",
				"MIN_REVIEWS":     "500",
			},
			want: func() *Config {
				c := defaults()
				c.DiscordWebhook = "https://discord.com/api/webhooks/1/abc"
				c.MinDiscount = 50
				c.MaxPrice = &price
				c.MinYear = &year
				c.MinReviews = 500
				return c
			},
		},
		{
			name: "clamps embed items and queue capacity",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"EMBED_ITEMS":          "40",
				"MAX_QUEUE_PER_TARGET": "5",
				"EMBED_COLOR":          "0xff0000",
				"ALLOWED_USERS":        " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults()
				c.TelegramBotToken = "tok"
				c.EmbedItems = 25
				c.MaxQueuePerTarget = 100
				c.EmbedColor = 0xff0000
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name: "embed items floor",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "EMBED_ITEMS": "0"},
			want: func() *Config {
				c := defaults()
				c.TelegramBotToken = "tok"
				c.EmbedItems = 1
				return c
			},
		},
		{
			name:    "invalid number",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "POLL_SECONDS": "soon"},
			wantErr: true,
		},
		{
			name:    "invalid max price",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "MAX_PRICE": "cheap"},
			wantErr: true,
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBotMode(t *testing.T) {
	if !(&Config{TelegramBotToken: "x"}).BotMode() {
		t.Error("expected bot mode with token")
	}
	if (&Config{DiscordWebhook: "https://hook"}).BotMode() {
		t.Error("expected webhook mode without token")
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
