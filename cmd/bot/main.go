package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sale_bot/internal/bot"
	"sale_bot/internal/config"
	"sale_bot/internal/deals"
	"sale_bot/internal/fetcher"
	"sale_bot/internal/metrics"
	"sale_bot/internal/model"
	"sale_bot/internal/notify"
	"sale_bot/internal/scheduler"
	"sale_bot/internal/snapshot"
	"sale_bot/internal/storage"
	"sale_bot/internal/tags"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snap := snapshot.New(cfg.StateDir, store, log)
	if _, err := snap.Restore(ctx); err != nil {
		log.Warn("restore snapshot", "dir", cfg.StateDir, "error", err)
	}
	store.OnChange(snap.Schedule)

	catalog, err := tags.Default()
	if err != nil {
		log.Error("load tag catalog", "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	queue := notify.NewQueue(cfg.MaxQueuePerTarget, m)
	router := &notify.Router{
		Webhook: notify.NewWebhookTransport(httpClient, notify.EmbedStyle{
			Title:  cfg.EmbedTitle,
			Color:  cfg.EmbedColor,
			Footer: cfg.EmbedFooter,
		}, cfg.DeliveryTimeout),
	}
	flusher := notify.NewFlusher(queue, notify.NewRateLimited(router, cfg.DeliveryRatePerMin), cfg.EmbedItems, log).
		WithMaxAttempts(cfg.DeliveryMaxAttempts).
		WithMetrics(m)

	steam := fetcher.New(httpClient, log).WithLocale(cfg.SteamRegion, cfg.SteamLang)
	poller := scheduler.NewPoller(store, steam, queue, log).
		WithBatch(cfg.TagBatch, cfg.RequestDelay).
		WithMetrics(m)

	var b *bot.Bot
	if cfg.BotMode() {
		b, err = bot.New(cfg.TelegramBotToken, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		router.Channel = b
		b.SetService(deals.New(store, steam, queue, flusher, catalog, log))
		log.Info("mode", "mode", "bot")
	} else {
		poller.WithWebhook(cfg.DiscordWebhook, model.ChannelPreferences{
			MinDiscount: cfg.MinDiscount,
			MaxPrice:    cfg.MaxPrice,
			MinYear:     cfg.MinYear,
			MaxYear:     cfg.MaxYear,
			MinReviews:  cfg.MinReviews,
		})
		if _, err := poller.Seed(ctx, catalog); err != nil {
			log.Error("seed webhook subscriptions", "error", err)
		}
		log.Info("mode", "mode", "webhook")
	}

	sup := scheduler.NewSupervisor(log)
	sup.Every("poll", cfg.PollInterval, true, poller.Poll)
	sup.Every("flush", cfg.FlushInterval, false, func(ctx context.Context) { flusher.FlushAll(ctx) })
	if err := sup.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	log.Info("starting bot")

	if b != nil {
		b.Run(ctx)
	} else {
		<-ctx.Done()
	}

	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if n := flusher.FlushAll(shutdownCtx); n > 0 {
		log.Info("flushed on shutdown", "count", n)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown", "error", err)
		}
	}
	if err := snap.Flush(shutdownCtx); err != nil {
		log.Error("write snapshot", "error", err)
	}

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
