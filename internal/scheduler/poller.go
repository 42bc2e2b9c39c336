// Package scheduler runs the periodic poll and flush jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sale_bot/internal/filter"
	"sale_bot/internal/metrics"
	"sale_bot/internal/model"
	"sale_bot/internal/notify"
	"sale_bot/internal/seen"
	"sale_bot/internal/storage"
	"sale_bot/internal/tags"
)

// FetchCount is how many listings one poll request asks for.
const FetchCount = 50

const webhookCursor = "webhook"

// Fetcher loads the current specials for a tag.
type Fetcher interface {
	FetchSpecials(ctx context.Context, tagID int64, start, count int) ([]model.SaleListing, error)
}

// Poller fetches specials for a rotating slice of subscriptions, filters
// and dedupes them, and queues the fresh ones for delivery.
type Poller struct {
	store   storage.Storage
	tracker *seen.Tracker
	fetcher Fetcher
	queue   *notify.Queue
	metrics *metrics.Metrics
	log     *slog.Logger
	batch   int
	delay   time.Duration

	// webhook mode
	webhook    string
	thresholds model.ChannelPreferences

	mu      sync.Mutex
	cursors map[string]int
}

// NewPoller creates a Poller in bot mode: every channel with subscriptions
// is polled with its own preferences.
func NewPoller(store storage.Storage, f Fetcher, q *notify.Queue, log *slog.Logger) *Poller {
	return &Poller{
		store:   store,
		tracker: seen.New(store),
		fetcher: f,
		queue:   q,
		log:     log,
		batch:   10,
		cursors: make(map[string]int),
	}
}

// WithBatch sets how many subscriptions are polled per channel per tick
// and the pause between storefront requests.
func (p *Poller) WithBatch(n int, delay time.Duration) *Poller {
	p.batch = max(1, n)
	p.delay = max(0, delay)
	return p
}

// WithMetrics attaches collectors.
func (p *Poller) WithMetrics(m *metrics.Metrics) *Poller {
	p.metrics = m
	return p
}

// WithWebhook switches the Poller to webhook mode: only webhook
// subscriptions are polled, filtered by the fixed thresholds.
func (p *Poller) WithWebhook(url string, thresholds model.ChannelPreferences) *Poller {
	p.webhook = url
	p.thresholds = thresholds
	return p
}

// Seed creates one webhook subscription per catalogue tag when none exist.
// It returns how many were created.
func (p *Poller) Seed(ctx context.Context, catalog *tags.Catalog) (int, error) {
	if p.webhook == "" {
		return 0, nil
	}
	existing, err := p.store.ListWebhookSubs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, tag := range catalog.All() {
		sub := model.Subscription{
			Kind:    model.KindTag,
			TagID:   tag.ID,
			Webhook: p.webhook,
		}
		ok, err := p.store.InsertWebhookSub(ctx, &sub)
		if err != nil {
			return created, fmt.Errorf("seed tag %d: %w", tag.ID, err)
		}
		if ok {
			created++
		}
	}
	p.log.Info("seeded webhook subscriptions", "count", created)
	return created, nil
}

// Poll runs one tick. Failures are logged; a failing subscription never
// stops the others.
func (p *Poller) Poll(ctx context.Context) {
	start := time.Now()
	defer func() { p.metrics.PollFinished(time.Since(start)) }()

	if p.webhook != "" {
		p.pollWebhooks(ctx)
		return
	}
	p.pollChannels(ctx)
}

func (p *Poller) pollChannels(ctx context.Context) {
	channels, err := p.store.ListDistinctChannels(ctx)
	if err != nil {
		p.log.Error("list channels", "error", err)
		return
	}
	if len(channels) == 0 {
		p.log.Debug("no subscriptions yet")
		return
	}

	for _, channelID := range channels {
		if ctx.Err() != nil {
			return
		}
		subs, err := p.store.ListChannelSubs(ctx, channelID)
		if err != nil {
			p.log.Error("list channel subscriptions", "channel_id", channelID, "error", err)
			continue
		}
		prefs, err := p.store.GetChannelPreferences(ctx, channelID)
		if err != nil {
			p.log.Error("get preferences", "channel_id", channelID, "error", err)
			continue
		}
		for _, sub := range p.nextSlice(channelID, subs) {
			if !p.processSub(ctx, sub, prefs, model.ChannelTarget(channelID)) {
				return
			}
		}
	}
}

func (p *Poller) pollWebhooks(ctx context.Context) {
	subs, err := p.store.ListWebhookSubs(ctx)
	if err != nil {
		p.log.Error("list webhook subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		p.log.Warn("no webhook subscriptions configured")
		return
	}
	for _, sub := range p.nextSlice(webhookCursor, subs) {
		if !p.processSub(ctx, sub, p.thresholds, sub.Target()) {
			return
		}
	}
}

// nextSlice returns up to batch subscriptions starting at the key's
// cursor, wrapping around, and advances the cursor.
func (p *Poller) nextSlice(key string, subs []model.Subscription) []model.Subscription {
	if len(subs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.cursors[key] % len(subs)
	n := min(p.batch, len(subs))
	out := make([]model.Subscription, 0, n)
	for i := range n {
		out = append(out, subs[(start+i)%len(subs)])
	}
	p.cursors[key] = (start + n) % len(subs)
	return out
}

// processSub handles one subscription and then waits the request delay.
// It returns false when ctx was cancelled.
func (p *Poller) processSub(ctx context.Context, sub model.Subscription, prefs model.ChannelPreferences, target model.Target) bool {
	listings, err := p.fetcher.FetchSpecials(ctx, sub.TagID, 0, FetchCount)
	if err != nil {
		p.metrics.Fetch(false)
		p.log.Error("fetch specials", "sub_id", sub.ID, "tag_id", sub.TagID, "error", err)
		return p.pause(ctx)
	}
	p.metrics.Fetch(true)

	matched := filter.Apply(listings, prefs)
	fresh, err := p.tracker.Fresh(ctx, matched, seen.SubscriptionScope(sub.ID))
	if err != nil {
		p.log.Error("dedupe", "sub_id", sub.ID, "error", err)
	}

	p.metrics.Listings("fetched", len(listings))
	p.metrics.Listings("matched", len(matched))
	p.metrics.Listings("fresh", len(fresh))
	p.log.Debug("subscription polled", "sub_id", sub.ID, "tag_id", sub.TagID, "target", target.String(),
		"fetched", len(listings), "matched", len(matched), "fresh", len(fresh))

	if len(fresh) > 0 {
		if evicted := p.queue.Enqueue(target, fresh, notify.EnqueueOptions{}); evicted > 0 {
			p.log.Warn("queue full, dropped oldest", "target", target.String(), "count", evicted)
		}
	}
	return p.pause(ctx)
}

func (p *Poller) pause(ctx context.Context) bool {
	if p.delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
