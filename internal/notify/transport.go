package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sale_bot/internal/model"
)

var (
	// ErrUnknownTarget is returned when no transport can reach the target.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrStatus is returned when a webhook answers with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
)

// Transport delivers one batch to one target, all or nothing.
type Transport interface {
	Send(ctx context.Context, target model.Target, listings []model.SaleListing) error
}

// ChannelSender delivers a batch to a chat channel.
type ChannelSender interface {
	SendListings(ctx context.Context, channelID string, listings []model.SaleListing) error
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookTransport posts a single embed per batch to a webhook URL.
type WebhookTransport struct {
	client  HTTPClient
	style   EmbedStyle
	timeout time.Duration
	now     func() time.Time
}

// NewWebhookTransport creates a WebhookTransport. Each request is bounded by timeout.
func NewWebhookTransport(client HTTPClient, style EmbedStyle, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{client: client, style: style, timeout: timeout, now: time.Now}
}

type webhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Send implements Transport.
func (w *WebhookTransport) Send(ctx context.Context, target model.Target, listings []model.SaleListing) error {
	if target.Kind != model.TargetWebhook || target.URL == "" {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}

	body, err := json.Marshal(webhookPayload{Embeds: []Embed{BuildEmbed(w.style, listings, w.now())}})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Router dispatches webhook targets to a Transport and channel targets to a
// ChannelSender. Either may be nil, which makes that kind unreachable.
type Router struct {
	Webhook Transport
	Channel ChannelSender
}

// Send implements Transport.
func (r *Router) Send(ctx context.Context, target model.Target, listings []model.SaleListing) error {
	switch {
	case target.Kind == model.TargetWebhook && r.Webhook != nil:
		return r.Webhook.Send(ctx, target, listings)
	case target.Kind == model.TargetChannel && r.Channel != nil:
		return r.Channel.SendListings(ctx, target.ChannelID, listings)
	}
	return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
}

// RateLimited spaces deliveries per target with a token bucket.
type RateLimited struct {
	next  Transport
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimited allows perMinute sends per target; perMinute <= 0 disables limiting.
func NewRateLimited(next Transport, perMinute int) *RateLimited {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
		burst = max(1, perMinute/10)
	}
	return &RateLimited{next: next, limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (r *RateLimited) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = lim
	}
	return lim
}

// Send waits for the target's limiter, then delivers.
func (r *RateLimited) Send(ctx context.Context, target model.Target, listings []model.SaleListing) error {
	if err := r.limiter(target.Key()).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", target, err)
	}
	return r.next.Send(ctx, target, listings)
}
