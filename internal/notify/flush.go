package notify

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"sale_bot/internal/metrics"
	"sale_bot/internal/model"
)

// Flusher moves batches from the Queue to a Transport. A failed batch goes
// back to the head of its queue for the next flush.
type Flusher struct {
	queue       *Queue
	transport   Transport
	batchSize   int
	maxAttempts int
	parallelism int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewFlusher creates a Flusher sending at most batchSize listings per delivery.
func NewFlusher(q *Queue, t Transport, batchSize int, logger *slog.Logger) *Flusher {
	return &Flusher{
		queue:       q,
		transport:   t,
		batchSize:   max(1, batchSize),
		parallelism: 8,
		logger:      logger,
		inflight:    make(map[string]*sync.Mutex),
	}
}

// WithMaxAttempts drops entries that failed n deliveries. Zero retries forever.
func (f *Flusher) WithMaxAttempts(n int) *Flusher {
	f.maxAttempts = max(0, n)
	return f
}

// WithMetrics attaches collectors.
func (f *Flusher) WithMetrics(m *metrics.Metrics) *Flusher {
	f.metrics = m
	return f
}

func (f *Flusher) targetLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.inflight[key]
	if !ok {
		l = &sync.Mutex{}
		f.inflight[key] = l
	}
	return l
}

// FlushTarget delivers one batch for target, taking entries of scope first
// when scope is set. It returns how many listings were delivered: zero
// when the queue is empty or delivery failed.
func (f *Flusher) FlushTarget(ctx context.Context, target model.Target, scope string) int {
	lock := f.targetLock(target.Key())
	lock.Lock()
	defer lock.Unlock()

	batch := f.queue.PopBatch(target, f.batchSize, scope)
	if len(batch) == 0 {
		return 0
	}

	listings := make([]model.SaleListing, len(batch))
	for i, e := range batch {
		listings[i] = e.Listing
	}

	kind := kindLabel(target)
	if err := f.transport.Send(ctx, target, listings); err != nil {
		f.metrics.Delivery(kind, false)
		retry := f.retryable(batch)
		dropped := len(batch) - len(retry)
		f.queue.RequeueFront(target, retry)
		f.logger.Warn("delivery failed", "target", target.String(), "count", len(batch),
			"requeued", len(retry), "dropped", dropped, "error", err)
		f.metrics.Dropped(kind, dropped)
		return 0
	}

	f.metrics.Delivery(kind, true)
	f.logger.Info("batch delivered", "target", target.String(), "count", len(batch),
		"remaining", f.queue.Len(target))
	return len(batch)
}

// retryable bumps the attempt counter and keeps the entries still allowed
// another attempt, in order.
func (f *Flusher) retryable(batch []Entry) []Entry {
	out := make([]Entry, 0, len(batch))
	for _, e := range batch {
		e.Attempts++
		if f.maxAttempts > 0 && e.Attempts >= f.maxAttempts {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FlushAll delivers one batch to every non-empty target concurrently and
// returns the total number of listings delivered.
func (f *Flusher) FlushAll(ctx context.Context) int {
	targets := f.queue.Targets()
	if len(targets) == 0 {
		return 0
	}

	var (
		mu    sync.Mutex
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for _, t := range targets {
		g.Go(func() error {
			n := f.FlushTarget(gctx, t, "")
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Debug("flush finished", "targets", len(targets), "delivered", total)
	return total
}
