// Package notify queues sale listings per destination and delivers them in batches.
package notify

import (
	"sort"
	"sync"

	"sale_bot/internal/metrics"
	"sale_bot/internal/model"
)

// Entry is one queued listing.
type Entry struct {
	Listing  model.SaleListing
	Scope    string
	Attempts int
}

// EnqueueOptions controls where new entries go.
type EnqueueOptions struct {
	// Prepend puts the listings ahead of everything already queued.
	Prepend bool
	// Scope tags the entries so a later PopBatch can drain them first.
	Scope string
}

// Queue is a bounded FIFO of listings per target. All mutations are
// serialized by one mutex, so a pop followed by a requeue never
// interleaves with an enqueue on the same target.
type Queue struct {
	capacity int
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[string][]Entry
	targets map[string]model.Target
}

// NewQueue creates a queue holding at most capacity entries per target.
func NewQueue(capacity int, m *metrics.Metrics) *Queue {
	return &Queue{
		capacity: max(1, capacity),
		metrics:  m,
		entries:  make(map[string][]Entry),
		targets:  make(map[string]model.Target),
	}
}

// Enqueue adds listings to the target's queue and evicts the oldest entries
// beyond capacity. It returns the number of evicted entries.
func (q *Queue) Enqueue(target model.Target, listings []model.SaleListing, opts EnqueueOptions) int {
	if len(listings) == 0 {
		return 0
	}

	wrapped := make([]Entry, len(listings))
	for i, l := range listings {
		wrapped[i] = Entry{Listing: l, Scope: opts.Scope}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := target.Key()
	existing := q.entries[key]
	var combined []Entry
	if opts.Prepend {
		combined = append(wrapped, existing...)
	} else {
		combined = append(existing, wrapped...)
	}

	evicted := q.store(target, combined, len(existing))
	q.metrics.Enqueued(kindLabel(target), len(listings))
	return evicted
}

// PopBatch removes up to n entries from the target's queue. With a scope,
// entries of that scope are taken first in queue order and the remainder is
// filled from the rest; what stays keeps its relative order with scoped
// entries ahead. Without a scope entries are taken strictly from the front.
func (q *Queue) PopBatch(target model.Target, n int, scope string) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := target.Key()
	all := q.entries[key]
	if len(all) == 0 || n <= 0 {
		return nil
	}

	var picked, remaining []Entry
	if scope == "" {
		cut := min(n, len(all))
		picked = append([]Entry(nil), all[:cut]...)
		remaining = all[cut:]
	} else {
		var scoped, rest []Entry
		for _, e := range all {
			if e.Scope == scope {
				scoped = append(scoped, e)
			} else {
				rest = append(rest, e)
			}
		}
		fromScoped := min(n, len(scoped))
		fromRest := min(n-fromScoped, len(rest))
		picked = append(picked, scoped[:fromScoped]...)
		picked = append(picked, rest[:fromRest]...)
		remaining = append(scoped[fromScoped:], rest[fromRest:]...)
	}

	q.store(target, append([]Entry(nil), remaining...), len(all))
	return picked
}

// RequeueFront puts previously popped entries back at the head of the
// target's queue in their original order. Capacity still applies; it
// returns the number of evicted entries.
func (q *Queue) RequeueFront(target model.Target, entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	existing := q.entries[target.Key()]
	combined := make([]Entry, 0, len(entries)+len(existing))
	combined = append(combined, entries...)
	combined = append(combined, existing...)
	return q.store(target, combined, len(existing))
}

// store trims combined to capacity from the front and saves it. prevLen is
// the length before the mutation, used for the depth gauge. Callers hold q.mu.
func (q *Queue) store(target model.Target, combined []Entry, prevLen int) int {
	key := target.Key()
	evicted := 0
	if over := len(combined) - q.capacity; over > 0 {
		evicted = over
		combined = combined[over:]
	}

	if len(combined) == 0 {
		delete(q.entries, key)
		delete(q.targets, key)
	} else {
		q.entries[key] = combined
		q.targets[key] = target
	}

	kind := kindLabel(target)
	q.metrics.QueueChanged(kind, len(combined)-prevLen)
	q.metrics.Evicted(kind, evicted)
	return evicted
}

// Targets returns every target with at least one queued entry, ordered by key.
func (q *Queue) Targets() []model.Target {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.targets))
	for k := range q.targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.Target, len(keys))
	for i, k := range keys {
		out[i] = q.targets[k]
	}
	return out
}

// Len returns the number of entries queued for target.
func (q *Queue) Len(target model.Target) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[target.Key()])
}

// Entries returns a copy of the target's queue.
func (q *Queue) Entries(target model.Target) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries[target.Key()]...)
}

func kindLabel(t model.Target) string {
	if t.Kind == model.TargetChannel {
		return "channel"
	}
	return "webhook"
}
