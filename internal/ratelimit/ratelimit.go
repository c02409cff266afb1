// Package ratelimit counts requests per key over a rolling window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow is an in-process sliding log limiter. It is correct for a single
// instance only; use RedisWindow when several instances share the limit.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window, hits: map[string][]time.Time{}, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (w *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	w.now = now
	return w
}

// Allow records the request and reports whether it is within the limit.
// Rejected requests are not recorded.
func (w *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	recent := w.prune(key, now)
	if len(recent) >= w.limit {
		return false, nil
	}
	w.hits[key] = append(recent, now)
	return true, nil
}

func (w *SlidingWindow) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-w.window)
	hits := w.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	recent := hits[i:]
	if len(recent) == 0 {
		delete(w.hits, key)
		return nil
	}
	w.hits[key] = recent
	return recent
}

// Sweep drops keys whose hits have all expired.
func (w *SlidingWindow) Sweep() {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for key := range w.hits {
		w.prune(key, now)
	}
}

// RunJanitor sweeps every interval until ctx is done.
func (w *SlidingWindow) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

func (w *SlidingWindow) keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}
