package httpmiddleware

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter approximates a sliding window with two fixed windows: the
// previous window's count is weighted by how much of it still overlaps.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start      time.Time
	prev, curr float64
}

// NewMemoryLimiter allows max requests per window and key.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: window, buckets: map[string]*bucket{}}
}

func (l *MemoryLimiter) Limit() int { return l.max }

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: start}
		l.buckets[key] = b
	case start.Sub(b.start) == l.window:
		b.start, b.prev, b.curr = start, b.curr, 0
	case start.Sub(b.start) > l.window:
		b.start, b.prev, b.curr = start, 0, 0
	}

	overlap := 1 - float64(now.Sub(b.start))/float64(l.window)
	used := b.prev*overlap + b.curr
	q := Quota{Reset: b.start.Add(l.window)}
	if used >= float64(l.max) {
		return q, nil
	}
	b.curr++
	q.Allowed = true
	q.Remaining = max(int(float64(l.max)-used-1), 0)
	return q, nil
}

// Run evicts idle keys every two windows until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

func (l *MemoryLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.start) >= 2*l.window {
			delete(l.buckets, key)
		}
	}
}
