package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter rate-limits requests per normalized host.
type HostLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing rps requests per second per host.
// A non-positive rps disables limiting.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Wait blocks until host may be contacted.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.rps <= 0 {
		return nil
	}
	return l.get(host).Wait(ctx)
}

// SlowDown applies a robots.txt crawl delay to host when it is stricter
// than the configured rate.
func (l *HostLimiter) SlowDown(host string, delay time.Duration) {
	if l == nil || delay <= 0 {
		return
	}
	lim := l.get(host)
	if every := rate.Every(delay); every < lim.Limit() {
		lim.SetLimit(every)
	}
}

func (l *HostLimiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[host]; ok {
		return lim
	}
	limit := l.rps
	if limit <= 0 {
		limit = rate.Inf
	}
	lim = rate.NewLimiter(limit, l.burst)
	l.limiters[host] = lim
	return lim
}
