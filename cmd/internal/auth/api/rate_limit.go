package authapi

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter keeps one token bucket per client key.
type IPRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*ipLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewIPRateLimiter returns nil when limit is not positive (no limiting).
// A background goroutine drops buckets idle for longer than idle; call Stop to end it.
func NewIPRateLimiter(limit rate.Limit, burst int, idle time.Duration) *IPRateLimiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	rl := &IPRateLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*ipLimiter),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow consumes one token for key at now. When denied it returns the time until
// the next token is available.
func (rl *IPRateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastAccess = now
	rl.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	return false, rl.retryAfter()
}

func (rl *IPRateLimiter) retryAfter() time.Duration {
	secs := math.Ceil(1.0 / float64(rl.limit))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Len reports how many buckets are tracked.
func (rl *IPRateLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop ends the cleanup goroutine (idempotent).
func (rl *IPRateLimiter) Stop() {
	if rl == nil {
		return
	}
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *IPRateLimiter) cleanupLoop() {
	t := time.NewTicker(rl.idle)
	defer t.Stop()

	for {
		select {
		case now := <-t.C:
			rl.cleanup(now)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *IPRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if now.Sub(b.lastAccess) > rl.idle {
			delete(rl.buckets, k)
		}
	}
}
