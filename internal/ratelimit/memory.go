package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = time.Hour

// Memory is a process-local token bucket per key. Each bucket refills at
// perMinute/60 tokens per second with a burst of perMinute.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	now     func() time.Time

	stopClean chan struct{}
	stopOnce  sync.Once
}

type bucket struct {
	limiter    *rate.Limiter
	perMinute  int
	lastAccess time.Time
}

func NewMemory() *Memory {
	return &Memory{
		buckets:   make(map[string]*bucket),
		idleTTL:   defaultIdleTTL,
		now:       time.Now,
		stopClean: make(chan struct{}),
	}
}

func (m *Memory) Allow(_ context.Context, key string, n, perMinute int) (Decision, error) {
	if perMinute <= 0 {
		return Decision{Allowed: true}, nil
	}
	if n <= 0 {
		n = 1
	}
	if n > perMinute {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}

	now := m.now()
	lim := m.bucketFor(key, perMinute, now)

	r := lim.ReserveN(now, n)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: retryAfterAtLeastSecond(delay)}, nil
	}
	return Decision{Allowed: true, Remaining: int(lim.TokensAt(now))}, nil
}

func (m *Memory) bucketFor(key string, perMinute int, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{
			limiter:   rate.NewLimiter(perMinuteLimit(perMinute), perMinute),
			perMinute: perMinute,
		}
		m.buckets[key] = b
	} else if b.perMinute != perMinute {
		b.limiter.SetLimitAt(now, perMinuteLimit(perMinute))
		b.limiter.SetBurstAt(now, perMinute)
		b.perMinute = perMinute
	}
	b.lastAccess = now
	return b.limiter
}

func perMinuteLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60)
}

// StartCleanup evicts idle buckets every interval until Stop is called.
func (m *Memory) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.cleanup()
			case <-m.stopClean:
				return
			}
		}
	}()
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.now().Add(-m.idleTTL)
	for key, b := range m.buckets {
		if b.lastAccess.Before(threshold) {
			delete(m.buckets, key)
		}
	}
}

func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stopClean) })
}
