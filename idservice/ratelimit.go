package idservice

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterSweepEvery = 512

// keyLimiter applies a token bucket per principal and evicts idle buckets.
// A nil keyLimiter allows everything.
type keyLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyLimiter(rps float64, burst int, idleTTL time.Duration) *keyLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &keyLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*bucket),
	}
}

func (l *keyLimiter) allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%limiterSweepEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

func (l *keyLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
