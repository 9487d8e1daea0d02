package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a keyed token-bucket limiter: one bucket per key, created lazily
// with the rate and burst of the first call for that key.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func New() *Limiter { return &Limiter{m: make(map[string]*rate.Limiter)} }

func (l *Limiter) bucket(key string, rps float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		if rps <= 0 {
			b = rate.NewLimiter(rate.Inf, burst)
		} else {
			b = rate.NewLimiter(rate.Limit(rps), burst)
		}
		l.m[key] = b
	}
	return b
}

// Allow reports whether one token can be consumed for key right now.
func (l *Limiter) Allow(key string, rps float64, burst int) bool {
	return l.bucket(key, rps, burst).Allow()
}

// Wait blocks until a token is available for key or the context ends.
func (l *Limiter) Wait(ctx context.Context, key string, rps float64, burst int) error {
	return l.bucket(key, rps, burst).Wait(ctx)
}
