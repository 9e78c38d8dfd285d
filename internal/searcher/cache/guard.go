package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/resilience"
)

// Guarded wraps a Backend so that a slow or failing cache cannot stall
// searches: every call is bounded by timeout and a circuit breaker stops
// calling the backend after repeated failures. Cache misses are not
// failures.
func Guarded(backend Backend, breaker *resilience.Breaker, timeout time.Duration) Backend {
	return &guarded{backend: backend, breaker: breaker, timeout: timeout}
}

type guarded struct {
	backend Backend
	breaker *resilience.Breaker
	timeout time.Duration
}

func (g *guarded) Get(ctx context.Context, key string) (string, error) {
	var (
		value  string
		getErr error
	)
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "cache get", func(ctx context.Context) error {
			var err error
			value, err = g.backend.Get(ctx, key)
			if pkgredis.IsNilError(err) {
				getErr = err
				return nil
			}
			return err
		})
	})
	if err != nil {
		return "", err
	}
	return value, getErr
}

func (g *guarded) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "cache set", func(ctx context.Context) error {
			return g.backend.Set(ctx, key, value, ttl)
		})
	})
}

// FlushByPattern bypasses the breaker: invalidation must be attempted even
// while reads are being shed.
func (g *guarded) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return g.backend.FlushByPattern(ctx, pattern)
}
