// Package redis implements the Redis read models of the Progression Engine.
package redis

import (
	"context"
	"errors"

	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE
// Caches assembled progress views. All operations run behind a circuit
// breaker: when Redis is down the breaker opens and reads degrade to cache
// misses instead of stalling every request on connection timeouts.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressCache implements query.ProgressCache on Redis.
type ProgressCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewProgressCache creates a new ProgressCache.
func NewProgressCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *ProgressCache {
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	return &ProgressCache{cache: cache, breaker: breaker}
}

// Get returns the cached view or query.ErrCacheMiss. An open breaker reads
// as a miss. A miss is a successful round trip and does not count against
// the breaker.
func (p *ProgressCache) Get(ctx context.Context, studentID string) (*query.ProgressView, error) {
	var (
		view   query.ProgressView
		missed bool
	)

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		err := p.cache.Get(ctx, ProgressKey(studentID), &view)
		if errors.Is(err, ErrCacheMiss) {
			missed = true
			return nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
			errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, query.ErrCacheMiss
		}
		return nil, err
	}
	if missed {
		return nil, query.ErrCacheMiss
	}
	return &view, nil
}

// Set stores the view with the configured TTL.
func (p *ProgressCache) Set(ctx context.Context, view *query.ProgressView) error {
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Set(ctx, ProgressKey(view.StudentID), view, TTLProgressCache)
	})
}

// Invalidate drops the cached view for a student.
func (p *ProgressCache) Invalidate(ctx context.Context, studentID string) error {
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Delete(ctx, ProgressKey(studentID))
	})
}
