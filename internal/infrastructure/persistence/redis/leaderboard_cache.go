// Package redis implements the Redis read models of the Progression Engine.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// The global XP ranking is one sorted set: member = student ID, score =
// total XP. Maintained incrementally by the event projections and rebuilt
// from Postgres by the periodic job.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache implements query.Leaderboard and the projection write side.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// SetScore sets a student's leaderboard score to their total XP.
func (l *LeaderboardCache) SetScore(ctx context.Context, studentID string, totalXP int) error {
	if studentID == "" {
		return ErrCacheKeyEmpty
	}
	return l.cache.ZAdd(ctx, LeaderboardKey(), studentID, float64(totalXP))
}

// Remove drops a student from the ranking.
func (l *LeaderboardCache) Remove(ctx context.Context, studentID string) error {
	return l.cache.ZRem(ctx, LeaderboardKey(), studentID)
}

// Top returns the top n students by total XP, best first.
func (l *LeaderboardCache) Top(ctx context.Context, n int) ([]query.RankedStudent, error) {
	if n <= 0 {
		return nil, nil
	}

	members, err := l.cache.ZRevRangeWithScores(ctx, LeaderboardKey(), 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: failed to read ranking: %w", err)
	}

	ranked := make([]query.RankedStudent, 0, len(members))
	for i, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		ranked = append(ranked, query.RankedStudent{
			StudentID: id,
			TotalXP:   int(m.Score),
			Rank:      i + 1,
		})
	}
	return ranked, nil
}

// Rank returns a single student's rank (1-based) and score.
func (l *LeaderboardCache) Rank(ctx context.Context, studentID string) (*query.RankedStudent, error) {
	rank, err := l.cache.ZRevRank(ctx, LeaderboardKey(), studentID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("leaderboard: failed to read rank: %w", err)
	}

	score, err := l.cache.ZScore(ctx, LeaderboardKey(), studentID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("leaderboard: failed to read score: %w", err)
	}

	return &query.RankedStudent{
		StudentID: studentID,
		TotalXP:   int(score),
		Rank:      int(rank) + 1,
	}, nil
}

// Size returns the number of ranked students.
func (l *LeaderboardCache) Size(ctx context.Context) (int64, error) {
	return l.cache.ZCard(ctx, LeaderboardKey())
}

// Rebuild replaces the ranking wholesale. Used by the periodic rebuild job
// after reconciliation so drift in the incremental projection heals itself.
func (l *LeaderboardCache) Rebuild(ctx context.Context, scores map[string]int) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, LeaderboardKey())
	for studentID, totalXP := range scores {
		pipe.ZAdd(ctx, LeaderboardKey(), goredis.Z{Score: float64(totalXP), Member: studentID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard: rebuild failed: %w", err)
	}
	return nil
}
