// Package redis implements Redis caching and pub/sub infrastructure for the
// progression engine.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// BoardCache implements leaderboard.Cache on Redis.
//
// Architecture, per (metric, period) pair:
//   - String "leaderboard:board:{metric}:{period}" stores the rendered board
//     as JSON, preserving the fetch order and therefore the distinct
//     positions of tied members.
//   - Sorted set "leaderboard:scores:{metric}:{period}" stores
//     memberID -> score for O(log N) position queries by the counting rule.
//
// PostgreSQL stays the source of truth; everything here expires.
type BoardCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewBoardCache creates a new BoardCache instance.
func NewBoardCache(cache *Cache) *BoardCache {
	return &BoardCache{cache: cache, ttl: TTLBoardCache}
}

// NewBoardCacheWithTTL creates a BoardCache with a custom TTL.
func NewBoardCacheWithTTL(cache *Cache, ttl time.Duration) *BoardCache {
	return &BoardCache{cache: cache, ttl: ttl}
}

var _ leaderboard.Cache = (*BoardCache)(nil)

// cachedBoard wraps a board for storage.
type cachedBoard struct {
	Metric      leaderboard.Metric  `json:"metric"`
	Period      leaderboard.Period  `json:"period"`
	Entries     []leaderboard.Entry `json:"entries"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// StoreBoard caches a board: the JSON blob for listing and the score set
// for position queries, both under the same TTL.
func (b *BoardCache) StoreBoard(ctx context.Context, board leaderboard.Board) error {
	boardKey := BoardKey(board.Metric.String(), board.Period.String())
	scoresKey := ScoresKey(board.Metric.String(), board.Period.String())

	stored := cachedBoard{
		Metric:      board.Metric,
		Period:      board.Period,
		Entries:     board.Entries,
		GeneratedAt: board.GeneratedAt,
	}
	if err := b.cache.Set(ctx, boardKey, stored, b.ttl); err != nil {
		return fmt.Errorf("failed to cache board: %w", err)
	}

	members := make([]redis.Z, 0, len(board.Entries))
	for _, e := range board.Entries {
		members = append(members, redis.Z{
			Score:  e.Score.InexactFloat64(),
			Member: string(e.MemberID),
		})
	}

	client := b.cache.Client()
	pipe := client.TxPipeline()
	pipe.Del(ctx, scoresKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, scoresKey, members...)
	}
	pipe.Expire(ctx, scoresKey, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache board scores: %w", err)
	}

	return nil
}

// GetCachedBoard returns the cached board truncated to limit. A request
// for more rows than were cached is a miss: the caller falls back to the
// repository rather than serving a possibly incomplete board.
func (b *BoardCache) GetCachedBoard(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period, limit int) (leaderboard.Board, error) {
	boardKey := BoardKey(metric.String(), period.String())

	var stored cachedBoard
	if err := b.cache.Get(ctx, boardKey, &stored); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return leaderboard.Board{}, shared.ErrLeaderboardNotFound
		}
		return leaderboard.Board{}, err
	}

	if limit > len(stored.Entries) {
		return leaderboard.Board{}, shared.ErrLeaderboardNotFound
	}

	entries := stored.Entries
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	return leaderboard.Board{
		Metric:      stored.Metric,
		Period:      stored.Period,
		Entries:     entries,
		GeneratedAt: stored.GeneratedAt,
	}, nil
}

// GetCachedPosition returns the member's position by the counting rule:
// strictly greater scores plus one. Misses when the member is not in the
// score set or the set has expired.
func (b *BoardCache) GetCachedPosition(ctx context.Context, memberID shared.MemberID, metric leaderboard.Metric, period leaderboard.Period) (int, error) {
	scoresKey := ScoresKey(metric.String(), period.String())
	client := b.cache.Client()

	score, err := client.ZScore(ctx, scoresKey, string(memberID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrLeaderboardNotFound
		}
		return 0, fmt.Errorf("failed to read cached score: %w", err)
	}

	greater, err := client.ZCount(ctx, scoresKey,
		"("+strconv.FormatFloat(score, 'f', -1, 64),
		"+inf",
	).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count greater scores: %w", err)
	}

	return int(greater) + 1, nil
}

// Invalidate drops the cached board and score set for a metric and period.
func (b *BoardCache) Invalidate(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period) error {
	return b.cache.Delete(ctx,
		BoardKey(metric.String(), period.String()),
		ScoresKey(metric.String(), period.String()),
	)
}

// InvalidateAll drops every cached board.
func (b *BoardCache) InvalidateAll(ctx context.Context) error {
	return b.cache.DeleteByPattern(ctx, PrefixLeaderboard+"*")
}
