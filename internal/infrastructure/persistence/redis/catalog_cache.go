// Package redis implements Redis caching and pub/sub infrastructure for the
// progression engine.
package redis

import (
	"context"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG CACHES
// ══════════════════════════════════════════════════════════════════════════════

// Catalog cache keys.
const (
	catalogKeyRanks        = "ranks"
	catalogKeyAchievements = "achievements"
)

// CachedRankCatalog is a read-through decorator over rank.CatalogRepository.
// Every evaluation loads the full catalog, so the short TTL saves a query
// per evaluation without letting admin catalog edits go stale for long.
// Cache failures degrade to the underlying repository, never to an error.
type CachedRankCatalog struct {
	inner rank.CatalogRepository
	cache *Cache
}

// NewCachedRankCatalog wraps a rank catalog repository with caching.
func NewCachedRankCatalog(inner rank.CatalogRepository, cache *Cache) *CachedRankCatalog {
	return &CachedRankCatalog{inner: inner, cache: cache}
}

var _ rank.CatalogRepository = (*CachedRankCatalog)(nil)

// GetAll returns the full rank catalog, from cache when fresh.
func (c *CachedRankCatalog) GetAll(ctx context.Context) (rank.Catalog, error) {
	key := CatalogKey(catalogKeyRanks)

	// Any cache failure, miss or otherwise, degrades to the source of truth.
	var tiers []rank.Tier
	if err := c.cache.Get(ctx, key, &tiers); err == nil && len(tiers) > 0 {
		return rank.NewCatalog(tiers)
	}

	catalog, err := c.inner.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	// Best effort warm-up.
	_ = c.cache.Set(ctx, key, []rank.Tier(catalog), TTLCatalogCache)

	return catalog, nil
}

// GetByID returns a single tier. Point lookups resolve against the cached
// catalog when possible.
func (c *CachedRankCatalog) GetByID(ctx context.Context, id shared.RankTierID) (rank.Tier, error) {
	catalog, err := c.GetAll(ctx)
	if err != nil {
		return rank.Tier{}, err
	}

	if tier, ok := catalog.ByID(id); ok {
		return tier, nil
	}

	return rank.Tier{}, shared.ErrRankNotFound
}

// Invalidate drops the cached rank catalog. Called after admin edits.
func (c *CachedRankCatalog) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, CatalogKey(catalogKeyRanks))
}

// CachedAchievementCatalog is a read-through decorator over
// achievement.CatalogRepository with the same degradation policy as the
// rank catalog cache.
type CachedAchievementCatalog struct {
	inner achievement.CatalogRepository
	cache *Cache
}

// NewCachedAchievementCatalog wraps an achievement catalog repository with caching.
func NewCachedAchievementCatalog(inner achievement.CatalogRepository, cache *Cache) *CachedAchievementCatalog {
	return &CachedAchievementCatalog{inner: inner, cache: cache}
}

var _ achievement.CatalogRepository = (*CachedAchievementCatalog)(nil)

// GetActive returns all active achievements, from cache when fresh.
func (c *CachedAchievementCatalog) GetActive(ctx context.Context) ([]achievement.Achievement, error) {
	key := CatalogKey(catalogKeyAchievements)

	var achievements []achievement.Achievement
	if err := c.cache.Get(ctx, key, &achievements); err == nil && len(achievements) > 0 {
		return achievements, nil
	}

	achievements, err := c.inner.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	// Best effort warm-up.
	_ = c.cache.Set(ctx, key, achievements, TTLCatalogCache)

	return achievements, nil
}

// GetByID returns a single achievement, bypassing the active-only cache
// since disabled achievements must stay addressable.
func (c *CachedAchievementCatalog) GetByID(ctx context.Context, id shared.AchievementID) (achievement.Achievement, error) {
	return c.inner.GetByID(ctx, id)
}

// Invalidate drops the cached achievement catalog. Called after admin edits.
func (c *CachedAchievementCatalog) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, CatalogKey(catalogKeyAchievements))
}
