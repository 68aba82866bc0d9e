package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

const testMemberUUID = "3f2c8f44-9c1d-4f6a-8a2e-5b7d9e0c1a23"

type fakeStatsProvider struct {
	stats map[shared.MemberID]member.Stats
}

func (f *fakeStatsProvider) GetStats(_ context.Context, id shared.MemberID) (member.Stats, error) {
	s, ok := f.stats[id]
	if !ok {
		return member.Stats{}, shared.ErrStatsNotFound
	}
	return s, nil
}

type fakeRankCatalog struct {
	catalog rank.Catalog
}

func (f *fakeRankCatalog) GetAll(_ context.Context) (rank.Catalog, error) {
	return f.catalog, nil
}

func (f *fakeRankCatalog) GetByID(_ context.Context, id shared.RankTierID) (rank.Tier, error) {
	if t, ok := f.catalog.ByID(id); ok {
		return t, nil
	}
	return rank.Tier{}, shared.ErrRankNotFound
}

type fakeStateRepo struct {
	states map[shared.MemberID]rank.State
}

func (f *fakeStateRepo) Get(_ context.Context, memberID shared.MemberID) (rank.State, error) {
	if s, ok := f.states[memberID]; ok {
		return s, nil
	}
	return rank.State{MemberID: memberID}, nil
}

func (f *fakeStateRepo) Save(_ context.Context, state rank.State) error {
	f.states[state.MemberID] = state
	return nil
}

func (f *fakeStateRepo) SaveIfCurrent(_ context.Context, next rank.State, _ rank.State) (bool, error) {
	f.states[next.MemberID] = next
	return true, nil
}

type fakeAchCatalog struct {
	items []achievement.Achievement
}

func (f *fakeAchCatalog) GetActive(_ context.Context) ([]achievement.Achievement, error) {
	return f.items, nil
}

func (f *fakeAchCatalog) GetByID(_ context.Context, id shared.AchievementID) (achievement.Achievement, error) {
	for _, a := range f.items {
		if a.ID == id {
			return a, nil
		}
	}
	return achievement.Achievement{}, shared.ErrAchievementNotFound
}

type fakeUnlockRepo struct {
	unlocks []achievement.Unlock
}

func (f *fakeUnlockRepo) GetUnlockedIDs(_ context.Context, _ shared.MemberID) (map[shared.AchievementID]bool, error) {
	ids := make(map[shared.AchievementID]bool, len(f.unlocks))
	for _, u := range f.unlocks {
		ids[u.AchievementID] = true
	}
	return ids, nil
}

func (f *fakeUnlockRepo) ListUnlocks(_ context.Context, _ shared.MemberID) ([]achievement.Unlock, error) {
	return f.unlocks, nil
}

func (f *fakeUnlockRepo) RecordUnlock(_ context.Context, unlock achievement.Unlock) (bool, error) {
	f.unlocks = append(f.unlocks, unlock)
	return true, nil
}

type fakeBoardRepo struct {
	board     leaderboard.Board
	score     decimal.Decimal
	position  int
	stats     leaderboard.Stats
	boardHits int
}

func (f *fakeBoardRepo) GetBoard(_ context.Context, _ leaderboard.Metric, _ leaderboard.Period, _ int) (leaderboard.Board, error) {
	f.boardHits++
	return f.board, nil
}

func (f *fakeBoardRepo) GetMemberScore(_ context.Context, _ shared.MemberID, _ leaderboard.Metric, _ leaderboard.Period) (decimal.Decimal, error) {
	return f.score, nil
}

func (f *fakeBoardRepo) GetMemberPosition(_ context.Context, _ shared.MemberID, _ leaderboard.Metric, _ leaderboard.Period) (int, error) {
	return f.position, nil
}

func (f *fakeBoardRepo) GetStats(_ context.Context) (leaderboard.Stats, error) {
	return f.stats, nil
}

type fakeBoardCache struct {
	cached map[string]leaderboard.Board
	stored []leaderboard.Board
}

func cacheKey(metric leaderboard.Metric, period leaderboard.Period) string {
	return metric.String() + ":" + period.String()
}

func (f *fakeBoardCache) StoreBoard(_ context.Context, board leaderboard.Board) error {
	f.stored = append(f.stored, board)
	return nil
}

func (f *fakeBoardCache) GetCachedBoard(_ context.Context, metric leaderboard.Metric, period leaderboard.Period, _ int) (leaderboard.Board, error) {
	if b, ok := f.cached[cacheKey(metric, period)]; ok {
		return b, nil
	}
	return leaderboard.Board{}, shared.ErrLeaderboardNotFound
}

func (f *fakeBoardCache) GetCachedPosition(_ context.Context, _ shared.MemberID, metric leaderboard.Metric, period leaderboard.Period) (int, error) {
	if _, ok := f.cached[cacheKey(metric, period)]; ok {
		return 1, nil
	}
	return 0, shared.ErrLeaderboardNotFound
}

func (f *fakeBoardCache) Invalidate(_ context.Context, metric leaderboard.Metric, period leaderboard.Period) error {
	delete(f.cached, cacheKey(metric, period))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEST DATA BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

func testMoney(t *testing.T, amount float64) shared.Money {
	t.Helper()
	m, err := shared.NewMoneyFromFloat(amount)
	require.NoError(t, err)
	return m
}

func testStats(t *testing.T, direct, network int, earned float64) member.Stats {
	t.Helper()
	s, err := member.NewStats(direct, network, testMoney(t, earned))
	require.NoError(t, err)
	return s
}

func testTier(t *testing.T, id string, order, direct, network int, earned float64) rank.Tier {
	t.Helper()
	tier, err := rank.NewTier(rank.NewTierParams{
		ID:                shared.RankTierID(id),
		Name:              id,
		Order:             order,
		MinDirectRecruits: direct,
		MinNetworkSize:    network,
		MinTotalEarned:    testMoney(t, earned),
	})
	require.NoError(t, err)
	return tier
}

func testCatalog(t *testing.T) rank.Catalog {
	t.Helper()
	catalog, err := rank.NewCatalog([]rank.Tier{
		testTier(t, "newbie", 1, 0, 0, 0),
		testTier(t, "builder", 2, 5, 20, 100),
		testTier(t, "manager", 3, 10, 50, 500),
	})
	require.NoError(t, err)
	return catalog
}

func testAchievement(t *testing.T, id, name string, criteria string) achievement.Achievement {
	t.Helper()
	a, err := achievement.NewAchievement(achievement.NewAchievementParams{
		ID:       shared.AchievementID(id),
		Name:     name,
		Category: achievement.CategoryRecruiting,
		Points:   100,
		Criteria: json.RawMessage(criteria),
	})
	require.NoError(t, err)
	return a
}

func testBoard(metric leaderboard.Metric, period leaderboard.Period, scores ...int64) leaderboard.Board {
	entries := make([]leaderboard.Entry, len(scores))
	for i, s := range scores {
		entries[i] = leaderboard.Entry{
			MemberID: shared.MemberID(testMemberUUID),
			Username: "member",
			Score:    decimal.NewFromInt(s),
		}
	}
	return leaderboard.NewBoard(metric, period, entries)
}
