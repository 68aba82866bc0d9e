package query

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func TestGetLeaderboard_CacheMissFallsBackToRepository(t *testing.T) {
	repo := &fakeBoardRepo{
		board: testBoard(leaderboard.MetricEarnings, leaderboard.PeriodAllTime, 500, 300, 100),
	}
	cache := &fakeBoardCache{cached: map[string]leaderboard.Board{}}
	h := NewGetLeaderboardHandler(repo, cache, nil)

	result, err := h.Handle(context.Background(), GetLeaderboardQuery{
		Metric: "earnings",
		Period: "all_time",
	})

	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 1, repo.boardHits)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, 1, result.Entries[0].Position)
	assert.Equal(t, "500", result.Entries[0].Score)

	// Промах прогрел кэш.
	require.Len(t, cache.stored, 1)
}

func TestGetLeaderboard_CacheHitSkipsRepository(t *testing.T) {
	board := testBoard(leaderboard.MetricEarnings, leaderboard.PeriodWeekly, 42)
	repo := &fakeBoardRepo{}
	cache := &fakeBoardCache{cached: map[string]leaderboard.Board{
		cacheKey(leaderboard.MetricEarnings, leaderboard.PeriodWeekly): board,
	}}
	h := NewGetLeaderboardHandler(repo, cache, nil)

	result, err := h.Handle(context.Background(), GetLeaderboardQuery{
		Metric: "earnings",
		Period: "weekly",
	})

	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, 0, repo.boardHits)
	require.Len(t, result.Entries, 1)
}

func TestGetLeaderboard_TiesGetDistinctListPositions(t *testing.T) {
	// Равные значения получают разные позиции в списке.
	repo := &fakeBoardRepo{
		board: testBoard(leaderboard.MetricRecruiters, leaderboard.PeriodAllTime, 50, 50, 30),
	}
	h := NewGetLeaderboardHandler(repo, nil, nil)

	result, err := h.Handle(context.Background(), GetLeaderboardQuery{
		Metric: "recruiters",
		Period: "all_time",
	})

	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{
		result.Entries[0].Position,
		result.Entries[1].Position,
		result.Entries[2].Position,
	})
}

func TestGetLeaderboard_RejectsUnknownMetricAndPeriod(t *testing.T) {
	h := NewGetLeaderboardHandler(&fakeBoardRepo{}, nil, nil)

	_, err := h.Handle(context.Background(), GetLeaderboardQuery{Metric: "karma", Period: "all_time"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Metric: "earnings", Period: "yearly"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetLeaderboard_DefaultAndMaxLimit(t *testing.T) {
	q := GetLeaderboardQuery{Metric: "earnings", Period: "all_time"}
	require.NoError(t, q.Validate())
	assert.Equal(t, defaultLeaderboardLimit, q.Limit)

	q = GetLeaderboardQuery{Metric: "earnings", Period: "all_time", Limit: 10_000}
	require.NoError(t, q.Validate())
	assert.Equal(t, maxLeaderboardLimit, q.Limit)
}

func TestGetMemberPosition_CountFormulaSharesTies(t *testing.T) {
	// Точечная позиция считается как count(строго больше) + 1.
	repo := &fakeBoardRepo{
		score:    decimal.NewFromInt(50),
		position: 1,
	}
	h := NewGetMemberPositionHandler(repo, nil, nil)

	result, err := h.Handle(context.Background(), GetMemberPositionQuery{
		MemberID: testMemberUUID,
		Metric:   "recruiters",
		Period:   "all_time",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Position)
	assert.Equal(t, "50", result.Score)
}

func TestGetMemberPosition_PrefersCachedPosition(t *testing.T) {
	repo := &fakeBoardRepo{score: decimal.NewFromInt(10), position: 7}
	cache := &fakeBoardCache{cached: map[string]leaderboard.Board{
		cacheKey(leaderboard.MetricEarnings, leaderboard.PeriodAllTime): {},
	}}
	h := NewGetMemberPositionHandler(repo, cache, nil)

	result, err := h.Handle(context.Background(), GetMemberPositionQuery{
		MemberID: testMemberUUID,
		Metric:   "earnings",
		Period:   "all_time",
	})

	require.NoError(t, err)
	// Кэш вернул позицию, хранилище не опрашивалось.
	assert.Equal(t, 1, result.Position)
}
