package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func achievementProgressFixture(t *testing.T, stats member.Stats, items []achievement.Achievement, unlocks []achievement.Unlock) *GetAchievementProgressHandler {
	t.Helper()
	memberID := shared.MemberID(testMemberUUID)
	return NewGetAchievementProgressHandler(
		&fakeStatsProvider{stats: map[shared.MemberID]member.Stats{memberID: stats}},
		&fakeAchCatalog{items: items},
		&fakeUnlockRepo{unlocks: unlocks},
	)
}

func TestGetAchievementProgress_MinimumAcrossCriteria(t *testing.T) {
	// 7/10 рефералов = 70%, заработок 100/100 = 100%; прогресс
	// достижения равен минимуму, 70%.
	h := achievementProgressFixture(t, testStats(t, 7, 0, 100),
		[]achievement.Achievement{
			testAchievement(t, "networker", "Networker",
				`{"direct_recruits": 10, "total_earned": 100}`),
		}, nil)

	result, err := h.Handle(context.Background(), GetAchievementProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	require.Len(t, result.Achievements, 1)
	assert.Equal(t, 70, result.Achievements[0].Percent)
	assert.False(t, result.Achievements[0].Unlocked)
}

func TestGetAchievementProgress_UnlockedAlwaysFull(t *testing.T) {
	// Показатели откатились ниже порога, но разблокировка монотонна:
	// достижение остаётся со 100%.
	memberID := shared.MemberID(testMemberUUID)
	h := achievementProgressFixture(t, testStats(t, 0, 0, 0),
		[]achievement.Achievement{
			testAchievement(t, "first-recruit", "First Recruit",
				`{"direct_recruits": 1}`),
		},
		[]achievement.Unlock{achievement.NewUnlock(memberID, "first-recruit")})

	result, err := h.Handle(context.Background(), GetAchievementProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	require.Len(t, result.Achievements, 1)
	assert.True(t, result.Achievements[0].Unlocked)
	assert.Equal(t, 100, result.Achievements[0].Percent)
	assert.NotNil(t, result.Achievements[0].UnlockedAt)
	assert.Equal(t, 1, result.UnlockedCount)
	assert.Equal(t, 100, result.TotalPoints)
}

func TestGetAchievementProgress_FiltersByCategory(t *testing.T) {
	h := achievementProgressFixture(t, testStats(t, 1, 0, 0),
		[]achievement.Achievement{
			testAchievement(t, "first-recruit", "First Recruit",
				`{"direct_recruits": 1}`),
		}, nil)

	result, err := h.Handle(context.Background(), GetAchievementProgressQuery{
		MemberID: testMemberUUID,
		Category: "earnings",
	})

	require.NoError(t, err)
	assert.Empty(t, result.Achievements)
	// Сводка считается по всему каталогу, фильтр влияет только на список.
	assert.Equal(t, 1, result.TotalCount)
}

func TestGetAchievementProgress_UnknownCategoryRejected(t *testing.T) {
	h := achievementProgressFixture(t, testStats(t, 0, 0, 0), nil, nil)

	_, err := h.Handle(context.Background(), GetAchievementProgressQuery{
		MemberID: testMemberUUID,
		Category: "legendary",
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetAchievementProgress_PureRead(t *testing.T) {
	// Критерии выполнены, но чтение прогресса не разблокирует.
	memberID := shared.MemberID(testMemberUUID)
	unlockRepo := &fakeUnlockRepo{}
	h := NewGetAchievementProgressHandler(
		&fakeStatsProvider{stats: map[shared.MemberID]member.Stats{memberID: testStats(t, 5, 0, 0)}},
		&fakeAchCatalog{items: []achievement.Achievement{
			testAchievement(t, "first-recruit", "First Recruit",
				`{"direct_recruits": 1}`),
		}},
		unlockRepo,
	)

	result, err := h.Handle(context.Background(), GetAchievementProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	require.Len(t, result.Achievements, 1)
	assert.Equal(t, 100, result.Achievements[0].Percent)
	assert.False(t, result.Achievements[0].Unlocked)
	assert.Empty(t, unlockRepo.unlocks)
}
