package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

type evaluateFixture struct {
	stats    *fakeStatsProvider
	catalog  *fakeRankCatalog
	states   *fakeStateRepo
	achs     *fakeAchCatalog
	unlocks  *fakeUnlockRepo
	outbox   *fakeOutbox
	bus      *fakeBus
	handler  *EvaluateMemberHandler
	memberID shared.MemberID
}

func newEvaluateFixture(t *testing.T, stats member.Stats) *evaluateFixture {
	t.Helper()
	f := &evaluateFixture{
		stats:    &fakeStatsProvider{stats: map[shared.MemberID]member.Stats{}},
		catalog:  &fakeRankCatalog{catalog: testCatalog(t)},
		states:   &fakeStateRepo{},
		achs:     &fakeAchCatalog{},
		unlocks:  &fakeUnlockRepo{},
		outbox:   &fakeOutbox{},
		bus:      &fakeBus{},
		memberID: shared.MemberID(testMemberUUID),
	}
	f.stats.stats[f.memberID] = stats
	f.handler = NewEvaluateMemberHandler(
		f.stats, f.catalog, f.states, f.achs, f.unlocks, f.outbox,
		shared.NopTxRunner{}, f.bus, nil,
	)
	return f
}

func TestEvaluateMember_PromotesToHighestQualifyingTier(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.True(t, result.RankChanged)
	assert.Equal(t, "manager", result.RankID)
	require.Len(t, f.states.saved, 1)
	assert.Equal(t, shared.RankTierID("manager"), f.states.saved[0].CurrentRankID)
	assert.False(t, f.states.saved[0].ManualOverride)

	rankUps := f.outbox.byType(notification.TypeRankUp)
	require.Len(t, rankUps, 1)
	assert.Contains(t, rankUps[0].Message, "manager")

	require.Len(t, f.bus.byType(shared.EventRankChanged), 1)
}

func TestEvaluateMember_FirstAssignmentIsSilent(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 0, 0, 0))
	// Нет сохранённого состояния: участник оценивается впервые.

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerRecruitment,
	})

	require.NoError(t, err)
	assert.True(t, result.RankChanged)
	assert.True(t, result.FirstAssignment)
	assert.Equal(t, "newbie", result.RankID)

	// Ранг записан, но уведомление о первом присвоении не ставится.
	require.Len(t, f.states.saved, 1)
	assert.Empty(t, f.outbox.byType(notification.TypeRankUp))
	assert.Len(t, f.bus.byType(shared.EventRankAssigned), 1)
	assert.Empty(t, f.bus.byType(shared.EventRankChanged))
}

func TestEvaluateMember_NoChangeWritesNothing(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "builder"},
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.False(t, result.RankChanged)
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.entries)
	assert.Empty(t, f.bus.published)
}

func TestEvaluateMember_ManualOverrideShortCircuits(t *testing.T) {
	// Показатели тянут на manager, но ранг закреплён на newbie.
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie", ManualOverride: true},
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.True(t, result.OverrideApplied)
	assert.False(t, result.RankChanged)
	assert.Equal(t, "newbie", result.RankID)
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.entries)
}

func TestEvaluateMember_StaleOverrideFallsBackToRecomputation(t *testing.T) {
	// Закреплённый ранг удалён из каталога: закрепление снимается,
	// ранг пересчитывается по показателям.
	f := newEvaluateFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "deleted-tier", ManualOverride: true},
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.True(t, result.OverrideCleared)
	assert.False(t, result.OverrideApplied)
	assert.Equal(t, "builder", result.RankID)
	require.Len(t, f.states.saved, 1)
	assert.False(t, f.states.saved[0].ManualOverride)
}

func TestEvaluateMember_UnknownMemberAbortsWithoutWrites(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 5, 20, 100))

	_, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: otherMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.unlocks.inserted)
	assert.Empty(t, f.outbox.entries)
}

func TestEvaluateMember_InvalidMemberIDRejected(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 0, 0, 0))

	_, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: "not-a-uuid",
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestEvaluateMember_UnlocksQualifiedAchievements(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "manager"},
	}
	f.achs.items = []achievement.Achievement{
		testAchievement(t, "first-recruit", "First Recruit",
			`{"direct_recruits": 1}`),
		testAchievement(t, "thousand-club", "Thousand Club",
			`{"total_earned": 1000}`),
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	require.Len(t, result.Unlocked, 1)
	assert.Equal(t, "first-recruit", result.Unlocked[0].AchievementID)

	// Ровно одна запись, одно уведомление, одно событие.
	require.Len(t, f.unlocks.inserted, 1)
	require.Len(t, f.outbox.byType(notification.TypeAchievementUnlocked), 1)
	require.Len(t, f.bus.byType(shared.EventAchievementUnlocked), 1)
}

func TestEvaluateMember_LostRaceSuppressesDuplicateNotification(t *testing.T) {
	// Конкурентный проход успел записать разблокировку первым:
	// вставка возвращает false, уведомление и событие не дублируются.
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "manager"},
	}
	f.achs.items = []achievement.Achievement{
		testAchievement(t, "first-recruit", "First Recruit",
			`{"direct_recruits": 1}`),
	}
	f.unlocks.alreadyTaken = map[shared.AchievementID]bool{"first-recruit": true}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.Empty(t, result.Unlocked)
	assert.Empty(t, f.outbox.byType(notification.TypeAchievementUnlocked))
	assert.Empty(t, f.bus.byType(shared.EventAchievementUnlocked))
}

func TestEvaluateMember_LostRankRaceSuppressesDuplicateNotification(t *testing.T) {
	// Конкурентный проход записал тот же новый ранг первым: условная
	// запись возвращает false, второе уведомление не ставится.
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}
	f.states.concurrent = &rank.State{
		MemberID: f.memberID, CurrentRankID: "manager",
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.False(t, result.RankChanged)
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.byType(notification.TypeRankUp))
	assert.Empty(t, f.bus.byType(shared.EventRankChanged))
}

func TestEvaluateMember_MidPassPinNeverOverwritten(t *testing.T) {
	// Администратор закрепил ранг между чтением состояния и записью:
	// автоматическая оценка не сбрасывает закрепление.
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}
	f.states.concurrent = &rank.State{
		MemberID: f.memberID, CurrentRankID: "builder", ManualOverride: true,
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.False(t, result.RankChanged)
	pinned := f.states.states[f.memberID]
	assert.True(t, pinned.ManualOverride)
	assert.Equal(t, shared.RankTierID("builder"), pinned.CurrentRankID)
	assert.Empty(t, f.outbox.byType(notification.TypeRankUp))
}

func TestEvaluateMember_AlreadyUnlockedNeverReprocessed(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "manager"},
	}
	f.achs.items = []achievement.Achievement{
		testAchievement(t, "first-recruit", "First Recruit",
			`{"direct_recruits": 1}`),
	}
	f.unlocks.unlocked = map[shared.AchievementID]achievement.Unlock{
		"first-recruit": achievement.NewUnlock(f.memberID, "first-recruit"),
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.Empty(t, result.Unlocked)
	assert.Empty(t, f.unlocks.inserted)
	assert.Empty(t, f.outbox.entries)
}

func TestEvaluateMember_InvalidCriteriaSkippedWithoutAbort(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "manager"},
	}
	f.achs.items = []achievement.Achievement{
		brokenAchievement("broken", "Broken", `{"reputation": 5}`),
		testAchievement(t, "first-recruit", "First Recruit",
			`{"direct_recruits": 1}`),
	}

	result, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedAchievements)
	require.Len(t, result.Unlocked, 1)
	assert.Equal(t, "first-recruit", result.Unlocked[0].AchievementID)
}

func TestEvaluateMember_EmptyRankCatalogFails(t *testing.T) {
	f := newEvaluateFixture(t, testStats(t, 0, 0, 0))
	f.catalog.catalog = rank.Catalog{}

	_, err := f.handler.Handle(context.Background(), EvaluateMemberCommand{
		MemberID: testMemberUUID,
		Trigger:  TriggerCommission,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrEmptyCatalog)
}
