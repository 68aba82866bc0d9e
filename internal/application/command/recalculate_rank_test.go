package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

type recalcFixture struct {
	stats    *fakeStatsProvider
	catalog  *fakeRankCatalog
	states   *fakeStateRepo
	outbox   *fakeOutbox
	bus      *fakeBus
	handler  *RecalculateRankHandler
	memberID shared.MemberID
}

func newRecalcFixture(t *testing.T, stats member.Stats) *recalcFixture {
	t.Helper()
	f := &recalcFixture{
		stats:    &fakeStatsProvider{stats: map[shared.MemberID]member.Stats{}},
		catalog:  &fakeRankCatalog{catalog: testCatalog(t)},
		states:   &fakeStateRepo{},
		outbox:   &fakeOutbox{},
		bus:      &fakeBus{},
		memberID: shared.MemberID(testMemberUUID),
	}
	f.stats.stats[f.memberID] = stats
	f.handler = NewRecalculateRankHandler(
		f.stats, f.catalog, f.states, f.outbox,
		shared.NopTxRunner{}, f.bus, nil,
	)
	return f
}

func TestRecalculateRank_PromotesWhenThresholdsMet(t *testing.T) {
	f := newRecalcFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "builder", result.RankID)
	require.Len(t, f.outbox.byType(notification.TypeRankUp), 1)
}

func TestRecalculateRank_RespectsPinWithoutForce(t *testing.T) {
	f := newRecalcFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie", ManualOverride: true},
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
	})

	require.NoError(t, err)
	assert.True(t, result.OverrideApplied)
	assert.Equal(t, "newbie", result.RankID)
	assert.Empty(t, f.states.saved)
}

func TestRecalculateRank_ForceDropsPinAndRecomputes(t *testing.T) {
	f := newRecalcFixture(t, testStats(t, 10, 50, 500))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie", ManualOverride: true},
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
		Force:    true,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "manager", result.RankID)
	require.Len(t, f.states.saved, 1)
	assert.False(t, f.states.saved[0].ManualOverride)
}

func TestRecalculateRank_ForceWithSameRankOnlyClearsPin(t *testing.T) {
	// Закрепление снимается, но ранг совпадает с пересчитанным:
	// состояние переписывается без уведомления.
	f := newRecalcFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "builder", ManualOverride: true},
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
		Force:    true,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	require.Len(t, f.states.saved, 1)
	assert.False(t, f.states.saved[0].ManualOverride)
	assert.Empty(t, f.outbox.entries)
	assert.Empty(t, f.bus.published)
}

func TestRecalculateRank_NoChangeWritesNothing(t *testing.T) {
	f := newRecalcFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "builder"},
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.entries)
}

func TestRecalculateRank_LostRaceWritesAndAnnouncesNothing(t *testing.T) {
	// Параллельный проход успел записать новый ранг первым: условная
	// запись проигрывает, уведомление не дублируется.
	f := newRecalcFixture(t, testStats(t, 5, 20, 100))
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}
	f.states.concurrent = &rank.State{
		MemberID: f.memberID, CurrentRankID: "builder",
	}

	result, err := f.handler.Handle(context.Background(), RecalculateRankCommand{
		MemberID: testMemberUUID,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.entries)
	assert.Empty(t, f.bus.published)
}
