package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func rankProgressFixture(t *testing.T, stats member.Stats, state rank.State) *GetRankProgressHandler {
	t.Helper()
	memberID := shared.MemberID(testMemberUUID)
	state.MemberID = memberID
	return NewGetRankProgressHandler(
		&fakeStatsProvider{stats: map[shared.MemberID]member.Stats{memberID: stats}},
		&fakeRankCatalog{catalog: testCatalog(t)},
		&fakeStateRepo{states: map[shared.MemberID]rank.State{memberID: state}},
	)
}

func TestGetRankProgress_PartialProgress(t *testing.T) {
	h := rankProgressFixture(t, testStats(t, 2, 5, 50), rank.State{CurrentRankID: "newbie"})

	result, err := h.Handle(context.Background(), GetRankProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	assert.Equal(t, "newbie", result.CurrentRank.ID)
	require.NotNil(t, result.NextRank)
	assert.Equal(t, "builder", result.NextRank.ID)
	assert.False(t, result.AtMaxRank)

	// 2/5 = 40%, 5/20 = 25%, 50/100 = 50%, overall floor(115/3) = 38.
	assert.Equal(t, 40, result.DirectRecruits.Percent)
	assert.Equal(t, 25, result.NetworkSize.Percent)
	assert.Equal(t, 50, result.TotalEarned.Percent)
	assert.Equal(t, 38, result.OverallPercent)
}

func TestGetRankProgress_AtMaxRank(t *testing.T) {
	h := rankProgressFixture(t, testStats(t, 10, 50, 500), rank.State{CurrentRankID: "manager"})

	result, err := h.Handle(context.Background(), GetRankProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	assert.True(t, result.AtMaxRank)
	assert.Nil(t, result.NextRank)
	assert.Equal(t, 100, result.DirectRecruits.Percent)
	assert.Equal(t, 100, result.NetworkSize.Percent)
	assert.Equal(t, 100, result.TotalEarned.Percent)
	assert.Equal(t, 100, result.OverallPercent)
	assert.Empty(t, result.DirectRecruits.Required)
}

func TestGetRankProgress_UnrankedMemberMeasuredFromBase(t *testing.T) {
	// Участник без сохранённого ранга: прогресс от базового уровня,
	// записи при этом не создаются (чистое чтение).
	memberID := shared.MemberID(testMemberUUID)
	states := &fakeStateRepo{states: map[shared.MemberID]rank.State{}}
	h := NewGetRankProgressHandler(
		&fakeStatsProvider{stats: map[shared.MemberID]member.Stats{memberID: testStats(t, 2, 5, 50)}},
		&fakeRankCatalog{catalog: testCatalog(t)},
		states,
	)

	result, err := h.Handle(context.Background(), GetRankProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	assert.Equal(t, "newbie", result.CurrentRank.ID)
	assert.Empty(t, states.states)
}

func TestGetRankProgress_ManualOverrideSurfaced(t *testing.T) {
	h := rankProgressFixture(t, testStats(t, 2, 5, 50),
		rank.State{CurrentRankID: "builder", ManualOverride: true})

	result, err := h.Handle(context.Background(), GetRankProgressQuery{MemberID: testMemberUUID})

	require.NoError(t, err)
	assert.True(t, result.ManualOverride)
	assert.Equal(t, "builder", result.CurrentRank.ID)
}

func TestGetRankProgress_UnknownMemberFails(t *testing.T) {
	h := NewGetRankProgressHandler(
		&fakeStatsProvider{stats: map[shared.MemberID]member.Stats{}},
		&fakeRankCatalog{catalog: testCatalog(t)},
		&fakeStateRepo{states: map[shared.MemberID]rank.State{}},
	)

	_, err := h.Handle(context.Background(), GetRankProgressQuery{MemberID: testMemberUUID})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}
