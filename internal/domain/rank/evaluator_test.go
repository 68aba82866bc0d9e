package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func money(t *testing.T, s string) shared.Money {
	t.Helper()
	m, err := shared.NewMoneyFromString(s)
	require.NoError(t, err)
	return m
}

func tier(t *testing.T, id string, order, minDirect, minNetwork int, minEarned string) Tier {
	t.Helper()
	tr, err := NewTier(NewTierParams{
		ID:                shared.RankTierID(id),
		Name:              id,
		Order:             order,
		MinDirectRecruits: minDirect,
		MinNetworkSize:    minNetwork,
		MinTotalEarned:    money(t, minEarned),
	})
	require.NoError(t, err)
	return tr
}

func stats(t *testing.T, direct, network int, earned string) member.Stats {
	t.Helper()
	s, err := member.NewStats(direct, network, money(t, earned))
	require.NoError(t, err)
	return s
}

func threeTierCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := NewCatalog([]Tier{
		tier(t, "newbie", 1, 0, 0, "0"),
		tier(t, "builder", 2, 5, 20, "100"),
		tier(t, "manager", 3, 10, 50, "500"),
	})
	require.NoError(t, err)
	return c
}

func TestEvaluate_HighestQualifyingTier(t *testing.T) {
	catalog := threeTierCatalog(t)
	eval := NewEvaluator()

	// All three builder thresholds are met exactly; manager is out of reach.
	res, err := eval.Evaluate(stats(t, 5, 20, "100"), NewState("m1"), catalog)

	require.NoError(t, err)
	assert.Equal(t, shared.RankTierID("builder"), res.Tier.ID)
	assert.True(t, res.Changed)
	assert.True(t, res.FirstAssignment)
}

func TestEvaluate_AllThresholdsMustHoldSimultaneously(t *testing.T) {
	catalog := threeTierCatalog(t)
	eval := NewEvaluator()

	// Earnings would qualify for manager, but the recruit counters do not.
	res, err := eval.Evaluate(stats(t, 5, 20, "9999"), NewState("m1"), catalog)

	require.NoError(t, err)
	assert.Equal(t, shared.RankTierID("builder"), res.Tier.ID)
}

func TestEvaluate_FallsBackToLowestTier(t *testing.T) {
	catalog, err := NewCatalog([]Tier{
		tier(t, "starter", 5, 1, 1, "10"),
		tier(t, "builder", 6, 5, 20, "100"),
	})
	require.NoError(t, err)
	eval := NewEvaluator()

	res, err := eval.Evaluate(stats(t, 0, 0, "0"), NewState("m1"), catalog)

	require.NoError(t, err)
	assert.Equal(t, shared.RankTierID("starter"), res.Tier.ID, "no tier qualifies, lowest order wins")
}

func TestEvaluate_NoChangeWhenRankAlreadyCorrect(t *testing.T) {
	catalog := threeTierCatalog(t)
	eval := NewEvaluator()
	state := State{MemberID: "m1", CurrentRankID: "builder"}

	res, err := eval.Evaluate(stats(t, 5, 20, "100"), state, catalog)

	require.NoError(t, err)
	assert.Equal(t, shared.RankTierID("builder"), res.Tier.ID)
	assert.False(t, res.Changed)
	assert.False(t, res.FirstAssignment)
}

func TestEvaluate_ManualOverrideFreezesRank(t *testing.T) {
	catalog := threeTierCatalog(t)
	eval := NewEvaluator()
	state := State{MemberID: "m1", CurrentRankID: "manager", ManualOverride: true}

	// Stats qualify only for newbie, but the pinned rank must hold.
	for _, s := range []member.Stats{
		stats(t, 0, 0, "0"),
		stats(t, 5, 20, "100"),
		stats(t, 100, 500, "100000"),
	} {
		res, err := eval.Evaluate(s, state, catalog)
		require.NoError(t, err)
		assert.Equal(t, shared.RankTierID("manager"), res.Tier.ID)
		assert.False(t, res.Changed)
		assert.True(t, res.OverrideApplied)
	}
}

func TestEvaluate_StaleOverrideFallsBackToRecomputation(t *testing.T) {
	catalog := threeTierCatalog(t)
	eval := NewEvaluator()
	state := State{MemberID: "m1", CurrentRankID: "deleted-tier", ManualOverride: true}

	res, err := eval.Evaluate(stats(t, 5, 20, "100"), state, catalog)

	require.NoError(t, err)
	assert.Equal(t, shared.RankTierID("builder"), res.Tier.ID)
	assert.True(t, res.Changed)
	assert.True(t, res.OverrideCleared)
	assert.False(t, res.OverrideApplied)
}

func TestEvaluate_EmptyCatalog(t *testing.T) {
	eval := NewEvaluator()

	_, err := eval.Evaluate(stats(t, 1, 1, "1"), NewState("m1"), Catalog{})

	assert.ErrorIs(t, err, shared.ErrEmptyCatalog)
}

func TestNewCatalog_RejectsDuplicateOrder(t *testing.T) {
	_, err := NewCatalog([]Tier{
		tier(t, "a", 1, 0, 0, "0"),
		tier(t, "b", 1, 5, 20, "100"),
	})

	assert.ErrorIs(t, err, shared.ErrDuplicateOrder)
}

func TestCatalog_NextAfter(t *testing.T) {
	catalog := threeTierCatalog(t)

	next, ok := catalog.NextAfter(1)
	require.True(t, ok)
	assert.Equal(t, shared.RankTierID("builder"), next.ID)

	next, ok = catalog.NextAfter(2)
	require.True(t, ok)
	assert.Equal(t, shared.RankTierID("manager"), next.ID)

	_, ok = catalog.NextAfter(3)
	assert.False(t, ok, "nothing above the top tier")
}
