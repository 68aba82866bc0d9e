package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

const testMemberUUID = "3f2c8f44-9c1d-4f6a-8a2e-5b7d9e0c1a23"

type statsStub struct{ stats member.Stats }

func (s statsStub) GetStats(context.Context, shared.MemberID) (member.Stats, error) {
	return s.stats, nil
}

type catalogStub struct{ catalog rank.Catalog }

func (s catalogStub) GetAll(context.Context) (rank.Catalog, error) { return s.catalog, nil }
func (s catalogStub) GetByID(_ context.Context, id shared.RankTierID) (rank.Tier, error) {
	if t, ok := s.catalog.ByID(id); ok {
		return t, nil
	}
	return rank.Tier{}, shared.ErrRankNotFound
}

type stateStub struct{ saved []rank.State }

func (s *stateStub) Get(_ context.Context, id shared.MemberID) (rank.State, error) {
	return rank.State{MemberID: id, CurrentRankID: "newbie"}, nil
}
func (s *stateStub) Save(_ context.Context, state rank.State) error {
	s.saved = append(s.saved, state)
	return nil
}
func (s *stateStub) SaveIfCurrent(_ context.Context, next rank.State, _ rank.State) (bool, error) {
	s.saved = append(s.saved, next)
	return true, nil
}

type achCatalogStub struct{}

func (achCatalogStub) GetActive(context.Context) ([]achievement.Achievement, error) {
	return nil, nil
}
func (achCatalogStub) GetByID(context.Context, shared.AchievementID) (achievement.Achievement, error) {
	return achievement.Achievement{}, shared.ErrAchievementNotFound
}

type unlockStub struct{}

func (unlockStub) GetUnlockedIDs(context.Context, shared.MemberID) (map[shared.AchievementID]bool, error) {
	return nil, nil
}
func (unlockStub) ListUnlocks(context.Context, shared.MemberID) ([]achievement.Unlock, error) {
	return nil, nil
}
func (unlockStub) RecordUnlock(context.Context, achievement.Unlock) (bool, error) {
	return true, nil
}

type outboxStub struct{ entries []*notification.OutboxEntry }

func (o *outboxStub) Save(_ context.Context, e *notification.OutboxEntry) error {
	o.entries = append(o.entries, e)
	return nil
}
func (o *outboxStub) FetchPending(context.Context, int) ([]*notification.OutboxEntry, error) {
	return nil, nil
}
func (o *outboxStub) Update(context.Context, *notification.OutboxEntry) error { return nil }

type cacheStub struct{ invalidated []string }

func (c *cacheStub) StoreBoard(context.Context, leaderboard.Board) error { return nil }
func (c *cacheStub) GetCachedBoard(context.Context, leaderboard.Metric, leaderboard.Period, int) (leaderboard.Board, error) {
	return leaderboard.Board{}, shared.ErrLeaderboardNotFound
}
func (c *cacheStub) GetCachedPosition(context.Context, shared.MemberID, leaderboard.Metric, leaderboard.Period) (int, error) {
	return 0, shared.ErrLeaderboardNotFound
}
func (c *cacheStub) Invalidate(_ context.Context, m leaderboard.Metric, p leaderboard.Period) error {
	c.invalidated = append(c.invalidated, m.String()+":"+p.String())
	return nil
}

func sagaFixture(t *testing.T, stats member.Stats) (*ProgressionFlowSaga, *stateStub, *cacheStub) {
	t.Helper()

	tierOf := func(id string, order, direct, network int) rank.Tier {
		money, err := shared.NewMoneyFromFloat(0)
		require.NoError(t, err)
		tier, err := rank.NewTier(rank.NewTierParams{
			ID:                shared.RankTierID(id),
			Name:              id,
			Order:             order,
			MinDirectRecruits: direct,
			MinNetworkSize:    network,
			MinTotalEarned:    money,
		})
		require.NoError(t, err)
		return tier
	}
	catalog, err := rank.NewCatalog([]rank.Tier{
		tierOf("newbie", 1, 0, 0),
		tierOf("builder", 2, 5, 20),
	})
	require.NoError(t, err)

	states := &stateStub{}
	evaluator := command.NewEvaluateMemberHandler(
		statsStub{stats: stats},
		catalogStub{catalog: catalog},
		states,
		achCatalogStub{},
		unlockStub{},
		&outboxStub{},
		shared.NopTxRunner{},
		nil,
		nil,
	)
	cache := &cacheStub{}
	flow := NewProgressionFlowSaga(evaluator, cache, nil, DefaultProgressionFlowConfig())
	return flow, states, cache
}

func mustStats(t *testing.T, direct, network int) member.Stats {
	t.Helper()
	money, err := shared.NewMoneyFromFloat(0)
	require.NoError(t, err)
	s, err := member.NewStats(direct, network, money)
	require.NoError(t, err)
	return s
}

func TestProgressionFlow_EvaluatesAndInvalidatesCaches(t *testing.T) {
	flow, states, cache := sagaFixture(t, mustStats(t, 5, 20))

	result, err := flow.RunAfterRecruitment(context.Background(), testMemberUUID, "corr-1")

	require.NoError(t, err)
	assert.True(t, result.RankChanged)
	assert.Equal(t, "builder", result.NewRankName)
	require.Len(t, states.saved, 1)

	// recruitment затрагивает две метрики по трём периодам.
	assert.Equal(t, 6, result.CachesInvalidated)
	assert.Len(t, cache.invalidated, 6)
}

func TestProgressionFlow_NoProgressStillSucceeds(t *testing.T) {
	flow, states, _ := sagaFixture(t, mustStats(t, 0, 0))

	// Показатели не дотягивают до builder, ранг newbie уже сохранён
	// стабом как текущий: проход ничего не меняет.
	result, err := flow.RunAfterCommission(context.Background(), testMemberUUID, "")

	require.NoError(t, err)
	assert.False(t, result.HasProgress())
	assert.Empty(t, states.saved)
}

func TestProgressionFlow_RejectsEmptyMemberID(t *testing.T) {
	flow, _, _ := sagaFixture(t, mustStats(t, 0, 0))

	_, err := flow.Execute(context.Background(), ProgressionInput{})

	require.Error(t, err)
	var flowErr *ProgressionFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepValidateInput, flowErr.Step)
}
