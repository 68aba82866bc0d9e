package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Ручные фейки вместо моков: контракты маленькие, а явные структуры
// позволяют инспектировать записанное состояние после прохода.

const (
	testMemberUUID  = "3f2c8f44-9c1d-4f6a-8a2e-5b7d9e0c1a23"
	otherMemberUUID = "7a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9"
)

type fakeStatsProvider struct {
	stats map[shared.MemberID]member.Stats
	err   error
}

func (f *fakeStatsProvider) GetStats(_ context.Context, id shared.MemberID) (member.Stats, error) {
	if f.err != nil {
		return member.Stats{}, f.err
	}
	s, ok := f.stats[id]
	if !ok {
		return member.Stats{}, shared.ErrStatsNotFound
	}
	return s, nil
}

type fakeRankCatalog struct {
	catalog rank.Catalog
	err     error
}

func (f *fakeRankCatalog) GetAll(_ context.Context) (rank.Catalog, error) {
	return f.catalog, f.err
}

func (f *fakeRankCatalog) GetByID(_ context.Context, id shared.RankTierID) (rank.Tier, error) {
	if t, ok := f.catalog.ByID(id); ok {
		return t, nil
	}
	return rank.Tier{}, shared.ErrRankNotFound
}

type fakeStateRepo struct {
	states  map[shared.MemberID]rank.State
	saved   []rank.State
	saveErr error

	// concurrent имитирует гонку: перед условной записью состояние
	// подменяется, как будто параллельный проход или закрепление
	// администратора зафиксировались между чтением и записью.
	concurrent *rank.State
}

func (f *fakeStateRepo) Get(_ context.Context, memberID shared.MemberID) (rank.State, error) {
	if s, ok := f.states[memberID]; ok {
		return s, nil
	}
	return rank.State{MemberID: memberID}, nil
}

func (f *fakeStateRepo) Save(_ context.Context, state rank.State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.states == nil {
		f.states = make(map[shared.MemberID]rank.State)
	}
	f.states[state.MemberID] = state
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeStateRepo) SaveIfCurrent(_ context.Context, next rank.State, prev rank.State) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	if f.states == nil {
		f.states = make(map[shared.MemberID]rank.State)
	}
	if f.concurrent != nil {
		f.states[f.concurrent.MemberID] = *f.concurrent
		f.concurrent = nil
	}
	if stored, ok := f.states[next.MemberID]; ok {
		if stored.CurrentRankID != prev.CurrentRankID || stored.ManualOverride != prev.ManualOverride {
			return false, nil
		}
	}
	f.states[next.MemberID] = next
	f.saved = append(f.saved, next)
	return true, nil
}

type fakeAchCatalog struct {
	items []achievement.Achievement
	err   error
}

func (f *fakeAchCatalog) GetActive(_ context.Context) ([]achievement.Achievement, error) {
	return f.items, f.err
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
	unlocked map[shared.AchievementID]achievement.Unlock
	inserted []achievement.Unlock

	// alreadyTaken имитирует проигрыш гонки: вставка по этим ID
	// возвращает false, как будто параллельный проход успел раньше.
	alreadyTaken map[shared.AchievementID]bool
}

func (f *fakeUnlockRepo) GetUnlockedIDs(_ context.Context, _ shared.MemberID) (map[shared.AchievementID]bool, error) {
	ids := make(map[shared.AchievementID]bool, len(f.unlocked))
	for id := range f.unlocked {
		ids[id] = true
	}
	return ids, nil
}

func (f *fakeUnlockRepo) ListUnlocks(_ context.Context, _ shared.MemberID) ([]achievement.Unlock, error) {
	unlocks := make([]achievement.Unlock, 0, len(f.unlocked))
	for _, u := range f.unlocked {
		unlocks = append(unlocks, u)
	}
	return unlocks, nil
}

func (f *fakeUnlockRepo) RecordUnlock(_ context.Context, unlock achievement.Unlock) (bool, error) {
	if f.alreadyTaken[unlock.AchievementID] {
		return false, nil
	}
	if _, ok := f.unlocked[unlock.AchievementID]; ok {
		return false, nil
	}
	if f.unlocked == nil {
		f.unlocked = make(map[shared.AchievementID]achievement.Unlock)
	}
	f.unlocked[unlock.AchievementID] = unlock
	f.inserted = append(f.inserted, unlock)
	return true, nil
}

type fakeOutbox struct {
	entries []*notification.OutboxEntry
	saveErr error
}

func (f *fakeOutbox) Save(_ context.Context, entry *notification.OutboxEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]*notification.OutboxEntry, error) {
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	return f.entries[:limit], nil
}

func (f *fakeOutbox) Update(_ context.Context, _ *notification.OutboxEntry) error {
	return nil
}

func (f *fakeOutbox) byType(kind notification.Type) []*notification.OutboxEntry {
	var out []*notification.OutboxEntry
	for _, e := range f.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeMemberRepo struct {
	existing map[shared.MemberID]bool
}

func (f *fakeMemberRepo) FindByID(_ context.Context, id shared.MemberID) (*member.Member, error) {
	if !f.existing[id] {
		return nil, shared.ErrMemberNotFound
	}
	return &member.Member{ID: id}, nil
}

func (f *fakeMemberRepo) FindByWallet(_ context.Context, _ shared.WalletAddress) (*member.Member, error) {
	return nil, shared.ErrMemberNotFound
}

func (f *fakeMemberRepo) List(_ context.Context, _ member.ListOptions) ([]*member.Member, error) {
	return nil, nil
}

func (f *fakeMemberRepo) Count(_ context.Context, _ member.ListOptions) (int, error) {
	return len(f.existing), nil
}

func (f *fakeMemberRepo) Exists(_ context.Context, id shared.MemberID) (bool, error) {
	return f.existing[id], nil
}

type fakeBus struct {
	published []shared.Event
	err       error
}

func (f *fakeBus) Publish(event shared.Event) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) byType(t shared.EventType) []shared.Event {
	var out []shared.Event
	for _, e := range f.published {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
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

// testCatalog: newbie (база), builder (5/20/100), manager (10/50/500).
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

// brokenAchievement собирает запись каталога с заведомо битыми критериями,
// минуя валидацию конструктора (как битая строка в БД).
func brokenAchievement(id, name string, criteria string) achievement.Achievement {
	return achievement.Achievement{
		ID:          shared.AchievementID(id),
		Name:        name,
		Category:    achievement.CategoryRecruiting,
		Points:      100,
		RawCriteria: json.RawMessage(criteria),
		Active:      true,
	}
}
