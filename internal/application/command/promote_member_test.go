package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

type promoteFixture struct {
	members  *fakeMemberRepo
	catalog  *fakeRankCatalog
	states   *fakeStateRepo
	outbox   *fakeOutbox
	bus      *fakeBus
	handler  *PromoteMemberHandler
	memberID shared.MemberID
}

func newPromoteFixture(t *testing.T) *promoteFixture {
	t.Helper()
	f := &promoteFixture{
		members:  &fakeMemberRepo{existing: map[shared.MemberID]bool{}},
		catalog:  &fakeRankCatalog{catalog: testCatalog(t)},
		states:   &fakeStateRepo{},
		outbox:   &fakeOutbox{},
		bus:      &fakeBus{},
		memberID: shared.MemberID(testMemberUUID),
	}
	f.members.existing[f.memberID] = true
	f.handler = NewPromoteMemberHandler(
		f.members, f.catalog, f.states, f.outbox,
		shared.NopTxRunner{}, f.bus, nil,
	)
	return f
}

func TestPromoteMember_AssignsRankAndPinsIt(t *testing.T) {
	f := newPromoteFixture(t)
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "newbie"},
	}

	result, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID:   testMemberUUID,
		RankID:     "manager",
		PromotedBy: "admin-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "manager", result.RankID)
	assert.False(t, result.Demotion)

	require.Len(t, f.states.saved, 1)
	assert.True(t, f.states.saved[0].ManualOverride)
	assert.Equal(t, shared.RankTierID("manager"), f.states.saved[0].CurrentRankID)
}

func TestPromoteMember_DemotionAlsoNotifies(t *testing.T) {
	// Ручное назначение работает в обе стороны и всегда уведомляет,
	// в отличие от автоматического прохода.
	f := newPromoteFixture(t)
	f.states.states = map[shared.MemberID]rank.State{
		f.memberID: {MemberID: f.memberID, CurrentRankID: "manager"},
	}

	result, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID:   testMemberUUID,
		RankID:     "newbie",
		PromotedBy: "admin-1",
	})

	require.NoError(t, err)
	assert.True(t, result.Demotion)

	entries := f.outbox.byType(notification.TypeRankChangedAdmin)
	require.Len(t, entries, 1)

	events := f.bus.byType(shared.EventMemberPromoted)
	require.Len(t, events, 1)
	promoted, ok := events[0].(shared.MemberPromotedEvent)
	require.True(t, ok)
	assert.True(t, promoted.Demotion)
	assert.Equal(t, "admin-1", promoted.PromotedBy)
}

func TestPromoteMember_NoThresholdCheck(t *testing.T) {
	// Участник с нулевыми показателями получает высший ранг: ручное
	// назначение не сверяется с порогами каталога.
	f := newPromoteFixture(t)

	result, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID:   testMemberUUID,
		RankID:     "manager",
		PromotedBy: "admin-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "manager", result.RankName)
	require.Len(t, f.outbox.byType(notification.TypeRankChangedAdmin), 1)
}

func TestPromoteMember_UnknownRankRejected(t *testing.T) {
	f := newPromoteFixture(t)

	_, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID:   testMemberUUID,
		RankID:     "diamond-elite",
		PromotedBy: "admin-1",
	})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.states.saved)
	assert.Empty(t, f.outbox.entries)
}

func TestPromoteMember_UnknownMemberRejected(t *testing.T) {
	f := newPromoteFixture(t)

	_, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID:   otherMemberUUID,
		RankID:     "manager",
		PromotedBy: "admin-1",
	})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.states.saved)
}

func TestPromoteMember_RequiresPromotedBy(t *testing.T) {
	f := newPromoteFixture(t)

	_, err := f.handler.Handle(context.Background(), PromoteMemberCommand{
		MemberID: testMemberUUID,
		RankID:   "manager",
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
