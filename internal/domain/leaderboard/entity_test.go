package leaderboard

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func entry(memberID string, score int64) Entry {
	return Entry{
		MemberID: shared.MemberID(memberID),
		Username: memberID,
		Score:    decimal.NewFromInt(score),
	}
}

func TestNewBoard_TiesGetDistinctListPositions(t *testing.T) {
	board := NewBoard(MetricEarnings, PeriodAllTime, []Entry{
		entry("alice", 50),
		entry("bob", 50),
		entry("carol", 30),
	})

	require.Equal(t, 3, board.Size())
	// Stable tie-break, no secondary key: query order decides.
	assert.Equal(t, []int{1, 2, 3}, []int{
		board.Entries[0].Position,
		board.Entries[1].Position,
		board.Entries[2].Position,
	})
}

func TestPositionFor_TiesShareCountBasedPosition(t *testing.T) {
	board := NewBoard(MetricEarnings, PeriodAllTime, []Entry{
		entry("alice", 50),
		entry("bob", 50),
		entry("carol", 30),
	})

	// Both 50-earners: zero strictly-greater scores, so position 1 -
	// even though the list gave bob position 2. The single-position
	// formula and the list ordering deliberately disagree on ties.
	assert.Equal(t, 1, board.PositionFor(decimal.NewFromInt(50)))
	assert.Equal(t, 3, board.PositionFor(decimal.NewFromInt(30)))
	assert.Equal(t, 4, board.PositionFor(decimal.NewFromInt(10)))
}

func TestBoard_Top(t *testing.T) {
	board := NewBoard(MetricRecruiters, PeriodWeekly, []Entry{
		entry("a", 9),
		entry("b", 7),
		entry("c", 3),
	})

	top := board.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Position)

	assert.Len(t, board.Top(10), 3)
	assert.Nil(t, board.Top(0))
}

func TestBoard_EntryFor(t *testing.T) {
	board := NewBoard(MetricEarnings, PeriodMonthly, []Entry{
		entry("a", 9),
		entry("b", 7),
	})

	e, ok := board.EntryFor(shared.MemberID("b"))
	require.True(t, ok)
	assert.Equal(t, 2, e.Position)

	_, ok = board.EntryFor(shared.MemberID("nobody"))
	assert.False(t, ok)
}

func TestPeriod_Window(t *testing.T) {
	_, bounded := PeriodAllTime.Window()
	assert.False(t, bounded)

	w, bounded := PeriodWeekly.Window()
	require.True(t, bounded)
	assert.InDelta(t, 7*24.0, w.Duration().Hours(), 1.0)

	m, bounded := PeriodMonthly.Window()
	require.True(t, bounded)
	assert.InDelta(t, 30*24.0, m.Duration().Hours(), 1.0)
}

func TestMetricAndPeriodValidation(t *testing.T) {
	assert.True(t, MetricEarnings.IsValid())
	assert.True(t, MetricRecruiters.IsValid())
	assert.True(t, MetricNetworkGrowth.IsValid())
	assert.False(t, Metric("xp").IsValid())

	assert.True(t, PeriodAllTime.IsValid())
	assert.False(t, Period("hourly").IsValid())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	board := NewBoard(MetricEarnings, PeriodAllTime, []Entry{
		entry("alice", 50),
		entry("carol", 30),
	})
	snap := NewSnapshot("snap-1", board)

	data, err := snap.MarshalEntries()
	require.NoError(t, err)

	restored, err := UnmarshalEntries(data)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Equal(t, 1, restored[0].Position)
	assert.True(t, restored[0].Score.Equal(decimal.NewFromInt(50)))
}
