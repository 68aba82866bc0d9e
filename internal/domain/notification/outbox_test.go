package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMemberID = "2f9c1b34-8a77-4f0e-9c34-0d6f5f0a1b2c"

func TestNewOutboxEntry(t *testing.T) {
	entry, err := NewOutboxEntry("ob-1", testMemberID, TypeRankUp, "Rank Up!", "You reached Builder", map[string]interface{}{
		"new_rank": "builder",
	})

	require.NoError(t, err)
	assert.Equal(t, OutboxPending, entry.Status)
	assert.Zero(t, entry.Attempts)
	assert.JSONEq(t, `{"new_rank":"builder"}`, string(entry.Data))
}

func TestNewOutboxEntry_UnknownType(t *testing.T) {
	_, err := NewOutboxEntry("ob-1", testMemberID, Type("sms_blast"), "t", "m", nil)
	assert.Error(t, err)
}

func TestOutboxEntry_RetriesThenParks(t *testing.T) {
	entry, err := NewOutboxEntry("ob-1", testMemberID, TypeAchievementUnlocked, "Unlocked", "First Recruit", nil)
	require.NoError(t, err)

	for i := 0; i < maxDispatchAttempts-1; i++ {
		entry.MarkAttemptFailed(errors.New("gateway timeout"))
		assert.Equal(t, OutboxPending, entry.Status)
	}

	entry.MarkAttemptFailed(errors.New("gateway timeout"))
	assert.Equal(t, OutboxFailed, entry.Status)
	assert.True(t, entry.Exhausted())
	assert.Equal(t, "gateway timeout", entry.LastError)
	require.NotNil(t, entry.DispatchedAt)
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry, err := NewOutboxEntry("ob-1", testMemberID, TypeRankUp, "Rank Up!", "m", nil)
	require.NoError(t, err)

	entry.MarkSent()

	assert.Equal(t, OutboxSent, entry.Status)
	require.NotNil(t, entry.DispatchedAt)
}

func TestNotification_MarkReadIdempotent(t *testing.T) {
	n, err := NewNotification(NewNotificationParams{
		ID:       "n-1",
		MemberID: testMemberID,
		Type:     TypeRankUp,
		Title:    "Rank Up!",
		Message:  "You reached Builder",
	})
	require.NoError(t, err)
	require.False(t, n.IsRead)

	n.MarkRead()
	require.True(t, n.IsRead)
	first := *n.ReadAt

	n.MarkRead()
	assert.Equal(t, first, *n.ReadAt)
}
