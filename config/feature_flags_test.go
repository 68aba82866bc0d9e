package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureNotifyRankUp, nil))
	assert.True(t, ff.IsEnabled(FeatureDeliveryInApp, nil))
	assert.False(t, ff.IsEnabled(FeatureDeliveryWebhook, nil), "webhook delivery is opt-in")
	assert.False(t, ff.IsEnabled(FeatureExperimentalRedisBus, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlags_EnableDisable(t *testing.T) {
	ff := LoadFeatureFlags()

	require.NoError(t, ff.EnableFeature(FeatureDeliveryWebhook))
	assert.True(t, ff.IsEnabled(FeatureDeliveryWebhook, nil))

	require.NoError(t, ff.DisableFeature(FeatureDeliveryWebhook))
	assert.False(t, ff.IsEnabled(FeatureDeliveryWebhook, nil))

	assert.ErrorIs(t, ff.EnableFeature("no.such.feature"), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureDeliveryInApp, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_MemberOverridesWin(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{MemberID: "member-1"}

	require.True(t, ff.IsEnabled(FeatureNotifyRankUp, ctx))

	ff.SetMemberOverride("member-1", FeatureNotifyRankUp, false)
	assert.False(t, ff.IsEnabled(FeatureNotifyRankUp, ctx))
	assert.True(t, ff.IsEnabled(FeatureNotifyRankUp, &FeatureContext{MemberID: "member-2"}),
		"override is scoped to one member")

	ff.ClearMemberOverrides("member-1")
	assert.True(t, ff.IsEnabled(FeatureNotifyRankUp, ctx))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()
	admin := &FeatureContext{MemberID: "admin-1", IsAdmin: true}

	assert.True(t, ff.IsEnabled(FeatureExperimentalRedisBus, admin))
}

func TestFeatureFlags_RolloutBucketsAreStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureNotifyAchievement, 50))

	ctx := &FeatureContext{MemberID: "member-stable"}
	first := ff.IsEnabled(FeatureNotifyAchievement, ctx)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureNotifyAchievement, ctx),
			"the same member must stay in the same bucket")
	}
}

func TestFeatureFlags_RolloutBoundaries(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{MemberID: "member-x"}

	require.NoError(t, ff.SetRolloutPercent(FeatureNotifyAchievement, 0))
	assert.False(t, ff.IsEnabled(FeatureNotifyAchievement, ctx))

	require.NoError(t, ff.SetRolloutPercent(FeatureNotifyAchievement, 100))
	assert.True(t, ff.IsEnabled(FeatureNotifyAchievement, ctx))
}

func TestFeatureFlags_PeriodEnabled(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.PeriodEnabled("all_time", nil), "all-time boards cannot be disabled")
	assert.True(t, ff.PeriodEnabled("weekly", nil))
	assert.True(t, ff.PeriodEnabled("monthly", nil))

	require.NoError(t, ff.DisableFeature(FeatureLeaderboardWeekly))
	assert.False(t, ff.PeriodEnabled("weekly", nil))
	assert.True(t, ff.PeriodEnabled("monthly", nil))
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_DELIVERY_WEBHOOK", "true")
	t.Setenv("FEATURE_NOTIFY_RANK_UP", "25")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureDeliveryWebhook, nil))

	features := ff.GetAllFeatures()
	require.Contains(t, features, FeatureNotifyRankUp)
	assert.Equal(t, 25, features[FeatureNotifyRankUp].RolloutPercent)
}
