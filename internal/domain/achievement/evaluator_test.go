package achievement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

func stats(t *testing.T, direct, network int, earned string) member.Stats {
	t.Helper()
	m, err := shared.NewMoneyFromString(earned)
	require.NoError(t, err)
	s, err := member.NewStats(direct, network, m)
	require.NoError(t, err)
	return s
}

func ach(t *testing.T, id, name string, points int, criteria string) Achievement {
	t.Helper()
	a, err := NewAchievement(NewAchievementParams{
		ID:       shared.AchievementID(id),
		Name:     name,
		Category: CategoryRecruiting,
		Points:   points,
		Criteria: json.RawMessage(criteria),
	})
	require.NoError(t, err)
	return a
}

func TestParseCriteria_ValidConjunction(t *testing.T) {
	criteria, err := ParseCriteria(json.RawMessage(`{"network_size": 50, "direct_recruits": 10}`))

	require.NoError(t, err)
	require.Len(t, criteria, 2)
	// Canonical metric order regardless of JSON key order.
	assert.Equal(t, MetricDirectRecruits, criteria[0].Metric)
	assert.Equal(t, MetricNetworkSize, criteria[1].Metric)
}

func TestParseCriteria_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown metric", `{"login_streak": 7}`},
		{"non-numeric threshold", `{"direct_recruits": "ten"}`},
		{"zero threshold", `{"direct_recruits": 0}`},
		{"negative threshold", `{"total_earned": -5}`},
		{"empty object", `{}`},
		{"malformed json", `{direct`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCriteria(json.RawMessage(tc.raw))
			assert.Error(t, err)
			assert.True(t, shared.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCriteria_ProgressIsMinimumAcrossThresholds(t *testing.T) {
	criteria, err := ParseCriteria(json.RawMessage(`{"direct_recruits": 10, "total_earned": 100}`))
	require.NoError(t, err)

	// 7/10 recruits = 70%, 100/100 earned = 100%. The conservative
	// minimum wins so progress never reads 100% before qualification.
	p := criteria.Progress(stats(t, 7, 0, "100"))

	assert.Equal(t, 70, p.Int())
	assert.False(t, criteria.AllSatisfied(stats(t, 7, 0, "100")))
}

func TestCriteria_SingleThresholdProgress(t *testing.T) {
	criteria, err := ParseCriteria(json.RawMessage(`{"direct_recruits": 10}`))
	require.NoError(t, err)

	assert.Equal(t, 70, criteria.Progress(stats(t, 7, 0, "0")).Int())
	assert.False(t, criteria.AllSatisfied(stats(t, 7, 0, "0")))
	assert.True(t, criteria.AllSatisfied(stats(t, 10, 0, "0")))
}

func TestEvaluate_UnlocksWhenEveryCriterionHolds(t *testing.T) {
	eval := NewEvaluator()
	catalog := []Achievement{
		ach(t, "first-recruit", "First Recruit", 100, `{"direct_recruits": 1}`),
		ach(t, "team-builder", "Team Builder", 200, `{"direct_recruits": 5}`),
		ach(t, "network-pro", "Network Pro", 300, `{"direct_recruits": 10, "network_size": 30}`),
	}

	res := eval.Evaluate(stats(t, 5, 10, "0"), nil, catalog)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, shared.AchievementID("first-recruit"), res.Candidates[0].Achievement.ID)
	assert.Equal(t, shared.AchievementID("team-builder"), res.Candidates[1].Achievement.ID)
	assert.Equal(t, shared.MaxPercent, res.Candidates[0].Progress)
	assert.Empty(t, res.Skipped)
}

func TestEvaluate_SkipsAlreadyUnlocked(t *testing.T) {
	eval := NewEvaluator()
	catalog := []Achievement{
		ach(t, "first-recruit", "First Recruit", 100, `{"direct_recruits": 1}`),
	}
	unlocked := map[shared.AchievementID]bool{"first-recruit": true}

	res := eval.Evaluate(stats(t, 100, 500, "10000"), unlocked, catalog)

	assert.Empty(t, res.Candidates, "unlocked achievements are never re-evaluated")
}

func TestEvaluate_MonotonicUnderStatRegression(t *testing.T) {
	eval := NewEvaluator()
	catalog := []Achievement{
		ach(t, "century-club", "Century Club", 200, `{"total_earned": 100}`),
	}
	unlocked := map[shared.AchievementID]bool{"century-club": true}

	// Balance adjustment dropped earnings below the threshold: the
	// unlock stays and no new candidate is produced.
	res := eval.Evaluate(stats(t, 0, 0, "15"), unlocked, catalog)

	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Skipped)
}

func TestEvaluate_InvalidCriteriaSkippedWithoutAbort(t *testing.T) {
	eval := NewEvaluator()
	catalog := []Achievement{
		ach(t, "broken", "Broken", 100, `{"login_streak": 7}`),
		ach(t, "first-recruit", "First Recruit", 100, `{"direct_recruits": 1}`),
	}

	res := eval.Evaluate(stats(t, 3, 0, "0"), nil, catalog)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, shared.AchievementID("first-recruit"), res.Candidates[0].Achievement.ID)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, shared.AchievementID("broken"), res.Skipped[0].AchievementID)
	assert.Error(t, res.Skipped[0].Reason)
}

func TestEvaluate_InactiveAchievementsIgnored(t *testing.T) {
	eval := NewEvaluator()
	a := ach(t, "retired", "Retired", 100, `{"direct_recruits": 1}`)
	a.Active = false

	res := eval.Evaluate(stats(t, 10, 0, "0"), nil, []Achievement{a})

	assert.Empty(t, res.Candidates)
}

func TestProgressForAll_PureRead(t *testing.T) {
	eval := NewEvaluator()
	catalog := []Achievement{
		ach(t, "first-recruit", "First Recruit", 100, `{"direct_recruits": 1}`),
		ach(t, "team-builder", "Team Builder", 200, `{"direct_recruits": 10}`),
		ach(t, "broken", "Broken", 50, `{}`),
	}
	unlocks := []Unlock{NewUnlock("m1", "first-recruit")}

	entries := eval.ProgressForAll(stats(t, 7, 0, "0"), unlocks, catalog)

	require.Len(t, entries, 2, "broken criteria are dropped from the read")

	assert.True(t, entries[0].Unlocked)
	assert.Equal(t, 100, entries[0].Progress.Int())
	require.NotNil(t, entries[0].UnlockedAt)

	assert.False(t, entries[1].Unlocked)
	assert.Equal(t, 70, entries[1].Progress.Int())
}

func TestSummarize(t *testing.T) {
	catalog := []Achievement{
		ach(t, "a", "A", 100, `{"direct_recruits": 1}`),
		ach(t, "b", "B", 200, `{"direct_recruits": 5}`),
		ach(t, "c", "C", 300, `{"direct_recruits": 10}`),
		ach(t, "d", "D", 400, `{"direct_recruits": 25}`),
	}
	unlocks := []Unlock{NewUnlock("m1", "a"), NewUnlock("m1", "b")}

	s := Summarize(unlocks, catalog)

	assert.Equal(t, 2, s.UnlockedCount)
	assert.Equal(t, 4, s.TotalCount)
	assert.Equal(t, 300, s.TotalPoints)
	assert.Equal(t, 50, s.CompletionRate.Int())
}
