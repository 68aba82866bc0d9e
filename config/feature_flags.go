package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the progression engine.
// Supports gradual rollout by member, per-member overrides, and
// time-based activation windows.
type FeatureFlags struct {
	mu sync.RWMutex

	features        map[string]*Feature
	memberOverrides map[string]map[string]bool // memberID -> feature -> enabled
}

// Feature is one toggle. RolloutPercent (0-100) buckets members by a
// hash of their ID; the optional window bounds when the feature is live.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext identifies who is asking. Admin requests bypass
// rollout gating.
type FeatureContext struct {
	MemberID string // member UUID
	IsAdmin  bool   // admin-initiated request
}

// Predefined feature flag names.
const (
	// Notification kinds
	FeatureNotifyRankUp          = "notify.rank_up"              // "You reached a new rank!"
	FeatureNotifyAdminRankChange = "notify.admin_rank_change"    // Manual promotions and demotions
	FeatureNotifyAchievement     = "notify.achievement_unlocked" // Achievement unlocks

	// Delivery channels
	FeatureDeliveryInApp   = "delivery.in_app"  // Persist notifications for the member feed
	FeatureDeliveryWebhook = "delivery.webhook" // Forward notifications to the platform webhook

	// Leaderboard surface
	FeatureLeaderboardWeekly    = "leaderboard.weekly"    // Weekly period boards
	FeatureLeaderboardMonthly   = "leaderboard.monthly"   // Monthly period boards
	FeatureLeaderboardSnapshots = "leaderboard.snapshots" // Persist board snapshots

	// Evaluation behavior
	FeatureEvaluationAchievements = "evaluation.achievements"   // Achievement pass during evaluation
	FeatureEvaluationStaleClear   = "evaluation.stale_override" // Auto-clear overrides pointing at removed tiers

	// Experimental
	FeatureExperimentalRedisBus = "experimental.redis_eventbus" // Cross-instance event fan-out
)

// LoadFeatureFlags builds the defaults and applies FEATURE_* env
// overrides on top.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:        make(map[string]*Feature),
		memberOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults registers every known flag with its shipping state.
func (ff *FeatureFlags) initializeDefaults() {
	// Notification features
	ff.features[FeatureNotifyRankUp] = &Feature{
		Name:           FeatureNotifyRankUp,
		Description:    "Notify when a member reaches a new rank",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAdminRankChange] = &Feature{
		Name:           FeatureNotifyAdminRankChange,
		Description:    "Notify on manual promotions and demotions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAchievement] = &Feature{
		Name:           FeatureNotifyAchievement,
		Description:    "Notify on achievement unlocks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Delivery channels
	ff.features[FeatureDeliveryInApp] = &Feature{
		Name:           FeatureDeliveryInApp,
		Description:    "Persist notifications for the in-app feed",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureDeliveryWebhook] = &Feature{
		Name:           FeatureDeliveryWebhook,
		Description:    "Forward notifications to the platform webhook",
		Enabled:        false, // Requires WEBHOOK_ENDPOINT
		RolloutPercent: 0,
	}

	// Leaderboard features
	ff.features[FeatureLeaderboardWeekly] = &Feature{
		Name:           FeatureLeaderboardWeekly,
		Description:    "Serve weekly period leaderboards",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardMonthly] = &Feature{
		Name:           FeatureLeaderboardMonthly,
		Description:    "Serve monthly period leaderboards",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardSnapshots] = &Feature{
		Name:           FeatureLeaderboardSnapshots,
		Description:    "Persist leaderboard snapshots on rebuild",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Evaluation features
	ff.features[FeatureEvaluationAchievements] = &Feature{
		Name:           FeatureEvaluationAchievements,
		Description:    "Run the achievement pass during evaluation",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEvaluationStaleClear] = &Feature{
		Name:           FeatureEvaluationStaleClear,
		Description:    "Auto-clear overrides pointing at removed tiers",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental, off until explicitly enabled
	ff.features[FeatureExperimentalRedisBus] = &Feature{
		Name:           FeatureExperimentalRedisBus,
		Description:    "Cross-instance event fan-out over Redis",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false|<percent>
// overrides, so FEATURE_DELIVERY_WEBHOOK=true switches a channel on
// and FEATURE_NOTIFY_ACHIEVEMENT_UNLOCKED=50 rolls it to half the base.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Boolean first, percent second
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey maps "delivery.webhook" to
// "FEATURE_DELIVERY_WEBHOOK".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled decides whether featureName is on for ctx, in order:
// member override, admin bypass, master switch, activation window,
// rollout bucket.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.isEnabledLocked(featureName, ctx)
}

func (ff *FeatureFlags) isEnabledLocked(featureName string, ctx *FeatureContext) bool {
	// Overrides beat everything else
	if ctx != nil && ctx.MemberID != "" {
		if overrides, ok := ff.memberOverrides[ctx.MemberID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admins see everything
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	// Activation window
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Rollout bucket
	if feature.RolloutPercent < 100 && ctx != nil && ctx.MemberID != "" {
		return isInRollout(ctx.MemberID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout buckets the member with FNV-1a over feature+member so
// the same member lands in the same bucket on every call.
func isInRollout(memberID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(memberID))
	hash := h.Sum32()

	bucket := int(hash % 100) // 0-99

	return bucket < percent
}

// SetMemberOverride pins featureName on or off for one member,
// regardless of rollout.
func (ff *FeatureFlags) SetMemberOverride(memberID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.memberOverrides[memberID]; !ok {
		ff.memberOverrides[memberID] = make(map[string]bool)
	}
	ff.memberOverrides[memberID][featureName] = enabled
}

// ClearMemberOverrides drops every pin for the member.
func (ff *FeatureFlags) ClearMemberOverrides(memberID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.memberOverrides, memberID)
}

// SetRolloutPercent moves a feature's rollout at runtime. Percent 0
// disables the feature, anything above re-enables it.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature turns featureName fully on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns featureName fully off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures snapshots the current flag table. Callers get
// copies; mutating them does not touch live flags.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// Convenience checks used by the notifier and the board queries.

// NotificationsEnabled reports whether any notification kind is live.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyRankUp, ctx) ||
		ff.IsEnabled(FeatureNotifyAdminRankChange, ctx) ||
		ff.IsEnabled(FeatureNotifyAchievement, ctx)
}

// PeriodEnabled reports whether the given board period is served;
// unknown periods are left to query validation.
func (ff *FeatureFlags) PeriodEnabled(period string, ctx *FeatureContext) bool {
	switch period {
	case "weekly":
		return ff.IsEnabled(FeatureLeaderboardWeekly, ctx)
	case "monthly":
		return ff.IsEnabled(FeatureLeaderboardMonthly, ctx)
	default:
		return true
	}
}



var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError keeps flag failures distinct from domain errors.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
