// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION FLOW SAGA
// Complex business process: full progression pass after a stat change
// Flow: Validate Input → Evaluate Rank & Achievements → Invalidate
//
//	Leaderboard Caches → Complete
//
// The evaluation step is the only critical one: it persists rank state,
// unlocks and outbox entries in a single transaction. Cache invalidation
// is best-effort; stale leaderboards self-heal on the next rebuild.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionInput contains data needed to run a progression pass.
type ProgressionInput struct {
	// MemberID - the member whose stats changed.
	MemberID string

	// Trigger - what caused the pass.
	Trigger command.Trigger

	// CorrelationID - tracing identifier carried through the flow.
	CorrelationID string
}

// Validate checks if the input is valid.
func (i ProgressionInput) Validate() error {
	if i.MemberID == "" {
		return errors.New("progression_flow: member ID is required")
	}
	return nil
}

// ProgressionFlowResult contains the result of the progression flow.
type ProgressionFlowResult struct {
	// MemberID - the evaluated member.
	MemberID string

	// RankChanged - the rank tier moved during the pass.
	RankChanged bool

	// NewRankName - name of the resulting tier.
	NewRankName string

	// UnlockedAchievements - achievements unlocked by the pass.
	UnlockedAchievements []command.UnlockedAchievement

	// CachesInvalidated - number of leaderboard caches dropped.
	CachesInvalidated int

	// ProcessedAt - when the flow completed.
	ProcessedAt time.Time
}

// HasProgress returns true if the pass changed anything visible.
func (r *ProgressionFlowResult) HasProgress() bool {
	return r.RankChanged || len(r.UnlockedAchievements) > 0
}

// ProgressionFlowStep represents a step in the progression flow.
type ProgressionFlowStep string

const (
	StepValidateInput    ProgressionFlowStep = "validate_input"
	StepEvaluate         ProgressionFlowStep = "evaluate"
	StepInvalidateCaches ProgressionFlowStep = "invalidate_caches"
	StepProgressComplete ProgressionFlowStep = "complete"
)

// ProgressionFlowState tracks the current state of the flow.
type ProgressionFlowState struct {
	CurrentStep       ProgressionFlowStep
	Input             ProgressionInput
	Evaluation        *command.EvaluateMemberResult
	CachesInvalidated int
	StartedAt         time.Time
	CompletedAt       *time.Time
	Error             error
	FailedStep        ProgressionFlowStep
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionFlowSaga orchestrates the progression pass and the follow-up
// cache maintenance.
type ProgressionFlowSaga struct {
	evaluator        *command.EvaluateMemberHandler
	leaderboardCache leaderboard.Cache
	log              *logger.Logger

	invalidateCaches bool
	affectedMetrics  map[command.Trigger][]leaderboard.Metric
}

// ProgressionFlowConfig contains configuration for the saga.
type ProgressionFlowConfig struct {
	// InvalidateCaches - drop affected leaderboard caches after a pass.
	InvalidateCaches bool
}

// DefaultProgressionFlowConfig returns default configuration.
func DefaultProgressionFlowConfig() ProgressionFlowConfig {
	return ProgressionFlowConfig{
		InvalidateCaches: true,
	}
}

// NewProgressionFlowSaga creates a new progression flow saga.
func NewProgressionFlowSaga(
	evaluator *command.EvaluateMemberHandler,
	leaderboardCache leaderboard.Cache,
	log *logger.Logger,
	config ProgressionFlowConfig,
) *ProgressionFlowSaga {
	if log == nil {
		log = logger.Default()
	}
	return &ProgressionFlowSaga{
		evaluator:        evaluator,
		leaderboardCache: leaderboardCache,
		log:              log.With(logger.Component("progression_flow")),
		invalidateCaches: config.InvalidateCaches,
		affectedMetrics: map[command.Trigger][]leaderboard.Metric{
			command.TriggerCommission:  {leaderboard.MetricEarnings},
			command.TriggerRecruitment: {leaderboard.MetricRecruiters, leaderboard.MetricNetworkGrowth},
		},
	}
}

// Execute runs the complete progression flow.
func (s *ProgressionFlowSaga) Execute(ctx context.Context, input ProgressionInput) (*ProgressionFlowResult, error) {
	state := &ProgressionFlowState{
		CurrentStep: StepValidateInput,
		Input:       input,
		StartedAt:   time.Now().UTC(),
	}

	if err := input.Validate(); err != nil {
		state.FailedStep = StepValidateInput
		state.Error = err
		return nil, s.wrapError(state, err)
	}

	// Step 1: Run the evaluation pass (the critical step)
	state.CurrentStep = StepEvaluate
	if err := s.stepEvaluate(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 2: Invalidate affected leaderboard caches (best-effort)
	state.CurrentStep = StepInvalidateCaches
	if err := s.stepInvalidateCaches(ctx, state); err != nil {
		s.log.Warn("cache invalidation incomplete",
			logger.MemberID(input.MemberID),
			logger.Err(err))
	}

	state.CurrentStep = StepProgressComplete
	now := time.Now().UTC()
	state.CompletedAt = &now

	return &ProgressionFlowResult{
		MemberID:             input.MemberID,
		RankChanged:          state.Evaluation.RankChanged,
		NewRankName:          state.Evaluation.RankName,
		UnlockedAchievements: state.Evaluation.Unlocked,
		CachesInvalidated:    state.CachesInvalidated,
		ProcessedAt:          now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepEvaluate runs the evaluation command.
func (s *ProgressionFlowSaga) stepEvaluate(ctx context.Context, state *ProgressionFlowState) error {
	result, err := s.evaluator.Handle(ctx, command.EvaluateMemberCommand{
		MemberID:      state.Input.MemberID,
		Trigger:       state.Input.Trigger,
		CorrelationID: state.Input.CorrelationID,
	})
	if err != nil {
		state.FailedStep = StepEvaluate
		state.Error = fmt.Errorf("evaluation failed: %w", err)
		return state.Error
	}

	state.Evaluation = result
	return nil
}

// stepInvalidateCaches drops the leaderboard caches affected by the trigger.
// A stat change shifts scores, so cached boards for the touched metrics are
// stale for every period.
func (s *ProgressionFlowSaga) stepInvalidateCaches(ctx context.Context, state *ProgressionFlowState) error {
	if !s.invalidateCaches || s.leaderboardCache == nil {
		return nil
	}

	metrics, ok := s.affectedMetrics[state.Input.Trigger]
	if !ok {
		// Admin and scheduled triggers may touch anything.
		metrics = []leaderboard.Metric{
			leaderboard.MetricEarnings,
			leaderboard.MetricRecruiters,
			leaderboard.MetricNetworkGrowth,
		}
	}

	periods := []leaderboard.Period{
		leaderboard.PeriodAllTime,
		leaderboard.PeriodWeekly,
		leaderboard.PeriodMonthly,
	}

	var firstErr error
	for _, metric := range metrics {
		for _, period := range periods {
			if err := s.leaderboardCache.Invalidate(ctx, metric, period); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			state.CachesInvalidated++
		}
	}
	return firstErr
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVENIENCE METHODS FOR COMMON TRIGGERS
// ══════════════════════════════════════════════════════════════════════════════

// RunAfterCommission runs the flow after a commission credit.
func (s *ProgressionFlowSaga) RunAfterCommission(ctx context.Context, memberID, correlationID string) (*ProgressionFlowResult, error) {
	return s.Execute(ctx, ProgressionInput{
		MemberID:      memberID,
		Trigger:       command.TriggerCommission,
		CorrelationID: correlationID,
	})
}

// RunAfterRecruitment runs the flow after a new recruit joins.
func (s *ProgressionFlowSaga) RunAfterRecruitment(ctx context.Context, memberID, correlationID string) (*ProgressionFlowResult, error) {
	return s.Execute(ctx, ProgressionInput{
		MemberID:      memberID,
		Trigger:       command.TriggerRecruitment,
		CorrelationID: correlationID,
	})
}

// RunScheduled runs the flow as part of the reconciliation job.
func (s *ProgressionFlowSaga) RunScheduled(ctx context.Context, memberID string) (*ProgressionFlowResult, error) {
	return s.Execute(ctx, ProgressionInput{
		MemberID: memberID,
		Trigger:  command.TriggerScheduled,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionFlowError represents an error during the progression flow.
type ProgressionFlowError struct {
	Step     ProgressionFlowStep
	MemberID string
	Cause    error
	Message  string
}

// Error implements the error interface.
func (e *ProgressionFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProgressionFlowError) Unwrap() error {
	return e.Cause
}

// wrapError wraps an error with saga context.
func (s *ProgressionFlowSaga) wrapError(state *ProgressionFlowState, err error) error {
	return &ProgressionFlowError{
		Step:     state.FailedStep,
		MemberID: state.Input.MemberID,
		Cause:    err,
		Message:  fmt.Sprintf("progression flow failed at step '%s': %v", state.FailedStep, err),
	}
}
