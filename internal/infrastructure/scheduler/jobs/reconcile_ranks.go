package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE RANKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileRanksJob sweeps active members and re-runs the rank evaluation
// for each one. It is the safety net for drift: missed evaluation triggers,
// catalog edits that reshuffle thresholds, or stale manual pins all converge
// back to the correct rank on the next sweep. Pinned ranks are left alone
// unless the pin went stale, same as the regular pass.
type ReconcileRanksJob struct {
	members     member.Repository
	recalculate *command.RecalculateRankHandler
	logger      *slog.Logger
	config      ReconcileRanksConfig

	lastRunStats atomic.Value // *ReconcileStats
}

// ReconcileRanksConfig contains configuration for the reconcile job.
type ReconcileRanksConfig struct {
	// PageSize is how many members are fetched per page.
	PageSize int

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultReconcileRanksConfig returns sensible defaults.
func DefaultReconcileRanksConfig() ReconcileRanksConfig {
	return ReconcileRanksConfig{
		PageSize: 200,
		Timeout:  15 * time.Minute,
	}
}

// ReconcileStats contains statistics from a sweep.
type ReconcileStats struct {
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	MembersSwept   int
	RanksChanged   int
	OverridesKept  int
	EvaluationErrs int
}

// NewReconcileRanksJob creates a new reconcile job.
func NewReconcileRanksJob(
	members member.Repository,
	recalculate *command.RecalculateRankHandler,
	logger *slog.Logger,
	config ReconcileRanksConfig,
) *ReconcileRanksJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = 200
	}

	return &ReconcileRanksJob{
		members:     members,
		recalculate: recalculate,
		logger:      logger,
		config:      config,
	}
}

// Name returns the job name.
func (j *ReconcileRanksJob) Name() string {
	return "reconcile_ranks"
}

// Description returns a human-readable description.
func (j *ReconcileRanksJob) Description() string {
	return "Re-evaluates the rank of every active member to correct drift"
}

// Run executes the sweep.
func (j *ReconcileRanksJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &ReconcileStats{StartedAt: time.Now()}
	j.logger.Info("starting reconcile_ranks job")

	for page := 1; ; page++ {
		opts := member.DefaultListOptions().
			WithStatus(member.StatusActive).
			WithPagination(shared.NewPagination(page, j.config.PageSize))

		batch, err := j.members.List(ctx, opts)
		if err != nil {
			return fmt.Errorf("list members (page %d): %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			j.reconcileMember(ctx, string(m.ID), stats)
			stats.MembersSwept++
		}

		if len(batch) < j.config.PageSize {
			break
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("reconcile_ranks job completed",
		"duration", stats.Duration.String(),
		"members_swept", stats.MembersSwept,
		"ranks_changed", stats.RanksChanged,
		"overrides_kept", stats.OverridesKept,
		"errors", stats.EvaluationErrs,
	)
	return nil
}

// reconcileMember re-evaluates a single member. Per-member failures are
// counted and logged so one bad row cannot abort the whole sweep.
func (j *ReconcileRanksJob) reconcileMember(ctx context.Context, memberID string, stats *ReconcileStats) {
	result, err := j.recalculate.Handle(ctx, command.RecalculateRankCommand{MemberID: memberID})
	if err != nil {
		stats.EvaluationErrs++
		j.logger.Warn("rank reconciliation failed",
			"member_id", memberID,
			"error", err,
		)
		return
	}

	if result.OverrideApplied {
		stats.OverridesKept++
	}
	if result.Changed {
		stats.RanksChanged++
		j.logger.Info("rank corrected during sweep",
			"member_id", memberID,
			"rank_id", result.RankID,
			"override_cleared", result.OverrideCleared,
		)
	}
}

// LastRunStats returns statistics from the last sweep.
func (j *ReconcileRanksJob) LastRunStats() *ReconcileStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileStats)
}
