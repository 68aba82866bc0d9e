// Package jobs contains implementations of scheduled jobs for the
// progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Locker acquires a short-lived distributed lock. Backed by Redis SetNX so
// only one instance rebuilds the boards when several workers run.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// SnapshotPruner deletes snapshots older than the retention threshold.
// Implemented by the postgres leaderboard repository.
type SnapshotPruner interface {
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RebuildLeaderboardsJob recomputes every metric and period combination from
// the source of truth, warms the Redis cache and records a snapshot. Between
// runs reads are served from the cache, so board queries never hit the
// aggregation SQL on the hot path.
type RebuildLeaderboardsJob struct {
	repo      leaderboard.Repository
	snapshots leaderboard.SnapshotRepository
	cache     leaderboard.Cache
	pruner    SnapshotPruner
	locker    Locker
	lockKey   string
	logger    *slog.Logger
	config    RebuildLeaderboardsConfig

	lastRunStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardsConfig contains configuration for the rebuild job.
type RebuildLeaderboardsConfig struct {
	// BoardSize is how many entries each rebuilt board holds.
	BoardSize int

	// SnapshotRetentionDays is how long to keep old snapshots.
	SnapshotRetentionDays int

	// Timeout is the maximum duration for one rebuild run.
	Timeout time.Duration

	// LockTTL bounds the distributed lock. Must exceed a normal run.
	LockTTL time.Duration
}

// DefaultRebuildLeaderboardsConfig returns sensible defaults.
func DefaultRebuildLeaderboardsConfig() RebuildLeaderboardsConfig {
	return RebuildLeaderboardsConfig{
		BoardSize:             100,
		SnapshotRetentionDays: 30,
		Timeout:               5 * time.Minute,
		LockTTL:               10 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	BoardsRebuilt    int
	SnapshotsCreated int
	SnapshotsPruned  int64
	Errors           []error
}

// NewRebuildLeaderboardsJob creates a new rebuild job. The locker and pruner
// are optional: without a locker every instance rebuilds, without a pruner
// snapshots accumulate.
func NewRebuildLeaderboardsJob(
	repo leaderboard.Repository,
	snapshots leaderboard.SnapshotRepository,
	cache leaderboard.Cache,
	pruner SnapshotPruner,
	locker Locker,
	lockKey string,
	logger *slog.Logger,
	config RebuildLeaderboardsConfig,
) *RebuildLeaderboardsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BoardSize <= 0 {
		config.BoardSize = 100
	}

	return &RebuildLeaderboardsJob{
		repo:      repo,
		snapshots: snapshots,
		cache:     cache,
		pruner:    pruner,
		locker:    locker,
		lockKey:   lockKey,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardsJob) Name() string {
	return "rebuild_leaderboards"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardsJob) Description() string {
	return "Recomputes leaderboards for every metric and period, warms the cache and records snapshots"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil {
		acquired, err := j.locker.SetNX(ctx, j.lockKey, time.Now().UTC().Format(time.RFC3339), j.config.LockTTL)
		if err != nil {
			j.logger.Warn("lock check failed, rebuilding anyway", "error", err)
		} else if !acquired {
			j.logger.Debug("rebuild skipped, another instance holds the lock")
			return nil
		}
	}

	stats := &RebuildStats{StartedAt: time.Now()}
	j.logger.Info("starting rebuild_leaderboards job")

	metrics := []leaderboard.Metric{
		leaderboard.MetricEarnings,
		leaderboard.MetricRecruiters,
		leaderboard.MetricNetworkGrowth,
	}
	periods := []leaderboard.Period{
		leaderboard.PeriodAllTime,
		leaderboard.PeriodWeekly,
		leaderboard.PeriodMonthly,
	}

	for _, metric := range metrics {
		for _, period := range periods {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := j.rebuildBoard(ctx, metric, period, stats); err != nil {
				stats.Errors = append(stats.Errors, err)
				j.logger.Error("failed to rebuild board",
					"metric", metric,
					"period", period,
					"error", err,
				)
			}
		}
	}

	if j.pruner != nil && j.config.SnapshotRetentionDays > 0 {
		threshold := time.Now().AddDate(0, 0, -j.config.SnapshotRetentionDays)
		pruned, err := j.pruner.DeleteSnapshotsBefore(ctx, threshold)
		if err != nil {
			j.logger.Warn("failed to prune old snapshots", "error", err)
		} else if pruned > 0 {
			stats.SnapshotsPruned = pruned
			j.logger.Info("pruned old snapshots", "count", pruned)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("rebuild_leaderboards job completed",
		"duration", stats.Duration.String(),
		"boards_rebuilt", stats.BoardsRebuilt,
		"snapshots_created", stats.SnapshotsCreated,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("rebuild completed with %d errors", len(stats.Errors))
	}
	return nil
}

// rebuildBoard recomputes one board, caches it and snapshots it.
func (j *RebuildLeaderboardsJob) rebuildBoard(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period, stats *RebuildStats) error {
	board, err := j.repo.GetBoard(ctx, metric, period, j.config.BoardSize)
	if err != nil {
		return fmt.Errorf("compute board: %w", err)
	}

	if j.cache != nil {
		if err := j.cache.StoreBoard(ctx, board); err != nil {
			j.logger.Warn("failed to cache board",
				"metric", metric,
				"period", period,
				"error", err,
			)
		}
	}
	stats.BoardsRebuilt++

	if j.snapshots != nil {
		snapshot := leaderboard.NewSnapshot(uuid.NewString(), board)
		if err := j.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		stats.SnapshotsCreated++
	}

	j.logger.Debug("board rebuilt",
		"metric", metric,
		"period", period,
		"entries", board.Size(),
	)
	return nil
}

// LastRunStats returns statistics from the last run.
func (j *RebuildLeaderboardsJob) LastRunStats() *RebuildStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RebuildStats)
}
