package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE OUTBOX JOB
// ══════════════════════════════════════════════════════════════════════════════

// OutboxPurger deletes outbox entries that reached a final state before the
// given threshold. Implemented by the postgres outbox repository.
type OutboxPurger interface {
	DeleteDispatchedBefore(ctx context.Context, before time.Time) (int64, error)
}

// PurgeOutboxJob trims sent and failed outbox entries past the retention
// window. Pending entries are never touched: failed ones stay long enough
// for an operator to inspect what could not be delivered.
type PurgeOutboxJob struct {
	purger    OutboxPurger
	retention time.Duration
	logger    *slog.Logger
}

// NewPurgeOutboxJob creates a new purge job.
func NewPurgeOutboxJob(purger OutboxPurger, retention time.Duration, logger *slog.Logger) *PurgeOutboxJob {
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeOutboxJob{
		purger:    purger,
		retention: retention,
		logger:    logger,
	}
}

// Name returns the job name.
func (j *PurgeOutboxJob) Name() string {
	return "purge_outbox"
}

// Description returns a human-readable description.
func (j *PurgeOutboxJob) Description() string {
	return "Deletes dispatched outbox entries past the retention window"
}

// Run executes the purge.
func (j *PurgeOutboxJob) Run(ctx context.Context) error {
	threshold := time.Now().Add(-j.retention)

	deleted, err := j.purger.DeleteDispatchedBefore(ctx, threshold)
	if err != nil {
		return fmt.Errorf("purge outbox: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("purged outbox entries",
			"count", deleted,
			"older_than", threshold.UTC().Format(time.RFC3339),
		)
	}
	return nil
}
