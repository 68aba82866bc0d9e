package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE RANK COMMAND
// Rank-only re-evaluation, without touching achievements. Used by the
// scheduled reconciliation job and by admin tooling after a catalog edit,
// where re-running the full achievement pass for every member is wasteful.
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateRankCommand contains the data for a rank-only re-evaluation.
type RecalculateRankCommand struct {
	// MemberID is the member to re-evaluate.
	MemberID string

	// Force clears a manual pin before evaluating. Without it a pinned
	// rank is left untouched, same as the regular pass.
	Force bool
}

// Validate validates the command.
func (c RecalculateRankCommand) Validate() error {
	if _, err := shared.NewMemberID(c.MemberID); err != nil {
		return fmt.Errorf("recalculate_rank: invalid member_id: %w", err)
	}
	return nil
}

// RecalculateRankResult contains the result of the re-evaluation.
type RecalculateRankResult struct {
	MemberID        string
	RankID          string
	RankName        string
	Changed         bool
	FirstAssignment bool
	OverrideApplied bool
	OverrideCleared bool
	Events          []shared.Event
	RecalculatedAt  time.Time
}

// RecalculateRankHandler handles the RecalculateRankCommand.
type RecalculateRankHandler struct {
	stats       member.StatsProvider
	rankCatalog rank.CatalogRepository
	rankStates  rank.StateRepository
	outbox      notification.OutboxRepository
	tx          shared.TxRunner
	publisher   shared.EventPublisher
	log         *logger.Logger

	eval rank.Evaluator
}

// NewRecalculateRankHandler creates a new RecalculateRankHandler.
func NewRecalculateRankHandler(
	stats member.StatsProvider,
	rankCatalog rank.CatalogRepository,
	rankStates rank.StateRepository,
	outbox notification.OutboxRepository,
	tx shared.TxRunner,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *RecalculateRankHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RecalculateRankHandler{
		stats:       stats,
		rankCatalog: rankCatalog,
		rankStates:  rankStates,
		outbox:      outbox,
		tx:          tx,
		publisher:   publisher,
		log:         log.With(logger.Component("recalculate_rank")),
		eval:        rank.NewEvaluator(),
	}
}

// Handle executes the rank-only re-evaluation.
func (h *RecalculateRankHandler) Handle(ctx context.Context, cmd RecalculateRankCommand) (*RecalculateRankResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(cmd.MemberID)

	stats, err := h.stats.GetStats(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("recalculate_rank: stats lookup: %w", err)
	}

	catalog, err := h.rankCatalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("recalculate_rank: rank catalog: %w", err)
	}

	state, err := h.rankStates.Get(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("recalculate_rank: rank state: %w", err)
	}
	// prev keeps the stored state for the compare-and-swap write below.
	prev := state
	forceCleared := cmd.Force && state.ManualOverride
	if cmd.Force {
		state.ManualOverride = false
	}

	res, err := h.eval.Evaluate(stats, state, catalog)
	if err != nil {
		return nil, fmt.Errorf("recalculate_rank: evaluation: %w", err)
	}

	result := &RecalculateRankResult{
		MemberID:        cmd.MemberID,
		RankID:          res.Tier.ID.String(),
		RankName:        res.Tier.Name,
		Changed:         res.Changed,
		FirstAssignment: res.FirstAssignment,
		OverrideApplied: res.OverrideApplied,
		OverrideCleared: res.OverrideCleared,
		RecalculatedAt:  time.Now().UTC(),
	}

	if !res.Changed && !res.OverrideCleared && !forceCleared {
		return result, nil
	}

	var events []shared.Event
	rankApplied := true
	err = h.tx.WithinTx(ctx, func(txCtx context.Context) error {
		events = events[:0]

		next := rank.State{
			MemberID:       memberID,
			CurrentRankID:  res.Tier.ID,
			ManualOverride: false,
			UpdatedAt:      time.Now().UTC(),
		}
		applied, err := h.rankStates.SaveIfCurrent(txCtx, next, prev)
		if err != nil {
			return fmt.Errorf("save rank state: %w", err)
		}
		rankApplied = applied
		if !applied {
			return nil
		}

		if res.FirstAssignment {
			events = append(events,
				shared.NewRankAssignedEvent(memberID.String(), res.Tier.ID.String(), res.Tier.Name))
			return nil
		}
		if !res.Changed {
			// Pin dropped, rank stays where it was. Nothing to announce.
			return nil
		}

		entry, err := notification.NewOutboxEntry(
			uuid.NewString(),
			memberID,
			notification.TypeRankUp,
			"Rank Up!",
			fmt.Sprintf("Congratulations! You've been promoted to %s.", res.Tier.Name),
			map[string]interface{}{
				"rank_id":   res.Tier.ID.String(),
				"rank_name": res.Tier.Name,
				"order":     res.Tier.Order,
			},
		)
		if err != nil {
			return fmt.Errorf("build outbox entry: %w", err)
		}
		if err := h.outbox.Save(txCtx, entry); err != nil {
			return fmt.Errorf("save outbox entry: %w", err)
		}

		events = append(events, shared.NewRankChangedEvent(
			memberID.String(),
			state.CurrentRankID.String(), "",
			res.Tier.ID.String(), res.Tier.Name,
			res.Tier.Order,
		))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recalculate_rank: transaction: %w", err)
	}

	if !rankApplied {
		// A concurrent pass or an admin pin won the rank write; their
		// state stands and their notification is the one that counts.
		result.Changed = false
		result.FirstAssignment = false
		result.OverrideCleared = false
	}

	result.Events = events
	for _, event := range events {
		if h.publisher == nil {
			break
		}
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("event publish failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err))
		}
	}

	return result, nil
}
