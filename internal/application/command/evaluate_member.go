// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE MEMBER COMMAND
// Runs a full progression pass for one member: rank evaluation plus
// achievement evaluation, with atomic persistence and outbox notifications.
// Triggered after every commission or recruitment event.
// ══════════════════════════════════════════════════════════════════════════════

// Trigger describes what caused the evaluation.
type Trigger string

const (
	// TriggerCommission - a commission was credited.
	TriggerCommission Trigger = "commission"

	// TriggerRecruitment - a new recruit joined the downline.
	TriggerRecruitment Trigger = "recruitment"

	// TriggerAdmin - explicit admin-initiated re-evaluation.
	TriggerAdmin Trigger = "admin"

	// TriggerScheduled - periodic reconciliation pass.
	TriggerScheduled Trigger = "scheduled"
)

// EvaluateMemberCommand contains the data for a progression pass.
type EvaluateMemberCommand struct {
	// MemberID is the member to evaluate.
	MemberID string

	// Trigger records what caused the pass.
	Trigger Trigger

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EvaluateMemberCommand) Validate() error {
	if _, err := shared.NewMemberID(c.MemberID); err != nil {
		return fmt.Errorf("evaluate_member: invalid member_id: %w", err)
	}
	return nil
}

// UnlockedAchievement describes one achievement unlocked by this pass.
type UnlockedAchievement struct {
	AchievementID string
	Name          string
	Points        int
}

// EvaluateMemberResult contains the result of a progression pass.
type EvaluateMemberResult struct {
	// MemberID is the evaluated member.
	MemberID string

	// RankChanged indicates the rank tier moved.
	RankChanged bool

	// FirstAssignment indicates a silent initial rank assignment.
	FirstAssignment bool

	// OverrideApplied indicates the pass was short-circuited by a pin.
	OverrideApplied bool

	// OverrideCleared indicates a stale pin was dropped.
	OverrideCleared bool

	// RankID and RankName describe the resulting tier.
	RankID   string
	RankName string

	// Unlocked lists achievements unlocked by this pass.
	Unlocked []UnlockedAchievement

	// SkippedAchievements counts catalog entries skipped for invalid criteria.
	SkippedAchievements int

	// Events contains domain events generated (published post-commit).
	Events []shared.Event

	// EvaluatedAt is when the pass ran.
	EvaluatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateMemberHandler handles the EvaluateMemberCommand.
type EvaluateMemberHandler struct {
	stats       member.StatsProvider
	rankCatalog rank.CatalogRepository
	rankStates  rank.StateRepository
	achCatalog  achievement.CatalogRepository
	unlocks     achievement.UnlockRepository
	outbox      notification.OutboxRepository
	tx          shared.TxRunner
	publisher   shared.EventPublisher
	log         *logger.Logger

	rankEval rank.Evaluator
	achEval  achievement.Evaluator
}

// NewEvaluateMemberHandler creates a new EvaluateMemberHandler.
func NewEvaluateMemberHandler(
	stats member.StatsProvider,
	rankCatalog rank.CatalogRepository,
	rankStates rank.StateRepository,
	achCatalog achievement.CatalogRepository,
	unlocks achievement.UnlockRepository,
	outbox notification.OutboxRepository,
	tx shared.TxRunner,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EvaluateMemberHandler {
	if log == nil {
		log = logger.Default()
	}
	return &EvaluateMemberHandler{
		stats:       stats,
		rankCatalog: rankCatalog,
		rankStates:  rankStates,
		achCatalog:  achCatalog,
		unlocks:     unlocks,
		outbox:      outbox,
		tx:          tx,
		publisher:   publisher,
		log:         log.With(logger.Component("evaluate_member")),
		rankEval:    rank.NewEvaluator(),
		achEval:     achievement.NewEvaluator(),
	}
}

// Handle executes a full progression pass.
//
// The pass is read-heavy and write-light: stats, catalogs and state are
// loaded first, both evaluators run on plain values, and only then is a
// single short transaction opened for the rank upsert, the unlock inserts
// and the outbox entries. Notifications never happen inside the
// transaction - the outbox dispatcher picks them up after commit.
func (h *EvaluateMemberHandler) Handle(ctx context.Context, cmd EvaluateMemberCommand) (*EvaluateMemberResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(cmd.MemberID)

	// Stats lookup failure aborts the pass with no partial writes.
	stats, err := h.stats.GetStats(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: stats lookup: %w", err)
	}

	catalog, err := h.rankCatalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: rank catalog: %w", err)
	}

	state, err := h.rankStates.Get(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: rank state: %w", err)
	}

	achievements, err := h.achCatalog.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: achievement catalog: %w", err)
	}

	unlockedIDs, err := h.unlocks.GetUnlockedIDs(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: unlocked set: %w", err)
	}

	rankRes, err := h.rankEval.Evaluate(stats, state, catalog)
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: rank evaluation: %w", err)
	}

	achRes := h.achEval.Evaluate(stats, unlockedIDs, achievements)
	for _, skipped := range achRes.Skipped {
		h.log.Warn("achievement skipped: invalid criteria",
			logger.MemberID(cmd.MemberID),
			logger.AchievementID(skipped.AchievementID.String()),
			logger.String("achievement_name", skipped.Name),
			logger.Err(skipped.Reason))
	}

	result := &EvaluateMemberResult{
		MemberID:            cmd.MemberID,
		RankChanged:         rankRes.Changed,
		FirstAssignment:     rankRes.FirstAssignment,
		OverrideApplied:     rankRes.OverrideApplied,
		OverrideCleared:     rankRes.OverrideCleared,
		RankID:              rankRes.Tier.ID.String(),
		RankName:            rankRes.Tier.Name,
		SkippedAchievements: len(achRes.Skipped),
		EvaluatedAt:         time.Now().UTC(),
	}

	if !h.hasWrites(rankRes, achRes) {
		return result, nil
	}

	var events []shared.Event
	rankApplied := true
	err = h.tx.WithinTx(ctx, func(txCtx context.Context) error {
		events = events[:0]
		result.Unlocked = result.Unlocked[:0]

		evs, applied, err := h.persistRank(txCtx, memberID, state, rankRes)
		if err != nil {
			return err
		}
		rankApplied = applied
		events = append(events, evs...)

		for _, candidate := range achRes.Candidates {
			ev, unlocked, err := h.persistUnlock(txCtx, memberID, candidate)
			if err != nil {
				return err
			}
			if !unlocked {
				// Lost the race to a concurrent pass: the row exists and
				// the winner already queued the notification.
				continue
			}
			events = append(events, ev)
			result.Unlocked = append(result.Unlocked, UnlockedAchievement{
				AchievementID: candidate.Achievement.ID.String(),
				Name:          candidate.Achievement.Name,
				Points:        candidate.Achievement.Points,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate_member: transaction: %w", err)
	}

	if !rankApplied {
		// A concurrent pass or an admin pin won the rank write; their
		// state stands and their notification is the one that counts.
		result.RankChanged = false
		result.FirstAssignment = false
		result.OverrideCleared = false
	}

	result.Events = events
	h.publish(ctx, events, cmd.CorrelationID)

	return result, nil
}

func (h *EvaluateMemberHandler) hasWrites(rankRes rank.Result, achRes achievement.EvaluationResult) bool {
	return rankRes.Changed || rankRes.OverrideCleared || len(achRes.Candidates) > 0
}

// persistRank writes the rank state and queues the rank-up notification.
// The write is a compare-and-swap against the state read at the start of
// the pass: of two concurrent evaluations detecting the same rank change
// exactly one lands the write and queues the notification, and a manual
// pin committed mid-pass is never overwritten. The very first assignment
// is persisted silently.
func (h *EvaluateMemberHandler) persistRank(ctx context.Context, memberID shared.MemberID, prev rank.State, res rank.Result) ([]shared.Event, bool, error) {
	if !res.Changed && !res.OverrideCleared {
		return nil, true, nil
	}

	next := rank.State{
		MemberID:      memberID,
		CurrentRankID: res.Tier.ID,
		// A stale pin is dropped together with the recomputed rank.
		ManualOverride: false,
		UpdatedAt:      time.Now().UTC(),
	}
	applied, err := h.rankStates.SaveIfCurrent(ctx, next, prev)
	if err != nil {
		return nil, false, fmt.Errorf("save rank state: %w", err)
	}
	if !applied {
		return nil, false, nil
	}

	if res.FirstAssignment {
		return []shared.Event{
			shared.NewRankAssignedEvent(memberID.String(), res.Tier.ID.String(), res.Tier.Name),
		}, true, nil
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
		return nil, false, fmt.Errorf("build rank outbox entry: %w", err)
	}
	if err := h.outbox.Save(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("save rank outbox entry: %w", err)
	}

	return []shared.Event{
		shared.NewRankChangedEvent(
			memberID.String(),
			prev.CurrentRankID.String(), "",
			res.Tier.ID.String(), res.Tier.Name,
			res.Tier.Order,
		),
	}, true, nil
}

// persistUnlock records one unlock idempotently. The (member, achievement)
// uniqueness constraint is the concurrency guard: of two concurrent passes
// exactly one observes inserted=true and queues the notification.
func (h *EvaluateMemberHandler) persistUnlock(ctx context.Context, memberID shared.MemberID, candidate achievement.Candidate) (shared.Event, bool, error) {
	unlock := achievement.NewUnlock(memberID, candidate.Achievement.ID)
	inserted, err := h.unlocks.RecordUnlock(ctx, unlock)
	if err != nil {
		return nil, false, fmt.Errorf("record unlock %s: %w", candidate.Achievement.ID, err)
	}
	if !inserted {
		return nil, false, nil
	}

	a := candidate.Achievement
	entry, err := notification.NewOutboxEntry(
		uuid.NewString(),
		memberID,
		notification.TypeAchievementUnlocked,
		"Achievement Unlocked!",
		fmt.Sprintf("%s %s (+%d points)", a.Icon, a.Name, a.Points),
		map[string]interface{}{
			"achievement_id": a.ID.String(),
			"name":           a.Name,
			"points":         a.Points,
		},
	)
	if err != nil {
		return nil, false, fmt.Errorf("build unlock outbox entry: %w", err)
	}
	if err := h.outbox.Save(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("save unlock outbox entry: %w", err)
	}

	event := shared.NewAchievementUnlockedEvent(
		memberID.String(), a.ID.String(), a.Name, string(a.Category), a.Points, candidate.Progress.Int(),
	)
	return event, true, nil
}

// publish emits events best-effort; a bus failure never fails the pass.
func (h *EvaluateMemberHandler) publish(ctx context.Context, events []shared.Event, correlationID string) {
	log := logger.FromContext(ctx)
	if correlationID != "" {
		log = log.With(logger.String("correlation_id", correlationID))
	}
	if h.publisher == nil {
		return
	}
	for _, event := range events {
		if err := h.publisher.Publish(event); err != nil {
			log.Warn("event publish failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err))
		}
	}
}
