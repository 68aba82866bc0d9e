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
// PROMOTE MEMBER COMMAND
// Admin assigns a rank directly, in either direction. The assignment is
// unconditional (no threshold check), pins the rank against automatic
// re-evaluation and always notifies the member.
// ══════════════════════════════════════════════════════════════════════════════

// PromoteMemberCommand contains the data for a manual rank assignment.
type PromoteMemberCommand struct {
	// MemberID is the member receiving the rank.
	MemberID string

	// RankID is the target rank tier. Must exist in the catalog.
	RankID string

	// PromotedBy is the admin who issued the assignment.
	PromotedBy string

	// Reason is an optional audit note.
	Reason string
}

// Validate validates the command.
func (c PromoteMemberCommand) Validate() error {
	if _, err := shared.NewMemberID(c.MemberID); err != nil {
		return fmt.Errorf("promote_member: invalid member_id: %w", err)
	}
	if !shared.RankTierID(c.RankID).IsValid() {
		return fmt.Errorf("promote_member: %w: rank_id is required", shared.ErrInvalidID)
	}
	if c.PromotedBy == "" {
		return fmt.Errorf("promote_member: %w: promoted_by is required", shared.ErrEmptyValue)
	}
	return nil
}

// PromoteMemberResult contains the result of a manual assignment.
type PromoteMemberResult struct {
	MemberID string
	RankID   string
	RankName string

	// Demotion is true when the assigned tier sits below the previous one.
	Demotion bool

	Events     []shared.Event
	PromotedAt time.Time
}

// PromoteMemberHandler handles the PromoteMemberCommand.
type PromoteMemberHandler struct {
	members     member.Repository
	rankCatalog rank.CatalogRepository
	rankStates  rank.StateRepository
	outbox      notification.OutboxRepository
	tx          shared.TxRunner
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewPromoteMemberHandler creates a new PromoteMemberHandler.
func NewPromoteMemberHandler(
	members member.Repository,
	rankCatalog rank.CatalogRepository,
	rankStates rank.StateRepository,
	outbox notification.OutboxRepository,
	tx shared.TxRunner,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *PromoteMemberHandler {
	if log == nil {
		log = logger.Default()
	}
	return &PromoteMemberHandler{
		members:     members,
		rankCatalog: rankCatalog,
		rankStates:  rankStates,
		outbox:      outbox,
		tx:          tx,
		publisher:   publisher,
		log:         log.With(logger.Component("promote_member")),
	}
}

// Handle executes the manual assignment.
func (h *PromoteMemberHandler) Handle(ctx context.Context, cmd PromoteMemberCommand) (*PromoteMemberResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(cmd.MemberID)
	rankID := shared.RankTierID(cmd.RankID)

	exists, err := h.members.Exists(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("promote_member: member lookup: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("promote_member: %w", shared.ErrMemberNotFound)
	}

	tier, err := h.rankCatalog.GetByID(ctx, rankID)
	if err != nil {
		return nil, fmt.Errorf("promote_member: rank lookup: %w", err)
	}

	prev, err := h.rankStates.Get(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("promote_member: rank state: %w", err)
	}

	demotion := false
	if prev.HasRank() {
		if prevTier, err := h.rankCatalog.GetByID(ctx, prev.CurrentRankID); err == nil {
			demotion = tier.Order < prevTier.Order
		}
	}

	event := shared.NewMemberPromotedEvent(
		memberID.String(), prev.CurrentRankID.String(), tier.ID.String(), tier.Name, demotion,
	).WithPromotedBy(cmd.PromotedBy)

	err = h.tx.WithinTx(ctx, func(txCtx context.Context) error {
		next := rank.State{
			MemberID:       memberID,
			CurrentRankID:  tier.ID,
			ManualOverride: true,
			UpdatedAt:      time.Now().UTC(),
		}
		if err := h.rankStates.Save(txCtx, next); err != nil {
			return fmt.Errorf("save rank state: %w", err)
		}

		// Manual assignment notifies in both directions, unlike the
		// automatic path which only announces promotions.
		entry, err := notification.NewOutboxEntry(
			uuid.NewString(),
			memberID,
			notification.TypeRankChangedAdmin,
			"Rank Updated",
			fmt.Sprintf("An administrator set your rank to %s.", tier.Name),
			map[string]interface{}{
				"rank_id":     tier.ID.String(),
				"rank_name":   tier.Name,
				"promoted_by": cmd.PromotedBy,
				"demotion":    demotion,
			},
		)
		if err != nil {
			return fmt.Errorf("build outbox entry: %w", err)
		}
		if err := h.outbox.Save(txCtx, entry); err != nil {
			return fmt.Errorf("save outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("promote_member: transaction: %w", err)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("event publish failed",
				logger.MemberID(cmd.MemberID),
				logger.Err(err))
		}
	}

	h.log.Info("rank assigned manually",
		logger.MemberID(cmd.MemberID),
		logger.RankName(tier.Name),
		logger.String("promoted_by", cmd.PromotedBy),
		logger.Bool("demotion", demotion))

	return &PromoteMemberResult{
		MemberID:   cmd.MemberID,
		RankID:     tier.ID.String(),
		RankName:   tier.Name,
		Demotion:   demotion,
		Events:     []shared.Event{event},
		PromotedAt: time.Now().UTC(),
	}, nil
}
