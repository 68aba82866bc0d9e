// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RankRepository implements rank.CatalogRepository and rank.StateRepository
// for PostgreSQL.
type RankRepository struct {
	conn *Connection
}

// NewRankRepository creates a new RankRepository.
func NewRankRepository(conn *Connection) *RankRepository {
	return &RankRepository{conn: conn}
}

var (
	_ rank.CatalogRepository = (*RankRepository)(nil)
	_ rank.StateRepository   = (*RankRepository)(nil)
)

const tierColumns = `id, name, badge_icon, badge_color, rank_order,
	       min_direct_recruits, min_network_size, min_total_earned, perks`

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// GetAll returns the full rank catalog ordered by hierarchy.
func (r *RankRepository) GetAll(ctx context.Context) (rank.Catalog, error) {
	query := `
		SELECT ` + tierColumns + `
		FROM user_ranks
		ORDER BY rank_order
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load rank catalog: %w", err)
	}
	defer rows.Close()

	var tiers []rank.Tier
	for rows.Next() {
		tier, err := r.scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rank catalog: %w", err)
	}

	return rank.NewCatalog(tiers)
}

// GetByID returns a single rank tier.
func (r *RankRepository) GetByID(ctx context.Context, id shared.RankTierID) (rank.Tier, error) {
	query := `
		SELECT ` + tierColumns + `
		FROM user_ranks
		WHERE id = $1
	`

	tier, err := r.scanTier(r.conn.QueryRow(ctx, query, string(id)))
	if err != nil {
		if IsNoRows(err) {
			return rank.Tier{}, shared.ErrRankNotFound
		}
		return rank.Tier{}, err
	}

	return tier, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Member Rank State
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the member's rank state. A member without a row gets the
// initial unranked state, not an error.
func (r *RankRepository) Get(ctx context.Context, memberID shared.MemberID) (rank.State, error) {
	query := `
		SELECT member_id, current_rank_id, manual_override, updated_at
		FROM member_rank_state
		WHERE member_id = $1
	`

	var (
		state rank.State
		id    string
		curr  string
	)

	err := r.conn.QueryRow(ctx, query, string(memberID)).Scan(&id, &curr, &state.ManualOverride, &state.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return rank.NewState(memberID), nil
		}
		return rank.State{}, fmt.Errorf("failed to load rank state: %w", err)
	}

	state.MemberID = shared.MemberID(id)
	state.CurrentRankID = shared.RankTierID(curr)
	return state, nil
}

// Save upserts the member's rank state. Writing the same state twice is
// not an error. Joins the active evaluation transaction when one exists.
func (r *RankRepository) Save(ctx context.Context, state rank.State) error {
	query := `
		INSERT INTO member_rank_state (member_id, current_rank_id, manual_override, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE SET
			current_rank_id = EXCLUDED.current_rank_id,
			manual_override = EXCLUDED.manual_override,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.conn.Exec(ctx, query,
		string(state.MemberID),
		string(state.CurrentRankID),
		state.ManualOverride,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rank state: %w", err)
	}

	return nil
}

// SaveIfCurrent writes next only when the stored row still matches prev.
// The WHERE clause on the conflict update is the concurrency guard: of two
// racing evaluations exactly one affects a row and gets true, the other
// sees the already-updated row and gets false. A manual pin committed
// between the caller's read and this write also fails the guard, so
// automatic evaluation can never overwrite it.
func (r *RankRepository) SaveIfCurrent(ctx context.Context, next rank.State, prev rank.State) (bool, error) {
	query := `
		INSERT INTO member_rank_state (member_id, current_rank_id, manual_override, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE SET
			current_rank_id = EXCLUDED.current_rank_id,
			manual_override = EXCLUDED.manual_override,
			updated_at = EXCLUDED.updated_at
		WHERE member_rank_state.current_rank_id = $5
		  AND member_rank_state.manual_override = $6
	`

	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tag, err := r.conn.Exec(ctx, query,
		string(next.MemberID),
		string(next.CurrentRankID),
		next.ManualOverride,
		updatedAt,
		string(prev.CurrentRankID),
		prev.ManualOverride,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save rank state: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *RankRepository) scanTier(row scanRow) (rank.Tier, error) {
	var (
		tier      rank.Tier
		id        string
		minEarned decimal.Decimal
		perksJSON []byte
	)

	err := row.Scan(
		&id,
		&tier.Name,
		&tier.BadgeIcon,
		&tier.BadgeColor,
		&tier.Order,
		&tier.MinDirectRecruits,
		&tier.MinNetworkSize,
		&minEarned,
		&perksJSON,
	)
	if err != nil {
		if IsNoRows(err) {
			return rank.Tier{}, err
		}
		return rank.Tier{}, fmt.Errorf("failed to scan rank tier: %w", err)
	}

	tier.ID = shared.RankTierID(id)

	earned, err := shared.NewMoney(minEarned)
	if err != nil {
		return rank.Tier{}, fmt.Errorf("corrupt min_total_earned for tier %s: %w", id, err)
	}
	tier.MinTotalEarned = earned

	// Unknown perk fields in the catalog are dropped on decode.
	perks := rank.DefaultPerks()
	if len(perksJSON) > 0 {
		if err := json.Unmarshal(perksJSON, &perks); err != nil {
			return rank.Tier{}, fmt.Errorf("corrupt perks for tier %s: %w", id, err)
		}
	}
	if perks.CommissionMultiplier == 0 {
		perks = rank.DefaultPerks()
	}
	tier.Perks = perks

	return tier, nil
}
