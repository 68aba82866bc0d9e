// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MemberRepository implements member.Repository and member.StatsProvider
// for PostgreSQL.
type MemberRepository struct {
	conn *Connection
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(conn *Connection) *MemberRepository {
	return &MemberRepository{conn: conn}
}

var (
	_ member.Repository    = (*MemberRepository)(nil)
	_ member.StatsProvider = (*MemberRepository)(nil)
)

const memberColumns = `id, wallet, username, referrer_id, status, joined_at, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

// FindByID returns a member by internal ID.
func (r *MemberRepository) FindByID(ctx context.Context, id shared.MemberID) (*member.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, string(id))
	return r.scanMember(row)
}

// FindByWallet returns a member by wallet address.
func (r *MemberRepository) FindByWallet(ctx context.Context, wallet shared.WalletAddress) (*member.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE LOWER(wallet) = LOWER($1)
	`

	row := r.conn.QueryRow(ctx, query, string(wallet))
	return r.scanMember(row)
}

// List returns members matching the given options, newest first.
func (r *MemberRepository) List(ctx context.Context, opts member.ListOptions) ([]*member.Member, error) {
	query, args := r.buildListQuery(opts, false)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*member.Member
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// Count returns the number of members matching the given options.
func (r *MemberRepository) Count(ctx context.Context, opts member.ListOptions) (int, error) {
	query, args := r.buildListQuery(opts, true)

	var count int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}

	return count, nil
}

// Exists reports whether a member exists.
func (r *MemberRepository) Exists(ctx context.Context, id shared.MemberID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM members WHERE id = $1)`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, string(id)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check member existence: %w", err)
	}

	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

// GetStats returns the member's progression metrics snapshot. A missing
// stats row for an existing member reads as zero stats; a missing member
// is shared.ErrStatsNotFound and must abort the evaluation.
func (r *MemberRepository) GetStats(ctx context.Context, id shared.MemberID) (member.Stats, error) {
	query := `
		SELECT COALESCE(s.direct_recruits, 0),
		       COALESCE(s.network_size, 0),
		       COALESCE(s.total_earned, 0)
		FROM members m
		LEFT JOIN member_stats s ON s.member_id = m.id
		WHERE m.id = $1
	`

	var (
		directRecruits int
		networkSize    int
		totalEarned    decimal.Decimal
	)

	err := r.conn.QueryRow(ctx, query, string(id)).Scan(&directRecruits, &networkSize, &totalEarned)
	if err != nil {
		if IsNoRows(err) {
			return member.Stats{}, shared.ErrStatsNotFound
		}
		return member.Stats{}, fmt.Errorf("failed to load member stats: %w", err)
	}

	earned, err := shared.NewMoney(totalEarned)
	if err != nil {
		return member.Stats{}, fmt.Errorf("corrupt total_earned for member %s: %w", id, err)
	}

	return member.NewStats(directRecruits, networkSize, earned)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *MemberRepository) buildListQuery(opts member.ListOptions, count bool) (string, []interface{}) {
	var sb strings.Builder
	if count {
		sb.WriteString(`SELECT COUNT(*) FROM members`)
	} else {
		sb.WriteString(`SELECT ` + memberColumns + ` FROM members`)
	}

	var (
		conditions []string
		args       []interface{}
	)

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.ReferrerID != "" {
		args = append(args, string(opts.ReferrerID))
		conditions = append(conditions, fmt.Sprintf("referrer_id = $%d", len(args)))
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	if !count {
		sb.WriteString(" ORDER BY joined_at DESC, id")
		args = append(args, opts.Pagination.Limit())
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
		args = append(args, opts.Pagination.Offset())
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return sb.String(), args
}

// scanRow lets scanMember work with both pgx.Row and pgx.Rows.
type scanRow interface {
	Scan(dest ...interface{}) error
}

func (r *MemberRepository) scanMember(row scanRow) (*member.Member, error) {
	var (
		m          member.Member
		id         string
		wallet     string
		referrerID *string
		status     string
	)

	err := row.Scan(
		&id,
		&wallet,
		&m.Username,
		&referrerID,
		&status,
		&m.JoinedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}

	m.ID = shared.MemberID(id)
	m.Wallet = shared.WalletAddress(wallet)
	m.Status = member.Status(status)
	if referrerID != nil {
		m.ReferrerID = shared.MemberID(*referrerID)
	}

	return &m, nil
}
