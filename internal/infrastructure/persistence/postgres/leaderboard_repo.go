// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository and
// leaderboard.SnapshotRepository for PostgreSQL. All-time boards read the
// member_stats read model; windowed boards aggregate the commission and
// recruitment logs over the period.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

var (
	_ leaderboard.Repository         = (*LeaderboardRepository)(nil)
	_ leaderboard.SnapshotRepository = (*LeaderboardRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Boards
// ─────────────────────────────────────────────────────────────────────────────

// GetBoard returns the leaderboard ordered by score descending. Positions
// follow the fetch order, so tied members get distinct positions.
func (r *LeaderboardRepository) GetBoard(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period, limit int) (leaderboard.Board, error) {
	source, args, err := scoreSource(metric, period)
	if err != nil {
		return leaderboard.Board{}, err
	}

	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT m.id, m.username, m.wallet, COALESCE(ur.name, ''), s.score
		FROM (%s) s
		JOIN members m ON m.id = s.member_id
		LEFT JOIN member_rank_state rs ON rs.member_id = m.id
		LEFT JOIN user_ranks ur ON ur.id = rs.current_rank_id
		WHERE m.status = 'active'
		ORDER BY s.score DESC
		LIMIT $%d
	`, source, len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return leaderboard.Board{}, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []leaderboard.Entry
	for rows.Next() {
		var (
			e      leaderboard.Entry
			id     string
			wallet string
		)
		if err := rows.Scan(&id, &e.Username, &wallet, &e.RankName, &e.Score); err != nil {
			return leaderboard.Board{}, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.MemberID = shared.MemberID(id)
		e.Wallet = shared.WalletAddress(wallet).Short()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return leaderboard.Board{}, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	return leaderboard.NewBoard(metric, period, entries), nil
}

// GetMemberScore returns the member's metric value for the period.
// Members with no activity in the window score zero.
func (r *LeaderboardRepository) GetMemberScore(ctx context.Context, memberID shared.MemberID, metric leaderboard.Metric, period leaderboard.Period) (decimal.Decimal, error) {
	source, args, err := scoreSource(metric, period)
	if err != nil {
		return decimal.Zero, err
	}

	args = append(args, string(memberID))
	query := fmt.Sprintf(`
		SELECT COALESCE((SELECT score FROM (%s) s WHERE s.member_id = $%d), 0)
	`, source, len(args))

	var score decimal.Decimal
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&score); err != nil {
		return decimal.Zero, fmt.Errorf("failed to query member score: %w", err)
	}

	return score, nil
}

// GetMemberPosition returns the member's position by the counting rule:
// the number of strictly greater scores plus one. Tied members share a
// position here, unlike positions in a listed board.
func (r *LeaderboardRepository) GetMemberPosition(ctx context.Context, memberID shared.MemberID, metric leaderboard.Metric, period leaderboard.Period) (int, error) {
	source, args, err := scoreSource(metric, period)
	if err != nil {
		return 0, err
	}

	args = append(args, string(memberID))
	query := fmt.Sprintf(`
		SELECT COUNT(*) + 1
		FROM (%s) s
		JOIN members m ON m.id = s.member_id
		WHERE m.status = 'active'
		  AND s.score > COALESCE((SELECT score FROM (%s) own WHERE own.member_id = $%d), 0)
	`, source, source, len(args))

	var position int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to query member position: %w", err)
	}

	return position, nil
}

// GetStats returns platform-wide aggregates.
func (r *LeaderboardRepository) GetStats(ctx context.Context) (leaderboard.Stats, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE m.status = 'active'),
		       COALESCE(SUM(s.total_earned) FILTER (WHERE m.status = 'active'), 0)
		FROM members m
		LEFT JOIN member_stats s ON s.member_id = m.id
	`

	var (
		stats leaderboard.Stats
		total decimal.Decimal
	)
	if err := r.conn.QueryRow(ctx, query).Scan(&stats.TotalMembers, &total); err != nil {
		return leaderboard.Stats{}, fmt.Errorf("failed to query platform stats: %w", err)
	}

	earnings, err := shared.NewMoney(total)
	if err != nil {
		return leaderboard.Stats{}, fmt.Errorf("corrupt total earnings aggregate: %w", err)
	}
	stats.TotalEarnings = earnings

	topQuery := `
		SELECT m.id, m.username
		FROM members m
		JOIN member_stats s ON s.member_id = m.id
		WHERE m.status = 'active'
		ORDER BY s.total_earned DESC
		LIMIT 1
	`

	var (
		topID   string
		topName string
	)
	err = r.conn.QueryRow(ctx, topQuery).Scan(&topID, &topName)
	switch {
	case err == nil:
		stats.TopEarnerID = shared.MemberID(topID)
		stats.TopEarnerName = topName
	case IsNoRows(err):
		// Empty platform, no top earner.
	default:
		return leaderboard.Stats{}, fmt.Errorf("failed to query top earner: %w", err)
	}

	return stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshots
// ─────────────────────────────────────────────────────────────────────────────

// SaveSnapshot persists a snapshot with its entries as JSON.
func (r *LeaderboardRepository) SaveSnapshot(ctx context.Context, snapshot leaderboard.Snapshot) error {
	entries, err := snapshot.MarshalEntries()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO leaderboard_snapshots (id, metric, period, entries, taken_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.conn.Exec(ctx, query,
		snapshot.ID,
		string(snapshot.Metric),
		string(snapshot.Period),
		entries,
		snapshot.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save leaderboard snapshot: %w", err)
	}

	return nil
}

// GetLatestSnapshot returns the most recent snapshot for the board.
func (r *LeaderboardRepository) GetLatestSnapshot(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period) (leaderboard.Snapshot, error) {
	query := `
		SELECT id, metric, period, entries, taken_at
		FROM leaderboard_snapshots
		WHERE metric = $1 AND period = $2
		ORDER BY taken_at DESC
		LIMIT 1
	`

	snapshot, err := r.scanSnapshot(r.conn.QueryRow(ctx, query, string(metric), string(period)))
	if err != nil {
		if IsNoRows(err) {
			return leaderboard.Snapshot{}, shared.ErrSnapshotNotFound
		}
		return leaderboard.Snapshot{}, err
	}

	return snapshot, nil
}

// ListSnapshots returns snapshot history, newest first.
func (r *LeaderboardRepository) ListSnapshots(ctx context.Context, metric leaderboard.Metric, period leaderboard.Period, limit int) ([]leaderboard.Snapshot, error) {
	query := `
		SELECT id, metric, period, entries, taken_at
		FROM leaderboard_snapshots
		WHERE metric = $1 AND period = $2
		ORDER BY taken_at DESC
		LIMIT $3
	`

	rows, err := r.conn.Query(ctx, query, string(metric), string(period), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []leaderboard.Snapshot
	for rows.Next() {
		s, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// DeleteSnapshotsBefore deletes snapshots taken before the threshold.
func (r *LeaderboardRepository) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM leaderboard_snapshots WHERE taken_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *LeaderboardRepository) scanSnapshot(row scanRow) (leaderboard.Snapshot, error) {
	var (
		s       leaderboard.Snapshot
		metric  string
		period  string
		entries []byte
	)

	if err := row.Scan(&s.ID, &metric, &period, &entries, &s.TakenAt); err != nil {
		if IsNoRows(err) {
			return leaderboard.Snapshot{}, err
		}
		return leaderboard.Snapshot{}, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	s.Metric = leaderboard.Metric(metric)
	s.Period = leaderboard.Period(period)

	decoded, err := leaderboard.UnmarshalEntries(entries)
	if err != nil {
		return leaderboard.Snapshot{}, err
	}
	s.Entries = decoded

	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Score sources
// ─────────────────────────────────────────────────────────────────────────────

// scoreSource returns the per-member score subquery for a metric and
// period. All-time scores come from member_stats; windowed scores are
// aggregated from the activity logs over the period.
func scoreSource(metric leaderboard.Metric, period leaderboard.Period) (string, []interface{}, error) {
	window, windowed := period.Window()

	switch metric {
	case leaderboard.MetricEarnings:
		if !windowed {
			return `SELECT member_id, total_earned AS score FROM member_stats`, nil, nil
		}
		return `
			SELECT member_id, SUM(amount) AS score
			FROM commission_log
			WHERE occurred_at >= $1
			GROUP BY member_id
		`, []interface{}{window.From}, nil

	case leaderboard.MetricRecruiters:
		if !windowed {
			return `SELECT member_id, direct_recruits AS score FROM member_stats`, nil, nil
		}
		return `
			SELECT recruiter_id AS member_id, COUNT(*) AS score
			FROM recruitment_log
			WHERE depth = 1 AND occurred_at >= $1
			GROUP BY recruiter_id
		`, []interface{}{window.From}, nil

	case leaderboard.MetricNetworkGrowth:
		if !windowed {
			return `SELECT member_id, network_size AS score FROM member_stats`, nil, nil
		}
		return `
			SELECT recruiter_id AS member_id, COUNT(*) AS score
			FROM recruitment_log
			WHERE occurred_at >= $1
			GROUP BY recruiter_id
		`, []interface{}{window.From}, nil

	default:
		return "", nil, shared.NewDomainError("leaderboard", "GetBoard", shared.ErrInvalidInput, "unknown leaderboard metric")
	}
}
