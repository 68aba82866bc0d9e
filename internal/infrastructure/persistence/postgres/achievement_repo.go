// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.CatalogRepository and
// achievement.UnlockRepository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

var (
	_ achievement.CatalogRepository = (*AchievementRepository)(nil)
	_ achievement.UnlockRepository  = (*AchievementRepository)(nil)
)

const achievementColumns = `id, name, description, icon, category, points, criteria, active`

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// GetActive returns all active achievements. Criteria come back raw; the
// evaluator validates them per row so a malformed record only skips itself.
func (r *AchievementRepository) GetActive(ctx context.Context) ([]achievement.Achievement, error) {
	query := `
		SELECT ` + achievementColumns + `
		FROM achievements
		WHERE active
		ORDER BY category, points, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement catalog: %w", err)
	}
	defer rows.Close()

	var achievements []achievement.Achievement
	for rows.Next() {
		a, err := r.scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}

	return achievements, rows.Err()
}

// GetByID returns a single achievement.
func (r *AchievementRepository) GetByID(ctx context.Context, id shared.AchievementID) (achievement.Achievement, error) {
	query := `
		SELECT ` + achievementColumns + `
		FROM achievements
		WHERE id = $1
	`

	a, err := r.scanAchievement(r.conn.QueryRow(ctx, query, string(id)))
	if err != nil {
		if IsNoRows(err) {
			return achievement.Achievement{}, shared.ErrAchievementNotFound
		}
		return achievement.Achievement{}, err
	}

	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Unlocks
// ─────────────────────────────────────────────────────────────────────────────

// GetUnlockedIDs returns the set of achievements the member has unlocked.
func (r *AchievementRepository) GetUnlockedIDs(ctx context.Context, memberID shared.MemberID) (map[shared.AchievementID]bool, error) {
	query := `
		SELECT achievement_id
		FROM achievement_unlocks
		WHERE member_id = $1
	`

	rows, err := r.conn.Query(ctx, query, string(memberID))
	if err != nil {
		return nil, fmt.Errorf("failed to load unlocked achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[shared.AchievementID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unlock id: %w", err)
		}
		unlocked[shared.AchievementID(id)] = true
	}

	return unlocked, rows.Err()
}

// ListUnlocks returns the member's unlocks with metadata, newest first.
func (r *AchievementRepository) ListUnlocks(ctx context.Context, memberID shared.MemberID) ([]achievement.Unlock, error) {
	query := `
		SELECT member_id, achievement_id, unlocked_at, progress_at_unlock
		FROM achievement_unlocks
		WHERE member_id = $1
		ORDER BY unlocked_at DESC
	`

	rows, err := r.conn.Query(ctx, query, string(memberID))
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []achievement.Unlock
	for rows.Next() {
		var (
			u        achievement.Unlock
			mid      string
			aid      string
			progress int
		)
		if err := rows.Scan(&mid, &aid, &u.UnlockedAt, &progress); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		u.MemberID = shared.MemberID(mid)
		u.AchievementID = shared.AchievementID(aid)
		u.ProgressAtUnlock = shared.Percent(progress)
		unlocks = append(unlocks, u)
	}

	return unlocks, rows.Err()
}

// RecordUnlock inserts the unlock idempotently. The composite primary key
// (member_id, achievement_id) absorbs concurrent duplicates: with
// ON CONFLICT DO NOTHING exactly one of the racing evaluations affects a
// row and gets true, everyone else gets false and stays silent.
func (r *AchievementRepository) RecordUnlock(ctx context.Context, unlock achievement.Unlock) (bool, error) {
	query := `
		INSERT INTO achievement_unlocks (member_id, achievement_id, unlocked_at, progress_at_unlock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id, achievement_id) DO NOTHING
	`

	tag, err := r.conn.Exec(ctx, query,
		string(unlock.MemberID),
		string(unlock.AchievementID),
		unlock.UnlockedAt,
		int(unlock.ProgressAtUnlock),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record unlock: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *AchievementRepository) scanAchievement(row scanRow) (achievement.Achievement, error) {
	var (
		a        achievement.Achievement
		id       string
		category string
		criteria []byte
	)

	err := row.Scan(
		&id,
		&a.Name,
		&a.Description,
		&a.Icon,
		&category,
		&a.Points,
		&criteria,
		&a.Active,
	)
	if err != nil {
		if IsNoRows(err) {
			return achievement.Achievement{}, err
		}
		return achievement.Achievement{}, fmt.Errorf("failed to scan achievement: %w", err)
	}

	a.ID = shared.AchievementID(id)
	a.Category = achievement.Category(category)
	a.RawCriteria = json.RawMessage(criteria)

	return a, nil
}
