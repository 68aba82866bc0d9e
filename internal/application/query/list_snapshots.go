package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST SNAPSHOTS QUERY
// История снимков рейтинга по метрике и периоду, новые первыми. Снимки
// пишет фоновая пересборка; здесь только чтение.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultSnapshotLimit = 10
	maxSnapshotLimit     = 50
)

// ListSnapshotsQuery содержит параметры запроса истории снимков.
type ListSnapshotsQuery struct {
	// Metric - показатель рейтинга: earnings, recruiters, network_growth.
	Metric string

	// Period - временное окно: all_time, weekly, monthly.
	Period string

	// Limit - количество снимков (по умолчанию 10, максимум 50).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *ListSnapshotsQuery) Validate() error {
	if !leaderboard.Metric(q.Metric).IsValid() {
		return fmt.Errorf("list_snapshots: %w: metric %q", shared.ErrInvalidInput, q.Metric)
	}
	if !leaderboard.Period(q.Period).IsValid() {
		return fmt.Errorf("list_snapshots: %w: period %q", shared.ErrInvalidInput, q.Period)
	}
	if q.Limit < 0 {
		return fmt.Errorf("list_snapshots: %w: limit cannot be negative", shared.ErrNegativeValue)
	}
	if q.Limit == 0 {
		q.Limit = defaultSnapshotLimit
	}
	if q.Limit > maxSnapshotLimit {
		q.Limit = maxSnapshotLimit
	}
	return nil
}

// SnapshotDTO - DTO снимка рейтинга.
type SnapshotDTO struct {
	ID     string `json:"id"`
	Metric string `json:"metric"`
	Period string `json:"period"`

	// Entries - строки рейтинга на момент снятия.
	Entries []LeaderboardEntryDTO `json:"entries"`

	TakenAt time.Time `json:"taken_at"`
}

// ListSnapshotsResult содержит результат запроса истории.
type ListSnapshotsResult struct {
	Snapshots []SnapshotDTO `json:"snapshots"`
}

// ListSnapshotsHandler обрабатывает запросы истории снимков.
type ListSnapshotsHandler struct {
	snapshots leaderboard.SnapshotRepository
}

// NewListSnapshotsHandler создаёт новый обработчик.
func NewListSnapshotsHandler(snapshots leaderboard.SnapshotRepository) *ListSnapshotsHandler {
	return &ListSnapshotsHandler{snapshots: snapshots}
}

// Handle выполняет запрос истории снимков.
func (h *ListSnapshotsHandler) Handle(ctx context.Context, query ListSnapshotsQuery) (*ListSnapshotsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	items, err := h.snapshots.ListSnapshots(ctx,
		leaderboard.Metric(query.Metric), leaderboard.Period(query.Period), query.Limit)
	if err != nil {
		return nil, fmt.Errorf("list_snapshots: list: %w", err)
	}

	dtos := make([]SnapshotDTO, len(items))
	for i, s := range items {
		entries := make([]LeaderboardEntryDTO, len(s.Entries))
		for j, e := range s.Entries {
			entries[j] = LeaderboardEntryDTO{
				Position: e.Position,
				MemberID: e.MemberID.String(),
				Username: e.Username,
				Wallet:   e.Wallet,
				RankName: e.RankName,
				Score:    e.Score.String(),
			}
		}
		dtos[i] = SnapshotDTO{
			ID:      s.ID,
			Metric:  s.Metric.String(),
			Period:  s.Period.String(),
			Entries: entries,
			TakenAt: s.TakenAt,
		}
	}

	return &ListSnapshotsResult{Snapshots: dtos}, nil
}
