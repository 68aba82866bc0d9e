package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает топ-N участников по метрике и периоду. Сначала пробует кэш
// (Redis sorted set), при промахе читает из хранилища и прогревает кэш.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

// GetLeaderboardQuery содержит параметры запроса рейтинга.
type GetLeaderboardQuery struct {
	// Metric - показатель рейтинга: earnings, recruiters, network_growth.
	Metric string

	// Period - временное окно: all_time, weekly, monthly.
	Period string

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if !leaderboard.Metric(q.Metric).IsValid() {
		return fmt.Errorf("get_leaderboard: %w: metric %q", shared.ErrInvalidInput, q.Metric)
	}
	if !leaderboard.Period(q.Period).IsValid() {
		return fmt.Errorf("get_leaderboard: %w: period %q", shared.ErrInvalidInput, q.Period)
	}
	if q.Limit < 0 {
		return fmt.Errorf("get_leaderboard: %w: limit cannot be negative", shared.ErrNegativeValue)
	}
	if q.Limit == 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
	return nil
}

// LeaderboardEntryDTO - DTO для строки рейтинга.
type LeaderboardEntryDTO struct {
	// Position - позиция в списке (начиная с 1, при равных значениях
	// позиции различаются).
	Position int `json:"position"`

	// MemberID - участник.
	MemberID string `json:"member_id"`

	// Username - отображаемое имя.
	Username string `json:"username"`

	// Wallet - сокращённый адрес кошелька.
	Wallet string `json:"wallet,omitempty"`

	// RankName - текущий ранг участника.
	RankName string `json:"rank_name,omitempty"`

	// Score - значение метрики в строковом виде (точность decimal).
	Score string `json:"score"`
}

// GetLeaderboardResult содержит результат запроса рейтинга.
type GetLeaderboardResult struct {
	// Metric и Period - параметры рейтинга.
	Metric string `json:"metric"`
	Period string `json:"period"`

	// Entries - строки рейтинга.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// FromCache - результат отдан из кэша.
	FromCache bool `json:"from_cache"`

	// GeneratedAt - время построения рейтинга.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запросы рейтинга.
type GetLeaderboardHandler struct {
	boards leaderboard.Repository
	cache  leaderboard.Cache
	log    *logger.Logger
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса рейтинга.
func NewGetLeaderboardHandler(
	boards leaderboard.Repository,
	cache leaderboard.Cache,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetLeaderboardHandler{
		boards: boards,
		cache:  cache,
		log:    log.With(logger.Component("get_leaderboard")),
	}
}

// Handle выполняет запрос рейтинга.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	metric := leaderboard.Metric(query.Metric)
	period := leaderboard.Period(query.Period)

	// Попытка получить из кэша
	if h.cache != nil {
		board, err := h.cache.GetCachedBoard(ctx, metric, period, query.Limit)
		if err == nil && board.Size() > 0 {
			return h.buildResult(board, query.Limit, true), nil
		}
		if err != nil && !shared.IsNotFound(err) {
			// Кэш недоступен. Читаем из хранилища.
			h.log.Warn("leaderboard cache read failed",
				logger.String("metric", query.Metric),
				logger.String("period", query.Period),
				logger.Err(err))
		}
	}

	board, err := h.boards.GetBoard(ctx, metric, period, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	// Прогреваем кэш; промах не критичен
	if h.cache != nil {
		if err := h.cache.StoreBoard(ctx, board); err != nil {
			h.log.Warn("leaderboard cache store failed",
				logger.String("metric", query.Metric),
				logger.Err(err))
		}
	}

	return h.buildResult(board, query.Limit, false), nil
}

// buildResult формирует итоговый результат.
func (h *GetLeaderboardHandler) buildResult(board leaderboard.Board, limit int, fromCache bool) *GetLeaderboardResult {
	top := board.Top(limit)
	dtos := make([]LeaderboardEntryDTO, len(top))
	for i, e := range top {
		dtos[i] = LeaderboardEntryDTO{
			Position: e.Position,
			MemberID: e.MemberID.String(),
			Username: e.Username,
			Wallet:   e.Wallet,
			RankName: e.RankName,
			Score:    e.Score.String(),
		}
	}

	return &GetLeaderboardResult{
		Metric:      board.Metric.String(),
		Period:      board.Period.String(),
		Entries:     dtos,
		FromCache:   fromCache,
		GeneratedAt: board.GeneratedAt,
	}
}
