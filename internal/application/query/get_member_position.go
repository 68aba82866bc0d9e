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
// GET MEMBER POSITION QUERY
// Возвращает позицию одного участника в рейтинге по счётной формуле
// count(строго больше) + 1. Участники с равным значением делят позицию,
// в отличие от позиций полного списка.
// ══════════════════════════════════════════════════════════════════════════════

// GetMemberPositionQuery содержит параметры запроса позиции.
type GetMemberPositionQuery struct {
	// MemberID - участник.
	MemberID string

	// Metric - показатель рейтинга.
	Metric string

	// Period - временное окно.
	Period string
}

// Validate проверяет корректность параметров запроса.
func (q GetMemberPositionQuery) Validate() error {
	if _, err := shared.NewMemberID(q.MemberID); err != nil {
		return fmt.Errorf("get_member_position: invalid member_id: %w", err)
	}
	if !leaderboard.Metric(q.Metric).IsValid() {
		return fmt.Errorf("get_member_position: %w: metric %q", shared.ErrInvalidInput, q.Metric)
	}
	if !leaderboard.Period(q.Period).IsValid() {
		return fmt.Errorf("get_member_position: %w: period %q", shared.ErrInvalidInput, q.Period)
	}
	return nil
}

// GetMemberPositionResult содержит результат запроса позиции.
type GetMemberPositionResult struct {
	// MemberID - участник.
	MemberID string `json:"member_id"`

	// Metric и Period - параметры рейтинга.
	Metric string `json:"metric"`
	Period string `json:"period"`

	// Position - позиция по счётной формуле.
	Position int `json:"position"`

	// Score - значение метрики участника.
	Score string `json:"score"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetMemberPositionHandler обрабатывает запросы позиции участника.
type GetMemberPositionHandler struct {
	boards leaderboard.Repository
	cache  leaderboard.Cache
	log    *logger.Logger
}

// NewGetMemberPositionHandler создаёт новый обработчик.
func NewGetMemberPositionHandler(
	boards leaderboard.Repository,
	cache leaderboard.Cache,
	log *logger.Logger,
) *GetMemberPositionHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetMemberPositionHandler{
		boards: boards,
		cache:  cache,
		log:    log.With(logger.Component("get_member_position")),
	}
}

// Handle выполняет запрос позиции.
func (h *GetMemberPositionHandler) Handle(ctx context.Context, query GetMemberPositionQuery) (*GetMemberPositionResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(query.MemberID)
	metric := leaderboard.Metric(query.Metric)
	period := leaderboard.Period(query.Period)

	score, err := h.boards.GetMemberScore(ctx, memberID, metric, period)
	if err != nil {
		return nil, fmt.Errorf("get_member_position: score lookup: %w", err)
	}

	position, err := h.resolvePosition(ctx, memberID, metric, period)
	if err != nil {
		return nil, fmt.Errorf("get_member_position: %w", err)
	}

	return &GetMemberPositionResult{
		MemberID:    query.MemberID,
		Metric:      query.Metric,
		Period:      query.Period,
		Position:    position,
		Score:       score.String(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// resolvePosition берёт позицию из кэша, при промахе считает по хранилищу.
func (h *GetMemberPositionHandler) resolvePosition(ctx context.Context, memberID shared.MemberID, metric leaderboard.Metric, period leaderboard.Period) (int, error) {
	if h.cache != nil {
		position, err := h.cache.GetCachedPosition(ctx, memberID, metric, period)
		if err == nil {
			return position, nil
		}
		if !shared.IsNotFound(err) {
			h.log.Warn("position cache read failed",
				logger.MemberID(memberID.String()),
				logger.Err(err))
		}
	}
	return h.boards.GetMemberPosition(ctx, memberID, metric, period)
}
