// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/rank"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANK PROGRESS QUERY
// Возвращает текущий ранг участника и прогресс к следующему уровню
// по каждому из трёх показателей. Чистое чтение: состояние не меняется,
// даже если показатели уже тянут на более высокий ранг.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankProgressQuery содержит параметры запроса прогресса по рангу.
type GetRankProgressQuery struct {
	// MemberID - участник, чей прогресс запрашивается.
	MemberID string
}

// Validate проверяет корректность параметров запроса.
func (q GetRankProgressQuery) Validate() error {
	if _, err := shared.NewMemberID(q.MemberID); err != nil {
		return fmt.Errorf("get_rank_progress: invalid member_id: %w", err)
	}
	return nil
}

// MetricProgressDTO - прогресс по одному показателю.
type MetricProgressDTO struct {
	// Current - текущее значение показателя.
	Current string `json:"current"`

	// Required - порог следующего уровня (пусто на максимальном ранге).
	Required string `json:"required,omitempty"`

	// Percent - min(100, floor(current/required * 100)).
	Percent int `json:"percent"`
}

// RankTierDTO - описание уровня ранга.
type RankTierDTO struct {
	// ID - идентификатор уровня.
	ID string `json:"id"`

	// Name - название уровня.
	Name string `json:"name"`

	// BadgeIcon и BadgeColor - оформление бейджа.
	BadgeIcon  string `json:"badge_icon,omitempty"`
	BadgeColor string `json:"badge_color,omitempty"`

	// Order - порядковый номер уровня в каталоге.
	Order int `json:"order"`

	// Perks - привилегии уровня.
	Perks rank.Perks `json:"perks"`
}

// GetRankProgressResult содержит результат запроса прогресса.
type GetRankProgressResult struct {
	// MemberID - участник.
	MemberID string `json:"member_id"`

	// CurrentRank - текущий уровень.
	CurrentRank RankTierDTO `json:"current_rank"`

	// NextRank - следующий уровень; nil на вершине каталога.
	NextRank *RankTierDTO `json:"next_rank,omitempty"`

	// AtMaxRank - участник на максимальном ранге.
	AtMaxRank bool `json:"at_max_rank"`

	// ManualOverride - ранг закреплён администратором.
	ManualOverride bool `json:"manual_override"`

	// DirectRecruits, NetworkSize, TotalEarned - прогресс по показателям.
	DirectRecruits MetricProgressDTO `json:"direct_recruits"`
	NetworkSize    MetricProgressDTO `json:"network_size"`
	TotalEarned    MetricProgressDTO `json:"total_earned"`

	// OverallPercent - floor от среднего трёх процентов.
	OverallPercent int `json:"overall_percent"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetRankProgressHandler обрабатывает запросы прогресса по рангу.
type GetRankProgressHandler struct {
	stats       member.StatsProvider
	rankCatalog rank.CatalogRepository
	rankStates  rank.StateRepository
}

// NewGetRankProgressHandler создаёт новый обработчик.
func NewGetRankProgressHandler(
	stats member.StatsProvider,
	rankCatalog rank.CatalogRepository,
	rankStates rank.StateRepository,
) *GetRankProgressHandler {
	return &GetRankProgressHandler{
		stats:       stats,
		rankCatalog: rankCatalog,
		rankStates:  rankStates,
	}
}

// Handle выполняет запрос прогресса по рангу.
func (h *GetRankProgressHandler) Handle(ctx context.Context, query GetRankProgressQuery) (*GetRankProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(query.MemberID)

	stats, err := h.stats.GetStats(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get_rank_progress: stats lookup: %w", err)
	}

	catalog, err := h.rankCatalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_rank_progress: rank catalog: %w", err)
	}

	state, err := h.rankStates.Get(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get_rank_progress: rank state: %w", err)
	}

	// Для участника без сохранённого ранга прогресс считается от базового
	// уровня каталога; запись при этом не создаётся.
	current, err := h.resolveCurrentTier(state, catalog)
	if err != nil {
		return nil, err
	}

	progress := rank.ComputeProgress(current, catalog, stats)

	return h.buildResult(query.MemberID, state, progress), nil
}

// resolveCurrentTier определяет текущий уровень участника.
func (h *GetRankProgressHandler) resolveCurrentTier(state rank.State, catalog rank.Catalog) (rank.Tier, error) {
	if !state.HasRank() {
		lowest, ok := catalog.Lowest()
		if !ok {
			return rank.Tier{}, fmt.Errorf("get_rank_progress: %w", shared.ErrEmptyCatalog)
		}
		return lowest, nil
	}

	tier, ok := catalog.ByID(state.CurrentRankID)
	if !ok {
		// Сохранённый ранг исчез из каталога. Показываем прогресс от
		// базового уровня; следующий проход оценки исправит состояние.
		lowest, lok := catalog.Lowest()
		if !lok {
			return rank.Tier{}, fmt.Errorf("get_rank_progress: %w", shared.ErrEmptyCatalog)
		}
		return lowest, nil
	}
	return tier, nil
}

// buildResult формирует итоговый результат.
func (h *GetRankProgressHandler) buildResult(memberID string, state rank.State, p rank.Progress) *GetRankProgressResult {
	result := &GetRankProgressResult{
		MemberID:       memberID,
		CurrentRank:    toTierDTO(p.CurrentTier),
		AtMaxRank:      p.AtMaxRank,
		ManualOverride: state.ManualOverride,
		DirectRecruits: MetricProgressDTO{
			Current: fmt.Sprintf("%d", p.DirectRecruits.Current),
			Percent: p.DirectRecruits.Percent.Int(),
		},
		NetworkSize: MetricProgressDTO{
			Current: fmt.Sprintf("%d", p.NetworkSize.Current),
			Percent: p.NetworkSize.Percent.Int(),
		},
		TotalEarned: MetricProgressDTO{
			Current: p.TotalEarned.Current.String(),
			Percent: p.TotalEarned.Percent.Int(),
		},
		OverallPercent: p.Overall.Int(),
		GeneratedAt:    time.Now().UTC(),
	}

	if p.NextTier != nil {
		next := toTierDTO(*p.NextTier)
		result.NextRank = &next
		result.DirectRecruits.Required = fmt.Sprintf("%d", p.DirectRecruits.Required)
		result.NetworkSize.Required = fmt.Sprintf("%d", p.NetworkSize.Required)
		result.TotalEarned.Required = p.TotalEarned.Required.String()
	}

	return result
}

// toTierDTO конвертирует доменную сущность в DTO.
func toTierDTO(t rank.Tier) RankTierDTO {
	return RankTierDTO{
		ID:         t.ID.String(),
		Name:       t.Name,
		BadgeIcon:  t.BadgeIcon,
		BadgeColor: t.BadgeColor,
		Order:      t.Order,
		Perks:      t.Perks,
	}
}
