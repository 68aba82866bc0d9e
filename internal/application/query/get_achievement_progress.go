package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/achievement"
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENT PROGRESS QUERY
// Возвращает прогресс участника по всем активным достижениям каталога,
// включая уже разблокированные. Чистое чтение: достижение с выполненными
// критериями здесь НЕ разблокируется, это делает только проход оценки.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementProgressQuery содержит параметры запроса.
type GetAchievementProgressQuery struct {
	// MemberID - участник, чей прогресс запрашивается.
	MemberID string

	// Category - фильтр по категории (пустая строка = все категории).
	Category string

	// OnlyLocked - показывать только ещё не разблокированные.
	OnlyLocked bool
}

// Validate проверяет корректность параметров запроса.
func (q GetAchievementProgressQuery) Validate() error {
	if _, err := shared.NewMemberID(q.MemberID); err != nil {
		return fmt.Errorf("get_achievement_progress: invalid member_id: %w", err)
	}
	if q.Category != "" && !achievement.Category(q.Category).IsValid() {
		return fmt.Errorf("get_achievement_progress: %w: unknown category %q", shared.ErrInvalidInput, q.Category)
	}
	return nil
}

// AchievementProgressDTO - прогресс по одному достижению.
type AchievementProgressDTO struct {
	// AchievementID - идентификатор достижения.
	AchievementID string `json:"achievement_id"`

	// Name, Description, Icon - данные каталога.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`

	// Category - категория достижения.
	Category string `json:"category"`

	// Points - очки за разблокировку.
	Points int `json:"points"`

	// Unlocked - достижение уже разблокировано.
	Unlocked bool `json:"unlocked"`

	// UnlockedAt - момент разблокировки (только для разблокированных).
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`

	// Percent - минимум прогресса по всем критериям достижения.
	Percent int `json:"percent"`
}

// GetAchievementProgressResult содержит результат запроса.
type GetAchievementProgressResult struct {
	// MemberID - участник.
	MemberID string `json:"member_id"`

	// Achievements - прогресс по каждому достижению.
	Achievements []AchievementProgressDTO `json:"achievements"`

	// UnlockedCount - количество разблокированных.
	UnlockedCount int `json:"unlocked_count"`

	// TotalCount - количество активных достижений в каталоге.
	TotalCount int `json:"total_count"`

	// TotalPoints - сумма очков за разблокированные достижения.
	TotalPoints int `json:"total_points"`

	// CompletionRate - процент разблокированных достижений.
	CompletionRate int `json:"completion_rate"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetAchievementProgressHandler обрабатывает запросы прогресса по достижениям.
type GetAchievementProgressHandler struct {
	stats   member.StatsProvider
	catalog achievement.CatalogRepository
	unlocks achievement.UnlockRepository

	eval achievement.Evaluator
}

// NewGetAchievementProgressHandler создаёт новый обработчик.
func NewGetAchievementProgressHandler(
	stats member.StatsProvider,
	catalog achievement.CatalogRepository,
	unlocks achievement.UnlockRepository,
) *GetAchievementProgressHandler {
	return &GetAchievementProgressHandler{
		stats:   stats,
		catalog: catalog,
		unlocks: unlocks,
		eval:    achievement.NewEvaluator(),
	}
}

// Handle выполняет запрос прогресса по достижениям.
func (h *GetAchievementProgressHandler) Handle(ctx context.Context, query GetAchievementProgressQuery) (*GetAchievementProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(query.MemberID)

	stats, err := h.stats.GetStats(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get_achievement_progress: stats lookup: %w", err)
	}

	catalog, err := h.catalog.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievement_progress: catalog: %w", err)
	}

	unlocks, err := h.unlocks.ListUnlocks(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get_achievement_progress: unlocks: %w", err)
	}

	entries := h.eval.ProgressForAll(stats, unlocks, catalog)
	summary := achievement.Summarize(unlocks, catalog)

	dtos := make([]AchievementProgressDTO, 0, len(entries))
	for _, entry := range entries {
		if query.Category != "" && string(entry.Achievement.Category) != query.Category {
			continue
		}
		if query.OnlyLocked && entry.Unlocked {
			continue
		}
		dtos = append(dtos, toProgressDTO(entry))
	}

	return &GetAchievementProgressResult{
		MemberID:       query.MemberID,
		Achievements:   dtos,
		UnlockedCount:  summary.UnlockedCount,
		TotalCount:     summary.TotalCount,
		TotalPoints:    summary.TotalPoints,
		CompletionRate: summary.CompletionRate.Int(),
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

// toProgressDTO конвертирует доменную запись прогресса в DTO.
func toProgressDTO(e achievement.ProgressEntry) AchievementProgressDTO {
	dto := AchievementProgressDTO{
		AchievementID: e.Achievement.ID.String(),
		Name:          e.Achievement.Name,
		Description:   e.Achievement.Description,
		Icon:          e.Achievement.Icon,
		Category:      string(e.Achievement.Category),
		Points:        e.Achievement.Points,
		Unlocked:      e.Unlocked,
		Percent:       e.Progress.Int(),
	}
	if e.UnlockedAt != nil {
		at := e.UnlockedAt.UnlockedAt
		dto.UnlockedAt = &at
	}
	return dto
}
