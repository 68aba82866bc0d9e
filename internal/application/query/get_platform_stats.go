package query

import (
	"context"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PLATFORM STATS QUERY
// Сводные показатели платформы для админ-панели: количество участников,
// суммарный заработок сети и лидер по заработку.
// ══════════════════════════════════════════════════════════════════════════════

// GetPlatformStatsQuery содержит параметры запроса (их нет, тип оставлен
// для единообразия сигнатур обработчиков).
type GetPlatformStatsQuery struct{}

// GetPlatformStatsResult содержит сводные показатели платформы.
type GetPlatformStatsResult struct {
	// TotalMembers - количество активных участников.
	TotalMembers int `json:"total_members"`

	// TotalEarnings - суммарный заработок сети.
	TotalEarnings string `json:"total_earnings"`

	// TopEarnerID и TopEarnerName - лидер по заработку.
	TopEarnerID   string `json:"top_earner_id,omitempty"`
	TopEarnerName string `json:"top_earner_name,omitempty"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetPlatformStatsHandler обрабатывает запросы сводных показателей.
type GetPlatformStatsHandler struct {
	boards leaderboard.Repository
}

// NewGetPlatformStatsHandler создаёт новый обработчик.
func NewGetPlatformStatsHandler(boards leaderboard.Repository) *GetPlatformStatsHandler {
	return &GetPlatformStatsHandler{boards: boards}
}

// Handle выполняет запрос сводных показателей.
func (h *GetPlatformStatsHandler) Handle(ctx context.Context, _ GetPlatformStatsQuery) (*GetPlatformStatsResult, error) {
	stats, err := h.boards.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_platform_stats: %w", err)
	}

	return &GetPlatformStatsResult{
		TotalMembers:  stats.TotalMembers,
		TotalEarnings: stats.TotalEarnings.String(),
		TopEarnerID:   stats.TopEarnerID.String(),
		TopEarnerName: stats.TopEarnerName,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}
