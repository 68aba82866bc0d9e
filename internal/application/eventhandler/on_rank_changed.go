package eventhandler

import (
	"context"
	"log/slog"

	"github.com/refnet-platform/progression-engine/internal/domain/leaderboard"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON RANK CHANGED HANDLER
// Обрабатывает событие смены ранга участника. Само уведомление уже
// поставлено в outbox транзакцией прохода; здесь остаются вторичные
// эффекты: сброс кеша рейтингов, где отображается название ранга.
// ═══════════════════════════════════════════════════════════════════════════

// OnRankChangedHandler обрабатывает событие смены ранга.
type OnRankChangedHandler struct {
	leaderboardCache leaderboard.Cache
	logger           *slog.Logger
}

// NewOnRankChangedHandler создаёт новый обработчик.
func NewOnRankChangedHandler(leaderboardCache leaderboard.Cache, logger *slog.Logger) *OnRankChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnRankChangedHandler{
		leaderboardCache: leaderboardCache,
		logger:           logger.With("handler", "on_rank_changed"),
	}
}

// Handle обрабатывает событие смены ранга.
// Сигнатура совместима с shared.EventHandler.
func (h *OnRankChangedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	rankEvent, ok := event.(shared.RankChangedEvent)
	if !ok {
		h.logger.Warn("received non-RankChangedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("processing rank changed event",
		"member_id", rankEvent.MemberID,
		"old_rank_id", rankEvent.OldRankID,
		"new_rank_id", rankEvent.NewRankID,
		"new_rank_name", rankEvent.NewRankName,
	)

	// Кешированные рейтинги несут старое название ранга участника.
	if h.leaderboardCache == nil {
		return nil
	}
	for _, metric := range []leaderboard.Metric{
		leaderboard.MetricEarnings,
		leaderboard.MetricRecruiters,
		leaderboard.MetricNetworkGrowth,
	} {
		for _, period := range []leaderboard.Period{
			leaderboard.PeriodAllTime,
			leaderboard.PeriodWeekly,
			leaderboard.PeriodMonthly,
		} {
			if err := h.leaderboardCache.Invalidate(ctx, metric, period); err != nil {
				h.logger.Warn("failed to invalidate leaderboard cache",
					"metric", metric.String(),
					"period", period.String(),
					"error", err,
				)
			}
		}
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnRankChangedHandler) EventType() shared.EventType {
	return shared.EventRankChanged
}
