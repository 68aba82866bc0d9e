// Package eventhandler содержит обработчики доменных событий.
// Эти обработчики реализуют event-driven архитектуру и связывают
// различные части системы через асинхронные события.
//
// Обработчики - "реактивная" часть движка: они реагируют на изменения
// показателей и запускают побочные эффекты вроде пересчёта рангов
// или сброса кешей рейтингов.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/application/saga"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STATS UPDATED HANDLER
// Обрабатывает событие обновления показателей участника.
// Это главный вход реактивной части движка: каждая комиссия и каждый
// новый реферал приводят сюда, и отсюда запускается полный проход
// оценки рангов и достижений.
// ═══════════════════════════════════════════════════════════════════════════

// OnStatsUpdatedHandler запускает проход оценки при изменении показателей.
type OnStatsUpdatedHandler struct {
	flow   *saga.ProgressionFlowSaga
	logger *slog.Logger
}

// NewOnStatsUpdatedHandler создаёт новый обработчик.
func NewOnStatsUpdatedHandler(flow *saga.ProgressionFlowSaga, logger *slog.Logger) *OnStatsUpdatedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnStatsUpdatedHandler{
		flow:   flow,
		logger: logger.With("handler", "on_stats_updated"),
	}
}

// Handle обрабатывает событие обновления показателей.
// Сигнатура совместима с shared.EventHandler.
func (h *OnStatsUpdatedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	statsEvent, ok := event.(shared.StatsUpdatedEvent)
	if !ok {
		h.logger.Warn("received non-StatsUpdatedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("processing stats updated event",
		"member_id", statsEvent.MemberID,
		"direct_recruits", statsEvent.DirectRecruits,
		"network_size", statsEvent.NetworkSize,
		"source", statsEvent.Source,
	)

	result, err := h.flow.Execute(ctx, saga.ProgressionInput{
		MemberID: statsEvent.MemberID,
		Trigger:  triggerFromSource(statsEvent.Source),
	})
	if err != nil {
		h.logger.Error("progression flow failed",
			"member_id", statsEvent.MemberID,
			"error", err,
		)
		return err
	}

	if result.HasProgress() {
		h.logger.Info("progression pass produced changes",
			"member_id", statsEvent.MemberID,
			"rank_changed", result.RankChanged,
			"new_rank", result.NewRankName,
			"unlocked", len(result.UnlockedAchievements),
		)
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnStatsUpdatedHandler) EventType() shared.EventType {
	return shared.EventStatsUpdated
}

// triggerFromSource сопоставляет источник события триггеру прохода.
func triggerFromSource(source string) command.Trigger {
	switch source {
	case "commission":
		return command.TriggerCommission
	case "recruitment":
		return command.TriggerRecruitment
	default:
		return command.TriggerScheduled
	}
}
