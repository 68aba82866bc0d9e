package eventhandler

import (
	"log/slog"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Обрабатывает событие разблокировки достижения. Уведомление участнику
// уже поставлено в outbox; здесь событие фиксируется для аналитики.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementUnlockedHandler фиксирует разблокировки для аналитики.
type OnAchievementUnlockedHandler struct {
	logger *slog.Logger
}

// NewOnAchievementUnlockedHandler создаёт новый обработчик.
func NewOnAchievementUnlockedHandler(logger *slog.Logger) *OnAchievementUnlockedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnAchievementUnlockedHandler{
		logger: logger.With("handler", "on_achievement_unlocked"),
	}
}

// Handle обрабатывает событие разблокировки достижения.
// Сигнатура совместима с shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	achEvent, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		h.logger.Warn("received non-AchievementUnlockedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("achievement unlocked",
		"member_id", achEvent.MemberID,
		"achievement_id", achEvent.AchievementID,
		"name", achEvent.Name,
		"category", achEvent.Category,
		"points", achEvent.Points,
	)

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnAchievementUnlockedHandler) EventType() shared.EventType {
	return shared.EventAchievementUnlocked
}
