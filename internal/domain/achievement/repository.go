package achievement

import (
	"context"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// CatalogRepository - источник каталога достижений.
type CatalogRepository interface {
	// GetActive возвращает все активные достижения.
	GetActive(ctx context.Context) ([]Achievement, error)

	// GetByID находит достижение по идентификатору.
	// Возвращает shared.ErrNotFound, если достижение не существует.
	GetByID(ctx context.Context, id shared.AchievementID) (Achievement, error)
}

// UnlockRepository - хранилище разблокировок.
type UnlockRepository interface {
	// GetUnlockedIDs возвращает множество разблокированных достижений участника.
	GetUnlockedIDs(ctx context.Context, memberID shared.MemberID) (map[shared.AchievementID]bool, error)

	// ListUnlocks возвращает разблокировки участника с метаданными.
	ListUnlocks(ctx context.Context, memberID shared.MemberID) ([]Unlock, error)

	// RecordUnlock записывает разблокировку идемпотентно: уникальный
	// ключ (member_id, achievement_id) гасит конкурентные дубликаты.
	// Возвращает true, только если строка создана этим вызовом - ровно
	// один из конкурентных вызовов получает true и шлёт уведомление.
	RecordUnlock(ctx context.Context, unlock Unlock) (bool, error)
}
