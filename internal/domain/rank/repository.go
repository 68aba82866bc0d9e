package rank

import (
	"context"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// CatalogRepository - источник каталога рангов. Каталог читается заново
// на каждую оценку; кэширование - забота реализации.
type CatalogRepository interface {
	// GetAll возвращает полный каталог уровней.
	GetAll(ctx context.Context) (Catalog, error)

	// GetByID находит уровень по идентификатору.
	// Возвращает shared.ErrNotFound, если уровень не существует.
	GetByID(ctx context.Context, id shared.RankTierID) (Tier, error)
}

// StateRepository - хранилище состояний рангов участников.
type StateRepository interface {
	// Get возвращает состояние ранга участника. Для участника без
	// записи возвращается начальное состояние без ошибки.
	Get(ctx context.Context, memberID shared.MemberID) (State, error)

	// Save сохраняет состояние идемпотентным upsert-ом по member_id.
	// Повторная запись того же состояния не является ошибкой.
	// Используется ручным закреплением ранга: запись администратора
	// всегда побеждает.
	Save(ctx context.Context, state State) error

	// SaveIfCurrent записывает next, только если сохранённое состояние
	// по-прежнему равно prev (compare-and-swap по паре ранг/закрепление).
	// Возвращает false без ошибки, когда запись проиграла гонку:
	// параллельный проход или закрепление администратора успели записать
	// своё состояние первыми, и их уведомление - единственное верное.
	SaveIfCurrent(ctx context.Context, next State, prev State) (bool, error)
}
