package member

import (
	"context"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Repository определяет контракт хранилища участников.
// Реализация живёт в infrastructure/persistence.
type Repository interface {
	// FindByID находит участника по внутреннему ID.
	FindByID(ctx context.Context, id shared.MemberID) (*Member, error)

	// FindByWallet находит участника по адресу кошелька.
	FindByWallet(ctx context.Context, wallet shared.WalletAddress) (*Member, error)

	// List возвращает участников по заданным опциям.
	List(ctx context.Context, opts ListOptions) ([]*Member, error)

	// Count возвращает количество участников по заданным опциям.
	Count(ctx context.Context, opts ListOptions) (int, error)

	// Exists проверяет существование участника.
	Exists(ctx context.Context, id shared.MemberID) (bool, error)
}

// StatsProvider - источник показателей участника.
// Движок прогрессии никогда не пишет в Stats, только читает.
type StatsProvider interface {
	// GetStats возвращает текущие показатели участника.
	// Возвращает shared.ErrNotFound, если участник не существует.
	GetStats(ctx context.Context, id shared.MemberID) (Stats, error)
}

// ListOptions задаёт фильтры и пагинацию для выборки участников.
type ListOptions struct {
	Status     Status
	ReferrerID shared.MemberID
	Pagination shared.Pagination
}

// DefaultListOptions возвращает опции по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Pagination: shared.DefaultPagination(),
	}
}

// WithStatus фильтрует по статусу.
func (o ListOptions) WithStatus(s Status) ListOptions {
	o.Status = s
	return o
}

// WithReferrer фильтрует по рефереру (первая линия).
func (o ListOptions) WithReferrer(id shared.MemberID) ListOptions {
	o.ReferrerID = id
	return o
}

// WithPagination задаёт пагинацию.
func (o ListOptions) WithPagination(p shared.Pagination) ListOptions {
	o.Pagination = p
	return o
}
