package leaderboard

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Repository - источник данных рейтингов над хранилищем участников.
type Repository interface {
	// GetBoard возвращает рейтинг по метрике и периоду, отсортированный
	// по убыванию значения, не более limit строк.
	GetBoard(ctx context.Context, metric Metric, period Period, limit int) (Board, error)

	// GetMemberScore возвращает значение метрики участника за период.
	GetMemberScore(ctx context.Context, memberID shared.MemberID, metric Metric, period Period) (decimal.Decimal, error)

	// GetMemberPosition возвращает позицию участника по счётной формуле
	// count(строго больше) + 1.
	GetMemberPosition(ctx context.Context, memberID shared.MemberID, metric Metric, period Period) (int, error)

	// GetStats возвращает сводные показатели платформы.
	GetStats(ctx context.Context) (Stats, error)
}

// SnapshotRepository - хранилище снимков рейтингов.
type SnapshotRepository interface {
	// SaveSnapshot сохраняет снимок.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// GetLatestSnapshot возвращает последний снимок по метрике и периоду.
	// Возвращает shared.ErrNotFound, если снимков ещё нет.
	GetLatestSnapshot(ctx context.Context, metric Metric, period Period) (Snapshot, error)

	// ListSnapshots возвращает историю снимков, новые первыми.
	ListSnapshots(ctx context.Context, metric Metric, period Period, limit int) ([]Snapshot, error)
}

// Cache - быстрый кэш рейтингов (Redis sorted sets). Источник истины -
// Repository; кэш перестраивается планировщиком и инвалидируется по TTL.
type Cache interface {
	// StoreBoard кладёт рейтинг в кэш.
	StoreBoard(ctx context.Context, board Board) error

	// GetCachedBoard возвращает рейтинг из кэша.
	// Возвращает shared.ErrNotFound при промахе.
	GetCachedBoard(ctx context.Context, metric Metric, period Period, limit int) (Board, error)

	// GetCachedPosition возвращает позицию из кэша по счётной формуле.
	GetCachedPosition(ctx context.Context, memberID shared.MemberID, metric Metric, period Period) (int, error)

	// Invalidate сбрасывает кэш метрики и периода.
	Invalidate(ctx context.Context, metric Metric, period Period) error
}
