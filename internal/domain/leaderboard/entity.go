// Package leaderboard содержит доменную модель рейтингов: метрики, периоды
// и правила присвоения позиций.
package leaderboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRIC & PERIOD
// ══════════════════════════════════════════════════════════════════════════════

// Metric - показатель, по которому строится рейтинг.
type Metric string

const (
	// MetricEarnings - топ по заработку.
	MetricEarnings Metric = "earnings"
	// MetricRecruiters - топ по количеству прямых рефералов.
	MetricRecruiters Metric = "recruiters"
	// MetricNetworkGrowth - топ по росту сети за период.
	MetricNetworkGrowth Metric = "network_growth"
)

// IsValid проверяет, что метрика корректна.
func (m Metric) IsValid() bool {
	switch m {
	case MetricEarnings, MetricRecruiters, MetricNetworkGrowth:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление метрики.
func (m Metric) String() string {
	return string(m)
}

// Period - временное окно рейтинга.
type Period string

const (
	// PeriodAllTime - за всё время.
	PeriodAllTime Period = "all_time"
	// PeriodWeekly - за последние 7 дней.
	PeriodWeekly Period = "weekly"
	// PeriodMonthly - за последние 30 дней.
	PeriodMonthly Period = "monthly"
)

// IsValid проверяет, что период корректен.
func (p Period) IsValid() bool {
	switch p {
	case PeriodAllTime, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление периода.
func (p Period) String() string {
	return string(p)
}

// Window возвращает временное окно периода. Для all_time окно не
// ограничено и вторым значением возвращается false.
func (p Period) Window() (shared.TimeRange, bool) {
	switch p {
	case PeriodWeekly:
		return shared.LastNDays(7), true
	case PeriodMonthly:
		return shared.LastNDays(30), true
	default:
		return shared.TimeRange{}, false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRIES & BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка рейтинга.
type Entry struct {
	// Position - позиция в списке, начиная с 1.
	Position int

	// MemberID - участник.
	MemberID shared.MemberID

	// Username - отображаемое имя.
	Username string

	// Wallet - сокращённый адрес кошелька для публичного отображения.
	Wallet string

	// RankName - название текущего ранга участника.
	RankName string

	// Score - значение метрики (деньги или счётчик, единый decimal).
	Score decimal.Decimal
}

// Board - построенный рейтинг.
//
// Позиции присваиваются по порядку выборки: при равных значениях участники
// получают РАЗНЫЕ позиции ([50, 50, 30] -> [1, 2, 3]), вторичного ключа
// сортировки нет. Точечный запрос позиции считается иначе - как
// count(строго больше) + 1 - и при равенстве даёт ОДИНАКОВУЮ позицию.
// Это расхождение задокументировано и сохранено намеренно.
type Board struct {
	Metric      Metric
	Period      Period
	Entries     []Entry
	GeneratedAt time.Time
}

// NewBoard строит рейтинг из уже отсортированных по убыванию строк,
// присваивая позиции по порядку выборки.
func NewBoard(metric Metric, period Period, ordered []Entry) Board {
	entries := make([]Entry, len(ordered))
	copy(entries, ordered)
	for i := range entries {
		entries[i].Position = i + 1
	}
	return Board{
		Metric:      metric,
		Period:      period,
		Entries:     entries,
		GeneratedAt: time.Now(),
	}
}

// Size возвращает количество строк рейтинга.
func (b Board) Size() int {
	return len(b.Entries)
}

// Top возвращает первые n строк.
func (b Board) Top(n int) []Entry {
	if n <= 0 || len(b.Entries) == 0 {
		return nil
	}
	if n > len(b.Entries) {
		n = len(b.Entries)
	}
	return b.Entries[:n]
}

// EntryFor находит строку участника.
func (b Board) EntryFor(memberID shared.MemberID) (Entry, bool) {
	for _, e := range b.Entries {
		if e.MemberID == memberID {
			return e, true
		}
	}
	return Entry{}, false
}

// PositionFor вычисляет позицию по счётной формуле: количество строго
// больших значений плюс один. Участники с равным значением получают здесь
// одинаковый номер, в отличие от позиций списка.
func (b Board) PositionFor(score decimal.Decimal) int {
	greater := 0
	for _, e := range b.Entries {
		if e.Score.GreaterThan(score) {
			greater++
		}
	}
	return greater + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats - сводные показатели рейтинга.
type Stats struct {
	TotalMembers  int
	TotalEarnings shared.Money
	TopEarnerID   shared.MemberID
	TopEarnerName string
	GeneratedAt   time.Time
}
