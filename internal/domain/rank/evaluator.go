package rank

import (
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Result - итог автоматической оценки ранга.
type Result struct {
	// Tier - квалифицированный уровень.
	Tier Tier

	// Changed - true, если уровень отличается от текущего состояния.
	Changed bool

	// FirstAssignment - true при самом первом назначении ранга.
	// Первое назначение тихое: уведомление не отправляется.
	FirstAssignment bool

	// OverrideApplied - оценка пропущена из-за ручного закрепления.
	OverrideApplied bool

	// OverrideCleared - закрепление указывало на удалённый уровень и
	// будет снято при сохранении нового состояния.
	OverrideCleared bool
}

// Evaluator вычисляет квалифицированный ранг по показателям участника.
// Чистая доменная логика без побочных эффектов: сохранение состояния и
// уведомления - забота слоя приложения.
type Evaluator struct{}

// NewEvaluator создаёт оценщик рангов.
func NewEvaluator() Evaluator {
	return Evaluator{}
}

// Evaluate определяет квалифицированный уровень.
//
// Порядок:
//  1. Ручное закрепление с живой ссылкой на уровень возвращается как есть.
//     Закрепление на удалённый уровень игнорируется: пересчитываем заново
//     и помечаем закрепление к снятию.
//  2. Иначе уровни перебираются по убыванию Order; побеждает первый, у
//     которого выполнены все три порога одновременно.
//  3. Если не подошёл ни один уровень, участник получает базовый ранг.
func (e Evaluator) Evaluate(stats member.Stats, state State, catalog Catalog) (Result, error) {
	if catalog.IsEmpty() {
		return Result{}, shared.ErrEmptyCatalog
	}

	if state.ManualOverride && state.HasRank() {
		if tier, ok := catalog.ByID(state.CurrentRankID); ok {
			return Result{Tier: tier, OverrideApplied: true}, nil
		}
		// Stale override: the pinned tier no longer exists.
		return e.recompute(stats, state, catalog, true)
	}

	return e.recompute(stats, state, catalog, false)
}

func (e Evaluator) recompute(stats member.Stats, state State, catalog Catalog, overrideCleared bool) (Result, error) {
	qualified, ok := e.qualify(stats, catalog)
	if !ok {
		lowest, _ := catalog.Lowest()
		qualified = lowest
	}

	return Result{
		Tier:            qualified,
		Changed:         qualified.ID != state.CurrentRankID,
		FirstAssignment: !state.HasRank(),
		OverrideCleared: overrideCleared,
	}, nil
}

// qualify возвращает уровень с наибольшим Order, все пороги которого выполнены.
func (e Evaluator) qualify(stats member.Stats, catalog Catalog) (Tier, bool) {
	for _, tier := range catalog.SortedDesc() {
		if tier.Qualifies(stats) {
			return tier, true
		}
	}
	return Tier{}, false
}
