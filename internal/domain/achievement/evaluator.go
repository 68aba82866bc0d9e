package achievement

import (
	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// Candidate - достижение, прошедшее все критерии в этом проходе оценки.
type Candidate struct {
	Achievement Achievement
	Progress    shared.Percent // всегда 100 на момент квалификации
}

// Skipped - достижение, исключённое из прохода из-за битых критериев.
// Слой приложения пишет предупреждение в лог и продолжает.
type Skipped struct {
	AchievementID shared.AchievementID
	Name          string
	Reason        error
}

// EvaluationResult - итог прохода оценки достижений.
type EvaluationResult struct {
	// Candidates - достижения к разблокировке (ещё не записаны).
	Candidates []Candidate

	// Skipped - достижения с невалидными критериями.
	Skipped []Skipped
}

// Evaluator определяет, какие достижения разблокируются по текущим
// показателям. Чистая логика: запись Unlock-ов и уведомления - забота
// слоя приложения.
type Evaluator struct{}

// NewEvaluator создаёт оценщик достижений.
func NewEvaluator() Evaluator {
	return Evaluator{}
}

// Evaluate перебирает каталог и возвращает достижения, у которых выполнен
// каждый критерий. Уже разблокированные пропускаются: разблокировка
// монотонна и никогда не пересматривается. Достижение с невалидными
// критериями попадает в Skipped, не прерывая проход.
func (e Evaluator) Evaluate(stats member.Stats, unlocked map[shared.AchievementID]bool, catalog []Achievement) EvaluationResult {
	var result EvaluationResult

	for _, a := range catalog {
		if !a.Active || unlocked[a.ID] {
			continue
		}

		criteria, err := a.ParseCriteria()
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{
				AchievementID: a.ID,
				Name:          a.Name,
				Reason:        err,
			})
			continue
		}

		if criteria.AllSatisfied(stats) {
			result.Candidates = append(result.Candidates, Candidate{
				Achievement: a,
				Progress:    shared.MaxPercent,
			})
		}
	}

	return result
}

// ProgressEntry - прогресс по одному достижению для чистого чтения.
type ProgressEntry struct {
	Achievement Achievement
	Unlocked    bool
	UnlockedAt  *Unlock
	Progress    shared.Percent
}

// ProgressForAll вычисляет прогресс по ВСЕМ достижениям каталога, включая
// уже разблокированные, без какой-либо мутации состояния. Разблокированные
// всегда отчитываются как 100%. Достижения с битыми критериями
// пропускаются.
func (e Evaluator) ProgressForAll(stats member.Stats, unlocks []Unlock, catalog []Achievement) []ProgressEntry {
	byID := make(map[shared.AchievementID]Unlock, len(unlocks))
	for _, u := range unlocks {
		byID[u.AchievementID] = u
	}

	entries := make([]ProgressEntry, 0, len(catalog))
	for _, a := range catalog {
		if !a.Active {
			continue
		}

		if u, ok := byID[a.ID]; ok {
			unlock := u
			entries = append(entries, ProgressEntry{
				Achievement: a,
				Unlocked:    true,
				UnlockedAt:  &unlock,
				Progress:    shared.MaxPercent,
			})
			continue
		}

		criteria, err := a.ParseCriteria()
		if err != nil {
			continue
		}
		entries = append(entries, ProgressEntry{
			Achievement: a,
			Progress:    criteria.Progress(stats),
		})
	}
	return entries
}

// Summary - сводка достижений участника.
type Summary struct {
	UnlockedCount  int
	TotalCount     int
	TotalPoints    int
	CompletionRate shared.Percent
}

// Summarize строит сводку по каталогу и разблокировкам участника.
func Summarize(unlocks []Unlock, catalog []Achievement) Summary {
	unlocked := make(map[shared.AchievementID]bool, len(unlocks))
	for _, u := range unlocks {
		unlocked[u.AchievementID] = true
	}

	s := Summary{}
	for _, a := range catalog {
		if !a.Active {
			continue
		}
		s.TotalCount++
		if unlocked[a.ID] {
			s.UnlockedCount++
			s.TotalPoints += a.Points
		}
	}
	s.CompletionRate = shared.PercentOf(int64(s.UnlockedCount), int64(s.TotalCount))
	return s
}
