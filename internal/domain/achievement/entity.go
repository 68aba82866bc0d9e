// Package achievement содержит доменную модель достижений: каталог с
// критериями разблокировки, записи о разблокировках и логику оценки.
package achievement

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRIC
// ══════════════════════════════════════════════════════════════════════════════

// Metric - закрытый набор показателей, по которым формулируются критерии.
// Неизвестные ключи отвергаются на границе, а не приводятся молча.
type Metric string

const (
	// MetricDirectRecruits - рефералы первой линии.
	MetricDirectRecruits Metric = "direct_recruits"
	// MetricNetworkSize - общий размер даунлайна.
	MetricNetworkSize Metric = "network_size"
	// MetricTotalEarned - суммарный заработок.
	MetricTotalEarned Metric = "total_earned"
)

// IsValid проверяет, что показатель из закрытого набора.
func (m Metric) IsValid() bool {
	switch m {
	case MetricDirectRecruits, MetricNetworkSize, MetricTotalEarned:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление показателя.
func (m Metric) String() string {
	return string(m)
}

// metricRank задаёт канонический порядок показателей в критериях.
func metricRank(m Metric) int {
	switch m {
	case MetricDirectRecruits:
		return 0
	case MetricNetworkSize:
		return 1
	case MetricTotalEarned:
		return 2
	default:
		return 3
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// Criterion - один порог критерия: показатель и требуемое значение.
type Criterion struct {
	Metric    Metric
	Threshold decimal.Decimal
}

// Satisfied возвращает true, если показатель участника достиг порога.
func (c Criterion) Satisfied(stats member.Stats) bool {
	return c.statValue(stats).GreaterThanOrEqual(c.Threshold)
}

// Progress возвращает min(100, floor(current/threshold * 100)) по порогу.
func (c Criterion) Progress(stats member.Stats) shared.Percent {
	if !c.Threshold.IsPositive() {
		return shared.MaxPercent
	}
	value := c.statValue(stats)
	if !value.IsPositive() {
		return shared.MinPercent
	}
	p := shared.Percent(value.Mul(decimal.NewFromInt(100)).Div(c.Threshold).IntPart())
	if p > shared.MaxPercent {
		return shared.MaxPercent
	}
	return p
}

func (c Criterion) statValue(stats member.Stats) decimal.Decimal {
	switch c.Metric {
	case MetricDirectRecruits:
		return decimal.NewFromInt(int64(stats.DirectRecruits))
	case MetricNetworkSize:
		return decimal.NewFromInt(int64(stats.NetworkSize))
	case MetricTotalEarned:
		return stats.TotalEarned.Decimal()
	default:
		return decimal.Zero
	}
}

// Criteria - конъюнкция порогов: достижение разблокируется, только когда
// выполнен КАЖДЫЙ присутствующий критерий. Отсутствующие показатели не
// проверяются.
type Criteria []Criterion

var (
	// ErrEmptyCriteria - критерии пусты.
	ErrEmptyCriteria = errors.New("achievement criteria must contain at least one threshold")

	// ErrNonPositiveThreshold - порог должен быть положительным.
	ErrNonPositiveThreshold = errors.New("criteria threshold must be positive")
)

// ParseCriteria декодирует критерии из JSON-объекта {metric: threshold}.
// Неизвестный ключ, нечисловой или неположительный порог и пустой объект
// делают критерии невалидными целиком.
func ParseCriteria(raw json.RawMessage) (Criteria, error) {
	if len(raw) == 0 {
		return nil, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidInput, "empty criteria payload", ErrEmptyCriteria)
	}

	var decoded map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidFormat, "malformed criteria payload", err)
	}
	if len(decoded) == 0 {
		return nil, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidInput, "empty criteria payload", ErrEmptyCriteria)
	}

	criteria := make(Criteria, 0, len(decoded))
	for key, threshold := range decoded {
		metric := Metric(key)
		if !metric.IsValid() {
			return nil, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidInput, "unknown metric "+key, shared.ErrUnknownMetric)
		}
		if !threshold.IsPositive() {
			return nil, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidInput, "non-positive threshold for "+key, ErrNonPositiveThreshold)
		}
		criteria = append(criteria, Criterion{Metric: metric, Threshold: threshold})
	}

	// Canonical order keeps evaluation and progress reporting deterministic.
	sort.Slice(criteria, func(i, j int) bool {
		return metricRank(criteria[i].Metric) < metricRank(criteria[j].Metric)
	})
	return criteria, nil
}

// AllSatisfied возвращает true, когда выполнен каждый критерий.
func (c Criteria) AllSatisfied(stats member.Stats) bool {
	for _, criterion := range c {
		if !criterion.Satisfied(stats) {
			return false
		}
	}
	return len(c) > 0
}

// Progress возвращает МИНИМАЛЬНЫЙ процент по всем критериям: самый
// консервативный показатель, который не покажет 100%, пока участник
// реально не квалифицировался по каждому порогу.
func (c Criteria) Progress(stats member.Stats) shared.Percent {
	if len(c) == 0 {
		return shared.MinPercent
	}
	min := shared.MaxPercent
	for _, criterion := range c {
		if p := criterion.Progress(stats); p < min {
			min = p
		}
	}
	return min
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Category - категория достижения.
type Category string

const (
	CategoryRecruiting Category = "recruiting"
	CategoryEarnings   Category = "earnings"
	CategoryNetwork    Category = "network"
)

// IsValid проверяет, что категория корректна.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRecruiting, CategoryEarnings, CategoryNetwork:
		return true
	default:
		return false
	}
}

// Achievement - описание достижения из каталога. Критерии хранятся в
// сыром виде и валидируются при оценке: одна битая запись каталога не
// должна ронять весь проход.
type Achievement struct {
	// ID - уникальный идентификатор достижения.
	ID shared.AchievementID

	// Name - название ("First Recruit", "Thousand Club", ...).
	Name string

	// Description - описание для участника.
	Description string

	// Icon - иконка для отображения.
	Icon string

	// Category - категория достижения.
	Category Category

	// Points - очки, начисляемые за разблокировку.
	Points int

	// RawCriteria - критерии в JSON-виде, как лежат в каталоге.
	RawCriteria json.RawMessage

	// Active - выключенные достижения не участвуют в оценке.
	Active bool
}

// ParseCriteria декодирует и валидирует критерии достижения.
func (a Achievement) ParseCriteria() (Criteria, error) {
	return ParseCriteria(a.RawCriteria)
}

// NewAchievementParams содержит параметры для создания достижения.
type NewAchievementParams struct {
	ID          shared.AchievementID
	Name        string
	Description string
	Icon        string
	Category    Category
	Points      int
	Criteria    json.RawMessage
}

// ErrInvalidAchievementName - невалидное название достижения.
var ErrInvalidAchievementName = errors.New("invalid achievement name: must be 1-100 chars")

// NewAchievement создаёт достижение с валидацией базовых полей.
// Критерии намеренно не проверяются здесь: см. комментарий у RawCriteria.
func NewAchievement(params NewAchievementParams) (Achievement, error) {
	if !params.ID.IsValid() {
		return Achievement{}, shared.NewDomainError("achievement", "NewAchievement", shared.ErrInvalidID, "achievement id is required")
	}
	if len(params.Name) == 0 || len(params.Name) > 100 {
		return Achievement{}, ErrInvalidAchievementName
	}
	if !params.Category.IsValid() {
		return Achievement{}, shared.NewDomainError("achievement", "NewAchievement", shared.ErrInvalidInput, "invalid achievement category")
	}
	if params.Points < 0 {
		return Achievement{}, shared.NewDomainError("achievement", "NewAchievement", shared.ErrNegativeValue, "points cannot be negative")
	}
	return Achievement{
		ID:          params.ID,
		Name:        params.Name,
		Description: params.Description,
		Icon:        params.Icon,
		Category:    params.Category,
		Points:      params.Points,
		RawCriteria: params.Criteria,
		Active:      true,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Unlock - запись о разблокировке достижения. Уникальна по паре
// (member_id, achievement_id); создаётся один раз и никогда не удаляется,
// даже если показатели позже откатятся.
type Unlock struct {
	MemberID         shared.MemberID
	AchievementID    shared.AchievementID
	UnlockedAt       time.Time
	ProgressAtUnlock shared.Percent
}

// NewUnlock создаёт запись о разблокировке.
func NewUnlock(memberID shared.MemberID, achievementID shared.AchievementID) Unlock {
	return Unlock{
		MemberID:         memberID,
		AchievementID:    achievementID,
		UnlockedAt:       time.Now(),
		ProgressAtUnlock: shared.MaxPercent,
	}
}
