// Package rank содержит доменную модель рангов участников: каталог уровней
// с порогами, состояние ранга участника и логику автоматической оценки.
package rank

import (
	"errors"
	"sort"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/member"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERKS
// ══════════════════════════════════════════════════════════════════════════════

// Perks - привилегии ранга. Хранятся в каталоге как JSON, на границе
// декодируются в эту закрытую структуру; неизвестные поля отбрасываются.
type Perks struct {
	// CommissionMultiplier - множитель комиссии (1.0 = базовая ставка).
	CommissionMultiplier float64 `json:"commissionMultiplier"`

	// WithdrawalFeeDiscount - скидка на комиссию вывода, в процентах.
	WithdrawalFeeDiscount int `json:"withdrawalFeeDiscount"`

	// Features - список доступных возможностей платформы.
	Features []string `json:"features,omitempty"`
}

// DefaultPerks возвращает привилегии базового ранга.
func DefaultPerks() Perks {
	return Perks{CommissionMultiplier: 1.0}
}

// IsValid проверяет корректность привилегий.
func (p Perks) IsValid() bool {
	return p.CommissionMultiplier >= 1.0 &&
		p.WithdrawalFeeDiscount >= 0 && p.WithdrawalFeeDiscount <= 100
}

// ══════════════════════════════════════════════════════════════════════════════
// TIER
// ══════════════════════════════════════════════════════════════════════════════

// Tier - уровень ранга с порогами квалификации. Каталог неизменяем:
// оценка всегда работает со свежезагруженным списком уровней.
type Tier struct {
	// ID - уникальный идентификатор уровня.
	ID shared.RankTierID

	// Name - название ранга ("Newbie", "Builder", "Diamond", ...).
	Name string

	// BadgeIcon - иконка для отображения.
	BadgeIcon string

	// BadgeColor - цвет бейджа в HEX.
	BadgeColor string

	// Order - позиция в иерархии, строго возрастает, уникальна.
	Order int

	// MinDirectRecruits - минимум рефералов первой линии.
	MinDirectRecruits int

	// MinNetworkSize - минимальный размер даунлайна.
	MinNetworkSize int

	// MinTotalEarned - минимальный суммарный заработок.
	MinTotalEarned shared.Money

	// Perks - привилегии уровня.
	Perks Perks
}

// NewTierParams содержит параметры для создания уровня.
type NewTierParams struct {
	ID                shared.RankTierID
	Name              string
	BadgeIcon         string
	BadgeColor        string
	Order             int
	MinDirectRecruits int
	MinNetworkSize    int
	MinTotalEarned    shared.Money
	Perks             Perks
}

// ErrInvalidTierName - невалидное название ранга.
var ErrInvalidTierName = errors.New("invalid tier name: must be 1-50 chars")

// NewTier создаёт уровень с валидацией порогов.
func NewTier(params NewTierParams) (Tier, error) {
	if !params.ID.IsValid() {
		return Tier{}, shared.NewDomainError("rank", "NewTier", shared.ErrInvalidID, "tier id is required")
	}
	if len(params.Name) == 0 || len(params.Name) > 50 {
		return Tier{}, ErrInvalidTierName
	}
	if params.MinDirectRecruits < 0 || params.MinNetworkSize < 0 {
		return Tier{}, shared.ErrInvalidThreshold
	}
	perks := params.Perks
	if perks.CommissionMultiplier == 0 {
		perks = DefaultPerks()
	}
	if !perks.IsValid() {
		return Tier{}, shared.NewDomainError("rank", "NewTier", shared.ErrInvalidInput, "invalid perks payload")
	}
	return Tier{
		ID:                params.ID,
		Name:              params.Name,
		BadgeIcon:         params.BadgeIcon,
		BadgeColor:        params.BadgeColor,
		Order:             params.Order,
		MinDirectRecruits: params.MinDirectRecruits,
		MinNetworkSize:    params.MinNetworkSize,
		MinTotalEarned:    params.MinTotalEarned,
		Perks:             perks,
	}, nil
}

// Qualifies возвращает true, если показатели проходят ВСЕ три порога уровня.
// Квалификация одновременная: недобор по любому порогу дисквалифицирует.
func (t Tier) Qualifies(stats member.Stats) bool {
	return stats.DirectRecruits >= t.MinDirectRecruits &&
		stats.NetworkSize >= t.MinNetworkSize &&
		stats.TotalEarned.GreaterOrEqual(t.MinTotalEarned)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - упорядоченный набор уровней ранга.
type Catalog []Tier

// NewCatalog создаёт каталог с проверкой уникальности порядка уровней.
func NewCatalog(tiers []Tier) (Catalog, error) {
	if len(tiers) == 0 {
		return nil, shared.ErrEmptyCatalog
	}
	seen := make(map[int]bool, len(tiers))
	for _, t := range tiers {
		if seen[t.Order] {
			return nil, shared.ErrDuplicateOrder
		}
		seen[t.Order] = true
	}
	c := make(Catalog, len(tiers))
	copy(c, tiers)
	sort.Slice(c, func(i, j int) bool { return c[i].Order < c[j].Order })
	return c, nil
}

// IsEmpty возвращает true для пустого каталога.
func (c Catalog) IsEmpty() bool {
	return len(c) == 0
}

// SortedDesc возвращает уровни по убыванию Order (кандидаты сверху вниз).
func (c Catalog) SortedDesc() []Tier {
	out := make([]Tier, len(c))
	copy(out, c)
	sort.Slice(out, func(i, j int) bool { return out[i].Order > out[j].Order })
	return out
}

// Lowest возвращает уровень с минимальным Order (базовый ранг).
func (c Catalog) Lowest() (Tier, bool) {
	if c.IsEmpty() {
		return Tier{}, false
	}
	lowest := c[0]
	for _, t := range c[1:] {
		if t.Order < lowest.Order {
			lowest = t
		}
	}
	return lowest, true
}

// Highest возвращает уровень с максимальным Order.
func (c Catalog) Highest() (Tier, bool) {
	if c.IsEmpty() {
		return Tier{}, false
	}
	highest := c[0]
	for _, t := range c[1:] {
		if t.Order > highest.Order {
			highest = t
		}
	}
	return highest, true
}

// ByID находит уровень по идентификатору.
func (c Catalog) ByID(id shared.RankTierID) (Tier, bool) {
	for _, t := range c {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

// NextAfter возвращает ближайший уровень строго выше заданного Order.
func (c Catalog) NextAfter(order int) (Tier, bool) {
	var next Tier
	found := false
	for _, t := range c {
		if t.Order <= order {
			continue
		}
		if !found || t.Order < next.Order {
			next = t
			found = true
		}
	}
	return next, found
}

// IsHighest возвращает true, если уровень - вершина каталога.
func (c Catalog) IsHighest(t Tier) bool {
	highest, ok := c.Highest()
	return ok && highest.ID == t.ID
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK STATE
// ══════════════════════════════════════════════════════════════════════════════

// State - персистентное состояние ранга участника.
type State struct {
	// MemberID - владелец состояния.
	MemberID shared.MemberID

	// CurrentRankID - текущий ранг; пуст до первой оценки.
	CurrentRankID shared.RankTierID

	// ManualOverride - ранг закреплён администратором: автоматическая
	// оценка не меняет и не понижает его, пока ссылка на уровень жива.
	ManualOverride bool

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// HasRank возвращает true, если ранг уже назначался.
func (s State) HasRank() bool {
	return !s.CurrentRankID.IsEmpty()
}

// NewState возвращает начальное состояние для участника без ранга.
func NewState(memberID shared.MemberID) State {
	return State{MemberID: memberID}
}
