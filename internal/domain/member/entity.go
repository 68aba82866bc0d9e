// Package member содержит доменную модель участника MLM-платформы.
// Это ядро бизнес-логики - здесь нет внешних зависимостей на инфраструктуру.
package member

import (
	"errors"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет текущий статус участника на платформе.
type Status string

const (
	// StatusActive - участник активен.
	StatusActive Status = "active"
	// StatusSuspended - участник временно заблокирован администратором.
	StatusSuspended Status = "suspended"
	// StatusLeft - участник покинул платформу.
	StatusLeft Status = "left"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusLeft:
		return true
	default:
		return false
	}
}

// CanReceiveNotifications возвращает true, если участнику можно слать уведомления.
func (s Status) CanReceiveNotifications() bool {
	return s == StatusActive
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS (read model)
// ══════════════════════════════════════════════════════════════════════════════

// Stats - снимок показателей участника, по которым считаются ранги и
// достижения. Значения меняются внешней обработкой комиссий и рефералов;
// движок прогрессии их только читает.
type Stats struct {
	// DirectRecruits - количество рефералов первой линии.
	DirectRecruits int

	// NetworkSize - общий размер даунлайна (все уровни).
	NetworkSize int

	// TotalEarned - суммарный заработок с комиссий.
	TotalEarned shared.Money
}

// ErrInvalidStats - показатели не проходят валидацию.
var ErrInvalidStats = errors.New("invalid stats: counters must be non-negative")

// NewStats создаёт снимок показателей с валидацией.
func NewStats(directRecruits, networkSize int, totalEarned shared.Money) (Stats, error) {
	if directRecruits < 0 || networkSize < 0 {
		return Stats{}, ErrInvalidStats
	}
	return Stats{
		DirectRecruits: directRecruits,
		NetworkSize:    networkSize,
		TotalEarned:    totalEarned,
	}, nil
}

// IsZero возвращает true для нулевого снимка (новый участник).
func (s Stats) IsZero() bool {
	return s.DirectRecruits == 0 && s.NetworkSize == 0 && s.TotalEarned.IsZero()
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: MEMBER
// ══════════════════════════════════════════════════════════════════════════════

// Member - участник платформы.
type Member struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID shared.MemberID

	// Wallet - адрес кошелька, через который участник аутентифицируется.
	Wallet shared.WalletAddress

	// Username - отображаемое имя.
	Username string

	// ReferrerID - кто привёл участника (пусто для корневых аккаунтов).
	ReferrerID shared.MemberID

	// Status - текущий статус на платформе.
	Status Status

	// JoinedAt - время регистрации.
	JoinedAt time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidUsername - невалидное отображаемое имя.
	ErrInvalidUsername = errors.New("invalid username: must be 1-100 chars")

	// ErrSelfReferral - участник не может быть собственным рефералом.
	ErrSelfReferral = errors.New("member cannot refer themselves")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewMemberParams содержит параметры для создания нового участника.
type NewMemberParams struct {
	ID         shared.MemberID
	Wallet     shared.WalletAddress
	Username   string
	ReferrerID shared.MemberID
	JoinedAt   time.Time
}

// NewMember создаёт нового участника с валидацией всех полей.
func NewMember(params NewMemberParams) (*Member, error) {
	if !params.ID.IsValid() {
		return nil, shared.ErrInvalidMemberID
	}

	if !params.Wallet.IsValid() {
		return nil, shared.ErrInvalidWallet
	}

	if len(params.Username) == 0 || len(params.Username) > 100 {
		return nil, ErrInvalidUsername
	}

	if params.ReferrerID == params.ID {
		return nil, ErrSelfReferral
	}

	now := time.Now()
	joinedAt := params.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = now
	}

	return &Member{
		ID:         params.ID,
		Wallet:     shared.WalletAddress(params.Wallet.Checksummed()),
		Username:   params.Username,
		ReferrerID: params.ReferrerID,
		Status:     StatusActive,
		JoinedAt:   joinedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive возвращает true, если участник активен.
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

// Suspend переводит участника в статус suspended.
func (m *Member) Suspend() error {
	if m.Status == StatusLeft {
		return shared.ErrStateTransition
	}
	m.Status = StatusSuspended
	m.UpdatedAt = time.Now()
	return nil
}

// Reactivate возвращает участника в статус active.
func (m *Member) Reactivate() error {
	if m.Status == StatusLeft {
		return shared.ErrStateTransition
	}
	m.Status = StatusActive
	m.UpdatedAt = time.Now()
	return nil
}
