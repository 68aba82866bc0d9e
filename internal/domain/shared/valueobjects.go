// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/refnet-platform/progression-engine/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MemberID represents a unique member identifier (UUID format).
type MemberID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the member ID is a valid UUID.
func (m MemberID) IsValid() bool {
	return uuidRegex.MatchString(string(m))
}

// String returns the string representation.
func (m MemberID) String() string {
	return string(m)
}

// IsEmpty checks if the ID is empty.
func (m MemberID) IsEmpty() bool {
	return m == ""
}

// NewMemberID creates a new MemberID with validation.
func NewMemberID(id string) (MemberID, error) {
	mid := MemberID(strings.ToLower(strings.TrimSpace(id)))
	if !mid.IsValid() {
		return "", NewDomainError("shared", "NewMemberID", ErrInvalidID, "invalid member ID format")
	}
	return mid, nil
}

// RankTierID represents a unique rank tier identifier.
type RankTierID string

// IsValid checks if the rank tier ID is non-empty.
func (r RankTierID) IsValid() bool {
	return strings.TrimSpace(string(r)) != ""
}

// String returns the string representation.
func (r RankTierID) String() string {
	return string(r)
}

// IsEmpty checks if the ID is empty.
func (r RankTierID) IsEmpty() bool {
	return r == ""
}

// AchievementID represents a unique achievement identifier.
type AchievementID string

// IsValid checks if the achievement ID is non-empty.
func (a AchievementID) IsValid() bool {
	return strings.TrimSpace(string(a)) != ""
}

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}

// ═══════════════════════════════════════════════════════════════════════════
// WalletAddress Value Object
// ═══════════════════════════════════════════════════════════════════════════

// WalletAddress represents an EVM wallet address (0x + 40 hex chars).
// Members authenticate with their wallet, so the address doubles as the
// member's public identity on leaderboards.
type WalletAddress string

var walletHexRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValid checks the 0x-prefixed hex format. Mixed-case addresses must
// additionally carry a correct EIP-55 checksum.
func (w WalletAddress) IsValid() bool {
	s := string(w)
	if !walletHexRegex.MatchString(s) {
		return false
	}
	hexPart := s[2:]
	lower := strings.ToLower(hexPart)
	upper := strings.ToUpper(hexPart)
	if hexPart == lower || hexPart == upper {
		// All one case: no checksum encoded, format alone is enough.
		return true
	}
	return w.checksummed() == s
}

// checksummed returns the EIP-55 checksummed form of the address.
func (w WalletAddress) checksummed() string {
	lower := strings.ToLower(string(w)[2:])
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(lower))
	sum := hash.Sum(nil)

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			// Uppercase when the corresponding hash nibble is >= 8.
			nibble := sum[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// Checksummed returns the canonical EIP-55 representation.
func (w WalletAddress) Checksummed() string {
	if !walletHexRegex.MatchString(string(w)) {
		return string(w)
	}
	return w.checksummed()
}

// Short returns an abbreviated form for display: 0x1234...abcd.
func (w WalletAddress) Short() string {
	s := string(w)
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// String returns the string representation.
func (w WalletAddress) String() string {
	return string(w)
}

// NewWalletAddress creates a validated, checksummed WalletAddress.
func NewWalletAddress(addr string) (WalletAddress, error) {
	w := WalletAddress(strings.TrimSpace(addr))
	if !w.IsValid() {
		return "", ErrInvalidWallet
	}
	return WalletAddress(w.Checksummed()), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Money Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Money represents a monetary amount (platform currency). Backed by an
// exact decimal since the amounts come from commission percentage math.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates Money from a decimal.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, NewDomainError("shared", "NewMoney", ErrNegativeValue, "amount cannot be negative")
	}
	return Money{amount: amount}, nil
}

// NewMoneyFromString parses a decimal string into Money.
func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, WrapError("shared", "NewMoneyFromString", ErrInvalidFormat, "malformed amount", err)
	}
	return NewMoney(d)
}

// NewMoneyFromFloat creates Money from a float (test and config convenience).
func NewMoneyFromFloat(f float64) (Money, error) {
	return NewMoney(decimal.NewFromFloat(f))
}

// ZeroMoney returns a zero amount.
func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// GreaterOrEqual reports whether m >= other.
func (m Money) GreaterOrEqual(other Money) bool {
	return m.amount.GreaterThanOrEqual(other.amount)
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Float64 returns an approximate float value (display only).
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// String returns the canonical decimal string.
func (m Money) String() string {
	return m.amount.String()
}

// MarshalJSON serializes the amount as a JSON string to avoid float loss.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.amount.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string or number amount.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return WrapError("shared", "UnmarshalJSON", ErrInvalidFormat, "malformed amount", err)
	}
	m.amount = d
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Percent Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percent represents a whole-number completion percentage in [0, 100].
type Percent int

const (
	MinPercent Percent = 0
	MaxPercent Percent = 100
)

// IsValid checks if the percent is within range.
func (p Percent) IsValid() bool {
	return p >= MinPercent && p <= MaxPercent
}

// Int returns the underlying int value.
func (p Percent) Int() int {
	return int(p)
}

// IsComplete reports whether the percent is exactly 100.
func (p Percent) IsComplete() bool {
	return p == MaxPercent
}

// PercentOf computes min(100, floor(current/required * 100)).
// A zero or negative requirement is trivially satisfied and reports 100.
func PercentOf(current, required int64) Percent {
	if required <= 0 {
		return MaxPercent
	}
	if current <= 0 {
		return MinPercent
	}
	p := Percent(current * 100 / required)
	if p > MaxPercent {
		return MaxPercent
	}
	return p
}

// PercentOfMoney is PercentOf over exact decimal amounts.
func PercentOfMoney(current, required Money) Percent {
	if required.IsZero() || required.amount.IsNegative() {
		return MaxPercent
	}
	if current.amount.IsNegative() || current.IsZero() {
		return MinPercent
	}
	ratio := current.amount.Mul(decimal.NewFromInt(100)).Div(required.amount)
	p := Percent(ratio.IntPart())
	if p > MaxPercent {
		return MaxPercent
	}
	return p
}

// AveragePercent returns floor(mean) of the given percentages.
func AveragePercent(values ...Percent) Percent {
	if len(values) == 0 {
		return MinPercent
	}
	sum := 0
	for _, v := range values {
		sum += int(v)
	}
	return Percent(sum / len(values))
}

// MinOfPercents returns the smallest of the given percentages.
func MinOfPercents(values ...Percent) Percent {
	if len(values) == 0 {
		return MinPercent
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// LastNDays returns a TimeRange for the last N days. Bounds are UTC so
// windowed leaderboards agree across instances in different timezones.
func LastNDays(n int) TimeRange {
	now := timeutil.Now()
	return TimeRange{
		From: now.AddDate(0, 0, -n),
		To:   now,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
