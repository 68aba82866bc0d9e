// Package shared holds the vocabulary the domain packages have in
// common: error kinds, domain events and the value objects that cross
// package boundaries.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. A DomainError carries one of these so callers can
// branch with errors.Is without knowing the concrete failure.
var (
	// Entity lifecycle
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Input validation
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrNegativeValue = errors.New("value cannot be negative")
	ErrInvalidFormat = errors.New("invalid format")

	// State machine violations
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Lost writes under concurrent evaluation
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Failures outside the engine
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError ties a failure to the domain and operation it came from.
// Kind is one of the error kinds above; Err, when set, is the cause.
type DomainError struct {
	Domain  string // "member", "rank", "achievement", ...
	Op      string // operation that failed, "Evaluate", "Promote", ...
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap prefers the cause over the kind so that wrapped driver
// errors stay reachable.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError builds a DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError attaches domain context to an underlying error.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Member
var (
	ErrMemberNotFound      = NewDomainError("member", "Find", ErrNotFound, "member not found")
	ErrMemberAlreadyExists = NewDomainError("member", "Create", ErrAlreadyExists, "member already exists")
	ErrInvalidMemberID     = NewDomainError("member", "Validate", ErrInvalidID, "invalid member ID")
	ErrInvalidWallet       = NewDomainError("member", "Validate", ErrInvalidFormat, "invalid wallet address")
	ErrStatsNotFound       = NewDomainError("member", "GetStats", ErrNotFound, "member stats not found")
)

// Rank catalog and rank state
var (
	ErrRankNotFound     = NewDomainError("rank", "Find", ErrNotFound, "rank tier not found")
	ErrEmptyCatalog     = NewDomainError("rank", "Evaluate", ErrInvalidState, "rank catalog is empty")
	ErrInvalidThreshold = NewDomainError("rank", "Validate", ErrNegativeValue, "rank threshold cannot be negative")
	ErrDuplicateOrder   = NewDomainError("rank", "Validate", ErrInvalidEntity, "rank order must be unique")
)

// Achievement catalog and unlocks
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrInvalidCriteria     = NewDomainError("achievement", "Validate", ErrInvalidInput, "invalid achievement criteria")
	ErrUnknownMetric       = NewDomainError("achievement", "Validate", ErrInvalidInput, "unknown criteria metric")
	ErrAlreadyUnlocked     = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "achievement already unlocked")
)

// Leaderboards and snapshots
var (
	ErrLeaderboardNotFound = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard not found")
	ErrInvalidPeriod       = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid leaderboard period")
	ErrInvalidMetric       = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid leaderboard metric")
	ErrSnapshotNotFound    = NewDomainError("leaderboard", "FindSnapshot", ErrNotFound, "snapshot not found")
)

// Notifications
var (
	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
	ErrNotificationFailed   = NewDomainError("notification", "Send", ErrExternalService, "failed to send notification")
	ErrInvalidChannel       = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid notification channel")
	ErrTooManyNotifications = NewDomainError("notification", "Send", ErrRateLimited, "too many notifications")
)

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err stems from bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable reports whether retrying the operation can help.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
