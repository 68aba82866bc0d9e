package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Transactional Outbox
// ═══════════════════════════════════════════════════════════════════════════

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	// OutboxPending - written in the evaluation transaction, not yet dispatched.
	OutboxPending OutboxStatus = "pending"
	// OutboxSent - delivered by the dispatcher.
	OutboxSent OutboxStatus = "sent"
	// OutboxFailed - delivery gave up after exhausting retries.
	OutboxFailed OutboxStatus = "failed"
)

// IsValid checks if the status is known.
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxPending, OutboxSent, OutboxFailed:
		return true
	default:
		return false
	}
}

// maxDispatchAttempts bounds outbox retries before an entry is parked.
const maxDispatchAttempts = 5

// OutboxEntry is a notification intent written in the SAME transaction as
// the rank/unlock state change. A separate dispatcher delivers pending
// entries after commit, so a notification failure can never roll back an
// evaluation, and an evaluation rollback discards its notifications.
type OutboxEntry struct {
	// ID is the unique entry identifier (UUID).
	ID string

	// MemberID is the recipient.
	MemberID shared.MemberID

	// Kind is the notification type to produce.
	Kind Type

	// Title and Message are the rendered notification text.
	Title   string
	Message string

	// Data carries the structured payload.
	Data json.RawMessage

	// Status is the delivery state.
	Status OutboxStatus

	// Attempts counts delivery attempts so far.
	Attempts int

	// LastError holds the most recent delivery error text.
	LastError string

	// CreatedAt is when the entry was committed.
	CreatedAt time.Time

	// DispatchedAt is set when the entry reaches a final state.
	DispatchedAt *time.Time
}

// NewOutboxEntry creates a pending outbox entry.
func NewOutboxEntry(id string, memberID shared.MemberID, kind Type, title, message string, data map[string]interface{}) (*OutboxEntry, error) {
	if id == "" {
		return nil, shared.NewDomainError("notification", "NewOutboxEntry", shared.ErrInvalidID, "outbox entry id is required")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("notification", "NewOutboxEntry", shared.ErrInvalidInput, "unknown notification type")
	}

	var payload json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, shared.WrapError("notification", "NewOutboxEntry", shared.ErrInvalidFormat, "payload serialization failed", err)
		}
		payload = encoded
	}

	return &OutboxEntry{
		ID:        id,
		MemberID:  memberID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Data:      payload,
		Status:    OutboxPending,
		CreatedAt: time.Now(),
	}, nil
}

// MarkSent records a successful dispatch.
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxSent
	e.DispatchedAt = &now
}

// MarkAttemptFailed records a failed attempt. After maxDispatchAttempts the
// entry is parked as failed; failures never propagate to the caller of the
// evaluation that produced the entry.
func (e *OutboxEntry) MarkAttemptFailed(err error) {
	e.Attempts++
	if err != nil {
		e.LastError = err.Error()
	}
	if e.Attempts >= maxDispatchAttempts {
		now := time.Now()
		e.Status = OutboxFailed
		e.DispatchedAt = &now
	}
}

// Exhausted reports whether retries are spent.
func (e *OutboxEntry) Exhausted() bool {
	return e.Status == OutboxFailed
}

// OutboxRepository stores outbox entries. Save must participate in the
// caller's transaction when one is active.
type OutboxRepository interface {
	// Save appends a pending entry.
	Save(ctx context.Context, entry *OutboxEntry) error

	// FetchPending returns up to limit pending entries, oldest first.
	FetchPending(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// Update persists the delivery state of an entry.
	Update(ctx context.Context, entry *OutboxEntry) error
}
