package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLATFORM EVENT WEBHOOK
// The core platform notifies the progression engine over HTTP whenever
// member stats change. Each callback carries one event; the engine reacts
// by running a progression pass for the affected member.
// ══════════════════════════════════════════════════════════════════════════════

// Well-known platform event types.
const (
	// EventCommissionCredited - a commission was credited to the member.
	EventCommissionCredited = "commission.credited"

	// EventRecruitJoined - a new recruit joined the member's downline.
	EventRecruitJoined = "recruit.joined"

	// EventStatsUpdated - a generic stats recalculation on the platform side.
	EventStatsUpdated = "member.stats_updated"
)

// PlatformEvent represents a callback payload from the core platform.
type PlatformEvent struct {
	// EventType identifies what happened ("commission.credited" etc).
	EventType string `json:"event_type"`

	// MemberID is the member whose stats changed.
	MemberID string `json:"member_id"`

	// CorrelationID traces the event back to the originating transaction.
	CorrelationID string `json:"correlation_id,omitempty"`

	// OccurredAt is when the change happened on the platform side.
	OccurredAt time.Time `json:"occurred_at"`

	// Payload carries event-specific details the engine does not interpret.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks that the event carries the minimum required fields.
func (e *PlatformEvent) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("platform event: event_type is required")
	}
	if e.MemberID == "" {
		return fmt.Errorf("platform event: member_id is required")
	}
	return nil
}

// StatsWebhookHandler defines the interface for handling platform callbacks.
type StatsWebhookHandler interface {
	// HandleStatsEvent processes a raw platform callback payload.
	HandleStatsEvent(ctx context.Context, payload []byte) error
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EventHandlerFunc handles a single parsed platform event.
type EventHandlerFunc func(ctx context.Context, event *PlatformEvent) error

// PlatformWebhookHandler routes platform events to registered handlers by
// event type. Unrecognized event types fall through to the default handler
// when one is set, and are acknowledged silently otherwise.
type PlatformWebhookHandler struct {
	mu             sync.RWMutex
	eventHandlers  map[string]EventHandlerFunc
	defaultHandler EventHandlerFunc
	errorHandler   func(error)
}

// NewPlatformWebhookHandler creates a webhook handler with no routes.
func NewPlatformWebhookHandler() *PlatformWebhookHandler {
	return &PlatformWebhookHandler{
		eventHandlers: make(map[string]EventHandlerFunc),
	}
}

// RegisterEvent registers a handler for a specific event type.
func (h *PlatformWebhookHandler) RegisterEvent(eventType string, handler EventHandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventHandlers[eventType] = handler
}

// RegisterDefault registers a fallback handler for unrouted event types.
func (h *PlatformWebhookHandler) RegisterDefault(handler EventHandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultHandler = handler
}

// SetErrorHandler sets a hook invoked with every handler error.
func (h *PlatformWebhookHandler) SetErrorHandler(handler func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorHandler = handler
}

// HandleStatsEvent parses and routes a platform callback payload.
func (h *PlatformWebhookHandler) HandleStatsEvent(ctx context.Context, payload []byte) error {
	var event PlatformEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse platform event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	h.mu.RLock()
	handler, ok := h.eventHandlers[event.EventType]
	if !ok {
		handler = h.defaultHandler
	}
	errorHandler := h.errorHandler
	h.mu.RUnlock()

	if handler == nil {
		return nil
	}

	err := handler(ctx, &event)
	if err != nil && errorHandler != nil {
		errorHandler(err)
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNATURE VERIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader is the header carrying the HMAC signature of the body.
const SignatureHeader = "X-Webhook-Signature"

// ComputeSignature returns the hex HMAC-SHA256 of body under secret,
// prefixed with the scheme identifier ("sha256=...").
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the request body.
// The comparison is constant-time. An empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
