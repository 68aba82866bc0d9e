package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformWebhookHandler_RoutesByEventType(t *testing.T) {
	h := NewPlatformWebhookHandler()

	var gotCommission, gotDefault string
	h.RegisterEvent(EventCommissionCredited, func(_ context.Context, e *PlatformEvent) error {
		gotCommission = e.MemberID
		return nil
	})
	h.RegisterDefault(func(_ context.Context, e *PlatformEvent) error {
		gotDefault = e.EventType
		return nil
	})

	payload := []byte(`{"event_type":"commission.credited","member_id":"m-1","correlation_id":"tx-9"}`)
	require.NoError(t, h.HandleStatsEvent(context.Background(), payload))
	assert.Equal(t, "m-1", gotCommission)
	assert.Empty(t, gotDefault)

	payload = []byte(`{"event_type":"member.stats_updated","member_id":"m-2"}`)
	require.NoError(t, h.HandleStatsEvent(context.Background(), payload))
	assert.Equal(t, EventStatsUpdated, gotDefault)
}

func TestPlatformWebhookHandler_UnroutedEventIsAcknowledged(t *testing.T) {
	h := NewPlatformWebhookHandler()

	payload := []byte(`{"event_type":"something.else","member_id":"m-3"}`)
	assert.NoError(t, h.HandleStatsEvent(context.Background(), payload))
}

func TestPlatformWebhookHandler_ErrorHookSeesHandlerError(t *testing.T) {
	h := NewPlatformWebhookHandler()

	wantErr := errors.New("saga failed")
	h.RegisterDefault(func(_ context.Context, _ *PlatformEvent) error {
		return wantErr
	})

	var hooked error
	h.SetErrorHandler(func(err error) { hooked = err })

	payload := []byte(`{"event_type":"recruit.joined","member_id":"m-4"}`)
	err := h.HandleStatsEvent(context.Background(), payload)
	assert.ErrorIs(t, err, wantErr)
	assert.ErrorIs(t, hooked, wantErr)
}

func TestPlatformWebhookHandler_RejectsInvalidPayloads(t *testing.T) {
	h := NewPlatformWebhookHandler()
	h.RegisterDefault(func(_ context.Context, _ *PlatformEvent) error {
		t.Fatal("handler must not run for invalid payloads")
		return nil
	})

	assert.Error(t, h.HandleStatsEvent(context.Background(), []byte(`not json`)))
	assert.Error(t, h.HandleStatsEvent(context.Background(), []byte(`{"member_id":"m-5"}`)))
	assert.Error(t, h.HandleStatsEvent(context.Background(), []byte(`{"event_type":"recruit.joined"}`)))
}

func TestVerifySignature(t *testing.T) {
	secret := "topsecret"
	body := []byte(`{"event_type":"commission.credited","member_id":"m-1"}`)

	sig := ComputeSignature(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, "  "+sig+"  "), "surrounding whitespace is trimmed")

	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(secret, body, "sha256=deadbeef"))
	assert.False(t, VerifySignature(secret, []byte(`tampered`), sig))
	assert.False(t, VerifySignature("othersecret", body, sig))

	// An empty secret disables verification entirely.
	assert.True(t, VerifySignature("", body, "anything"))
}
