package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errGateway = errors.New("gateway down")

func failing(context.Context) error { return errGateway }
func passing(context.Context) error { return nil }

func newTripped(t *testing.T, cooldown time.Duration) *CircuitBreaker {
	t.Helper()
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 2, Cooldown: cooldown})
	for i := 0; i < 2; i++ {
		require.Error(t, cb.Execute(context.Background(), failing))
	}
	require.Equal(t, StateOpen, cb.State())
	return cb
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 3})

	assert.Equal(t, errGateway, cb.Execute(context.Background(), failing))
	assert.Equal(t, errGateway, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, errGateway, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without reaching the gateway.
	assert.ErrorIs(t, cb.Execute(context.Background(), passing), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := New(Config{FailureThreshold: 2})

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := newTripped(t, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	// Two successful trials close the circuit again.
	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTripped(t, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New(Config{
		Name:             "webhook",
		FailureThreshold: 1,
		Cooldown:         time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+": "+from.String()+" -> "+to.String())
		},
	})

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, []string{"webhook: closed -> open"}, transitions)
}
