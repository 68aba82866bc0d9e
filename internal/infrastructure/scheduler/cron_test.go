package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_Valid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every minute", EveryMinute},
		{"step", Every5Minutes},
		{"daily at 3am", EveryDay3AM},
		{"weekly", EverySunday},
		{"monthly", FirstOfMonth},
		{"list", "0,30 9-17 * * 1-5"},
		{"range with step", "0-30/10 * * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestParseCronExpression_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"too few fields", "* * * *"},
		{"too many fields", "* * * * * *"},
		{"minute out of range", "60 * * * *"},
		{"hour out of range", "0 24 * * *"},
		{"garbage value", "x * * * *"},
		{"zero step", "*/0 * * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	ce, err := ParseCronExpression(EveryDay3AM)
	require.NoError(t, err)

	// Before 03:00 the same day qualifies.
	after := time.Date(2025, 6, 15, 1, 30, 0, 0, time.UTC)
	next := ce.Next(after)
	assert.Equal(t, time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC), next)

	// Exactly at 03:00 rolls over to the next day: Next is strictly after.
	next = ce.Next(next)
	assert.Equal(t, time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextWeekday(t *testing.T) {
	ce, err := ParseCronExpression(EverySunday)
	require.NoError(t, err)

	// 2025-06-15 is a Sunday; starting mid-Sunday jumps to the next one.
	after := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	next := ce.Next(after)
	assert.Equal(t, time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestCronExpression_NextStep(t *testing.T) {
	ce, err := ParseCronExpression(Every5Minutes)
	require.NoError(t, err)

	after := time.Date(2025, 6, 15, 10, 2, 45, 0, time.UTC)
	next := ce.Next(after)
	assert.Equal(t, time.Date(2025, 6, 15, 10, 5, 0, 0, time.UTC), next)
}

func TestMustParseCronExpression_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustParseCronExpression("not a cron")
	})
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(15 * time.Minute)

	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(15*time.Minute), s.Next(base))
	assert.Equal(t, "@every 15m0s", s.String())
}
