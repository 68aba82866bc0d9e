package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeHealthChecker_AllPassing(t *testing.T) {
	checker := NewCompositeHealthChecker("1.2.0")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddCheck("redis", func(context.Context) error { return nil })

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "All checks passed", status.Message)
	assert.Equal(t, "1.2.0", status.Version)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "OK", status.Checks["database"].Message)
}

func TestCompositeHealthChecker_OneFailureTakesServiceDown(t *testing.T) {
	checker := NewCompositeHealthChecker("1.2.0")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	})

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.True(t, status.Checks["database"].Healthy)
	assert.False(t, status.Checks["redis"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestCompositeHealthChecker_NoChecksIsHealthy(t *testing.T) {
	status := NewCompositeHealthChecker("1.2.0").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)
}
