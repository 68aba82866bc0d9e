package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error

	// block, when set, holds Run until the channel is closed or the
	// context is cancelled.
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return j.err
}

func fastScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	return NewScheduler(cfg)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := fastScheduler()
	job := &countingJob{name: "rebuild"}
	schedule := NewIntervalSchedule(time.Minute)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)

	require.NoError(t, s.Register(job, schedule))
	assert.ErrorIs(t, s.Register(job, schedule), ErrDuplicateJob)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := fastScheduler()
	job := &countingJob{name: "reconcile"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		if s.IsRunning() {
			_ = s.Stop()
		}
	}()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "reconcile", status[0].Name)
	assert.GreaterOrEqual(t, status[0].Runs, int64(1))
	assert.Zero(t, status[0].Failures)
	assert.False(t, status[0].LastRun.IsZero())
}

func TestScheduler_FailuresCounted(t *testing.T) {
	s := fastScheduler()
	job := &countingJob{name: "purge", err: errors.New("db down")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	status := s.Status()
	require.Len(t, status, 1)
	assert.GreaterOrEqual(t, status[0].Failures, int64(1))
	assert.ErrorContains(t, status[0].LastError, "db down")
}

func TestScheduler_SlowJobNeverOverlapsItself(t *testing.T) {
	s := fastScheduler()
	job := &countingJob{name: "rebuild", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return job.runs.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The job hangs past its interval; no second run starts.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), job.runs.Load())

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_LifecycleErrors(t *testing.T) {
	s := fastScheduler()

	assert.ErrorIs(t, s.Stop(), ErrNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestScheduler_StopWaitsForInFlightJob(t *testing.T) {
	s := fastScheduler()
	job := &countingJob{name: "rebuild", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return job.runs.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Stop cancels the job's context and waits for it to return.
	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stop did not return")
	}
}
