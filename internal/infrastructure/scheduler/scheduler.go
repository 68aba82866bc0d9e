// Package scheduler runs the engine's periodic maintenance: the
// leaderboard rebuild, the rank reconciliation sweep and the outbox
// purge. Each job carries its own Schedule; due jobs run on their own
// goroutines, and a job never overlaps its previous run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Job is one unit of periodic maintenance.
type Job interface {
	// Name identifies the job in logs and in the registry.
	Name() string

	// Run executes one pass. The context is cancelled when the
	// scheduler stops; a long sweep must honor it.
	Run(ctx context.Context) error

	// Description is a short human-readable summary.
	Description() string
}

// JobStatus describes one registered job for logging and inspection.
type JobStatus struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	Runs        int64
	Failures    int64
	LastError   error
}

var (
	// ErrNilJob - Register was given a nil job.
	ErrNilJob = errors.New("scheduler: nil job")

	// ErrNilSchedule - Register was given a nil schedule.
	ErrNilSchedule = errors.New("scheduler: nil schedule")

	// ErrDuplicateJob - a job with the same name is already registered.
	ErrDuplicateJob = errors.New("scheduler: job already registered")

	// ErrAlreadyRunning - Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrNotRunning - Stop on a stopped scheduler.
	ErrNotRunning = errors.New("scheduler: not running")
)

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// Logger for job lifecycle events.
	Logger *slog.Logger

	// Timezone for schedule calculations. Cron schedules like the
	// nightly outbox purge are interpreted in it. Default UTC.
	Timezone *time.Location

	// TickInterval is how often due times are checked.
	TickInterval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:       slog.Default(),
		Timezone:     time.UTC,
		TickInterval: time.Second,
	}
}

// Scheduler owns the job registry and the dispatch loop.
type Scheduler struct {
	log      *slog.Logger
	timezone *time.Location
	tick     time.Duration

	mu        sync.Mutex
	jobs      map[string]*jobEntry
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// jobEntry tracks one registered job. inFlight guards against a slow
// pass (a large leaderboard rebuild, a full reconciliation sweep)
// piling up behind itself.
type jobEntry struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	lastRun  time.Time
	inFlight bool
	runs     int64
	failures int64
	lastErr  error
}

// NewScheduler creates a scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	return &Scheduler{
		log:      cfg.Logger,
		timezone: cfg.Timezone,
		tick:     cfg.TickInterval,
		jobs:     make(map[string]*jobEntry),
	}
}

// Register adds a job with its schedule. Job names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	entry := &jobEntry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.timezone)),
	}
	s.jobs[name] = entry

	s.log.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", entry.nextRun.Format(time.RFC3339),
	)

	return nil
}

// Start launches the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("scheduler started", "jobs", len(s.jobs))

	s.wg.Add(1)
	go s.loop(runCtx)

	return nil
}

// Stop cancels the loop, waits for in-flight jobs to finish and logs a
// per-job summary.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	for _, st := range s.Status() {
		s.log.Info("job summary",
			"job", st.Name,
			"runs", st.Runs,
			"failures", st.Failures,
		)
	}
	s.log.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())

	return nil
}

// IsRunning reports whether the dispatch loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the registered jobs ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobStatus{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			Runs:        e.runs,
			Failures:    e.failures,
			LastError:   e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue collects jobs past their due time and launches them.
// An in-flight job is skipped until its current pass finishes.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now().In(s.timezone)

	s.mu.Lock()
	var due []*jobEntry
	for _, e := range s.jobs {
		if e.inFlight || now.Before(e.nextRun) {
			continue
		}
		e.inFlight = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *jobEntry) {
	defer s.wg.Done()

	name := e.job.Name()
	started := time.Now()
	s.log.Info("job started", "job", name)

	err := e.job.Run(ctx)
	finished := time.Now()

	s.mu.Lock()
	e.inFlight = false
	e.lastRun = started
	// Paced from completion, not from start: a rebuild that overruns
	// its interval simply runs back to back instead of stacking.
	e.nextRun = e.schedule.Next(finished.In(s.timezone))
	e.runs++
	e.lastErr = err
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed",
			"job", name,
			"duration", finished.Sub(started).String(),
			"error", err,
		)
		return
	}
	s.log.Info("job completed",
		"job", name,
		"duration", finished.Sub(started).String(),
	)
}
