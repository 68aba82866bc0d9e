package scheduler

import "time"

// Schedule tells the scheduler when a job is next due.
type Schedule interface {
	// Next returns the first due time strictly after the given time.
	Next(after time.Time) time.Time

	// String returns a human-readable form for logs.
	String() string
}

// IntervalSchedule runs a job on a fixed cadence. Used for the
// leaderboard rebuild and the rank reconciliation sweep, where the exact
// time of day does not matter.
type IntervalSchedule struct {
	interval time.Duration
}

// NewIntervalSchedule creates a fixed-cadence schedule. A non-positive
// interval falls back to one minute.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalSchedule{interval: interval}
}

// Next returns the time one interval after the given time.
func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.interval)
}

// String returns the schedule in "@every 10m0s" form.
func (s *IntervalSchedule) String() string {
	return "@every " + s.interval.String()
}
