package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cron expressions accepted in scheduler configuration.
const (
	EveryMinute   = "* * * * *"
	Every5Minutes = "*/5 * * * *"
	EveryDay3AM   = "0 3 * * *"
	EverySunday   = "0 0 * * 0"
	FirstOfMonth  = "0 0 1 * *"
)

// cronField is a bitmask of matching values for one cron field.
// Bit i set means value i matches; all field domains fit in 64 bits.
type cronField uint64

func (f cronField) has(v int) bool {
	return f&(1<<uint(v)) != 0
}

// CronExpression is a parsed cron expression implementing Schedule.
// Supports the standard 5-field format: minute hour day-of-month month
// day-of-week. Used for jobs that must run at a fixed time of day (the
// outbox purge) rather than on a rolling interval.
//
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "0 3 * * *"    - every day at 03:00
//   - "0 0 * * 0"    - every Sunday at midnight
type CronExpression struct {
	raw      string
	minutes  cronField // 0-59
	hours    cronField // 0-23
	days     cronField // 1-31
	months   cronField // 1-12
	weekdays cronField // 0-6, 0 = Sunday
}

var _ Schedule = (*CronExpression)(nil)

// ParseCronExpression parses a 5-field cron expression. Each field accepts
// "*", single values, ranges (n-m), steps (*/s or n-m/s), and
// comma-separated lists of any of those.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	ce := &CronExpression{raw: expr}
	for i, spec := range []struct {
		name     string
		dest     *cronField
		min, max int
	}{
		{"minute", &ce.minutes, 0, 59},
		{"hour", &ce.hours, 0, 23},
		{"day", &ce.days, 1, 31},
		{"month", &ce.months, 1, 12},
		{"weekday", &ce.weekdays, 0, 6},
	} {
		mask, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dest = mask
	}

	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return ce
}

// parseCronField builds the match mask for one field. The field is a
// comma-separated list; each element is "*", "n", or "n-m", optionally
// followed by "/step".
func parseCronField(field string, min, max int) (cronField, error) {
	var mask cronField

	for _, part := range strings.Split(field, ",") {
		base, stepStr, hasStep := strings.Cut(part, "/")

		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("invalid step value: %s", stepStr)
			}
			step = s
		}

		start, end := min, max
		switch {
		case base == "*":
			// full domain
		case strings.Contains(base, "-"):
			lo, hi, _ := strings.Cut(base, "-")
			var err error
			if start, err = strconv.Atoi(lo); err != nil {
				return 0, fmt.Errorf("invalid range start: %s", lo)
			}
			if end, err = strconv.Atoi(hi); err != nil {
				return 0, fmt.Errorf("invalid range end: %s", hi)
			}
		default:
			v, err := strconv.Atoi(strings.TrimSpace(base))
			if err != nil {
				return 0, fmt.Errorf("invalid value: %s", base)
			}
			start, end = v, v
			if hasStep {
				// "n/s" counts from n to the end of the domain.
				end = max
			}
		}

		if start < min || end > max || start > end {
			return 0, fmt.Errorf("value out of range [%d-%d]: %s", min, max, part)
		}

		for v := start; v <= end; v += step {
			mask |= 1 << uint(v)
		}
	}

	if mask == 0 {
		return 0, fmt.Errorf("empty field: %s", field)
	}
	return mask, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next implements Schedule. It returns the next matching time strictly
// after the given time, minute-granular.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)

	// Bounded scan: one year of minutes covers every satisfiable mask.
	const maxScan = 366 * 24 * 60
	for i := 0; i < maxScan; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}

	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes.has(t.Minute()) &&
		ce.hours.has(t.Hour()) &&
		ce.days.has(t.Day()) &&
		ce.months.has(int(t.Month())) &&
		ce.weekdays.has(int(t.Weekday()))
}
