package valueobject

import (
	"errors"
	"time"
)

// TimeRange is an immutable time window used to scope execution queries.
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange creates a validated TimeRange.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.After(end) {
		return TimeRange{}, errors.New("start time must be before end time")
	}

	if start.IsZero() || end.IsZero() {
		return TimeRange{}, errors.New("start and end times cannot be zero")
	}

	return TimeRange{
		start: start,
		end:   end,
	}, nil
}

// NewTimeRangeFromDuration creates a TimeRange reaching back from now.
func NewTimeRangeFromDuration(duration time.Duration) (TimeRange, error) {
	if duration <= 0 {
		return TimeRange{}, errors.New("duration must be positive")
	}

	now := time.Now()
	start := now.Add(-duration)

	return TimeRange{
		start: start,
		end:   now,
	}, nil
}

// LastNDays creates a TimeRange covering the trailing n days.
func LastNDays(n int) (TimeRange, error) {
	if n <= 0 {
		return TimeRange{}, errors.New("days must be positive")
	}
	return NewTimeRangeFromDuration(time.Duration(n) * 24 * time.Hour)
}

// Start returns the beginning of the range.
func (tr TimeRange) Start() time.Time {
	return tr.start
}

// End returns the end of the range.
func (tr TimeRange) End() time.Time {
	return tr.end
}

// Duration returns the length of the range.
func (tr TimeRange) Duration() time.Duration {
	return tr.end.Sub(tr.start)
}

// Contains reports whether t falls within the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.start) && !t.After(tr.end)
}
