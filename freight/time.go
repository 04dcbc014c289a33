package freight

import (
	"time"
)

// =============================================================================
// CLOCK - Injectable "now" so time-window queries are reproducible
// =============================================================================

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in the given location (Local if nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// FixedClock always returns the same instant. Used by tests and scenarios.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// =============================================================================
// TIME WINDOWS
// =============================================================================
// All windows are half-open [Start, End) in the location of the reference
// instant.

type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// DayWindow covers the calendar day of t.
func DayWindow(t time.Time) Window {
	start := StartOfDay(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// MonthWindow covers the calendar month of t, last day included in full.
func MonthWindow(t time.Time) Window {
	start := StartOfMonth(t)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// LastDayOfMonth returns midnight of the last calendar day in t's month.
func LastDayOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, -1)
}
