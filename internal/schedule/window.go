// internal/schedule/window.go
package schedule

import (
	"fmt"
	"time"

	appErrors "github.com/zapvia/wadispatch-backend/internal/errors"
)

// TimeOfDay is a wall-clock instant within a day, minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" 24-hour notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var tod TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &tod.Hour, &tod.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return tod, nil
}

// Minutes is the offset from midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is the daily time-of-day range plus optional inclusive calendar
// bounds inside which a campaign may send.
type Window struct {
	StartDate *time.Time
	EndDate   *time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Location  *time.Location
}

// NextAllowed returns the first instant at or after t that lies inside the
// window, or ErrWindowExhausted when no such instant exists. It is
// idempotent: applying it to its own output returns the same value.
//
// A zero-width window (StartTime == EndTime) never opens and is always
// exhausted; creation-time validation rejects it before planning, this is
// the safety net against looping forever.
func (w Window) NextAllowed(t time.Time) (time.Time, error) {
	if w.StartTime.Minutes() >= w.EndTime.Minutes() {
		return time.Time{}, appErrors.ErrWindowExhausted
	}

	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)

	if w.StartDate != nil && dayBefore(t, w.StartDate.In(loc)) {
		t = w.at(w.StartDate.In(loc), w.StartTime)
	}

	for {
		if w.EndDate != nil && dayBefore(w.EndDate.In(loc), t) {
			return time.Time{}, appErrors.ErrWindowExhausted
		}

		tod := t.Hour()*60 + t.Minute()
		switch {
		case tod < w.StartTime.Minutes():
			t = w.at(t, w.StartTime)
		case tod >= w.EndTime.Minutes():
			t = w.at(t.AddDate(0, 0, 1), w.StartTime)
		default:
			return t, nil
		}
	}
}

// at pins tod onto day's calendar date in the window's location.
func (w Window) at(day time.Time, tod TimeOfDay) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour, tod.Minute, 0, 0, loc)
}

// dayBefore reports whether a's calendar day is strictly before b's.
func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
