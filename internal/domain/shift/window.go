package shift

import (
	"errors"
	"time"
)

var ErrNotWorkingDay = errors.New("not a working day")

// Window is the resolved [Start, End) of a shift. Date is the calendar date
// the shift is attributed to, which for an overnight shift that began
// yesterday is the previous day.
type Window struct {
	Start     time.Time
	End       time.Time
	Date      time.Time
	WorkStart Clock
	WorkEnd   Clock
}

func (w Window) Overnight() bool {
	return w.WorkStart > w.WorkEnd
}

// At places a time of day inside the window. On overnight shifts clock
// values earlier than the shift start belong to the following date.
func (w Window) At(c Clock) time.Time {
	day := w.Date
	if w.Overnight() && c < w.WorkStart {
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(time.Duration(c))
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// windowOn builds the window of the shift that starts on anchor, using
// anchor's own weekday hours. It fails when anchor is not a working day.
func (s Schedule) windowOn(anchor time.Time) (Window, bool) {
	if !s.WorksOn(anchor) {
		return Window{}, false
	}
	sd, _ := s.Day(anchor.Weekday())
	w := Window{Date: anchor, WorkStart: *sd.WorkStart, WorkEnd: *sd.WorkEnd}
	w.Start = w.At(w.WorkStart)
	w.End = w.At(w.WorkEnd)
	return w, true
}

// distance is how far t lies outside the window; zero inside it.
func (w Window) distance(t time.Time) time.Duration {
	switch {
	case t.Before(w.Start):
		return w.Start.Sub(t)
	case !t.Before(w.End):
		return t.Sub(w.End)
	}
	return 0
}

// reach is half the off-shift gap around w. Punches farther than that from
// an overnight window belong to no occurrence of it.
func (w Window) reach() time.Duration {
	return (24*time.Hour - w.End.Sub(w.Start)) / 2
}

// Resolve computes the shift window of schedule s current on the calendar
// date of date. Overnight shifts are disambiguated with the time of day of
// now: a shift that began yesterday wins while it is still running, and
// before today's start. Working-day and holiday checks apply to the date
// the window starts on.
func Resolve(s Schedule, date, now time.Time) (Window, error) {
	day := DateOf(date)
	clock := ClockOf(now)

	prev, prevOK := s.windowOn(day.AddDate(0, 0, -1))
	prevOK = prevOK && prev.Overnight()
	if prevOK && clock < prev.WorkEnd {
		return prev, nil
	}
	if cur, ok := s.windowOn(day); ok {
		if cur.Overnight() && clock < cur.WorkStart && prevOK {
			return prev, nil
		}
		return cur, nil
	}
	if prevOK {
		return prev, nil
	}
	return Window{}, ErrNotWorkingDay
}

// ResolveAt attributes the punch instant t to a shift window: yesterday's
// overnight shift or today's shift, whichever contains t or lies closer.
// Ties go to today's shift. Overnight windows only claim punches within
// their reach; day shifts keep every punch of their own date.
func ResolveAt(s Schedule, t time.Time) (Window, error) {
	day := DateOf(t)
	var best Window
	bestDist := time.Duration(-1)
	for _, anchor := range []time.Time{day.AddDate(0, 0, -1), day} {
		w, ok := s.windowOn(anchor)
		if !ok {
			continue
		}
		if anchor.Before(day) && !w.Overnight() {
			continue
		}
		d := w.distance(t)
		if w.Overnight() && d > w.reach() {
			continue
		}
		if bestDist < 0 || d <= bestDist {
			best, bestDist = w, d
		}
	}
	if bestDist < 0 {
		return Window{}, ErrNotWorkingDay
	}
	return best, nil
}
