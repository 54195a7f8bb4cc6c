package shift

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a time of day stored as the offset from midnight.
type Clock time.Duration

func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05"} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return Clock(time.Duration(parsed.Hour())*time.Hour +
				time.Duration(parsed.Minute())*time.Minute +
				time.Duration(parsed.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", value)
}

func MustClock(value string) Clock {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()))
}

// ClockFromSeconds converts a seconds-since-midnight column value.
func ClockFromSeconds(seconds int64) Clock {
	return Clock(time.Duration(seconds) * time.Second)
}

func (c Clock) Seconds() int64 {
	return int64(time.Duration(c) / time.Second)
}

func (c Clock) String() string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// DateOf returns midnight of t's calendar date in t's location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateIn reinterprets the calendar date of t (as scanned from a DATE column) in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type ScheduleDay struct {
	Weekday   time.Weekday `json:"weekday"`
	Selected  bool         `json:"selected"`
	WorkStart *Clock       `json:"workStart,omitempty"`
	WorkEnd   *Clock       `json:"workEnd,omitempty"`
}

// Overnight reports whether the shift ends on the following calendar date.
func (d ScheduleDay) Overnight() bool {
	return d.WorkStart != nil && d.WorkEnd != nil && *d.WorkStart > *d.WorkEnd
}

type Holiday struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
}

// Tolerance holds the grace bands of a schedule. Unset bands fall back to
// the shift boundaries.
type Tolerance struct {
	LateStart       *Clock `json:"lateStart,omitempty"`
	LateEnd         *Clock `json:"lateEnd,omitempty"`
	LateCutoff      *Clock `json:"lateCutoff,omitempty"`
	EarlyLeaveStart *Clock `json:"earlyLeaveStart,omitempty"`
	EarlyLeaveEnd   *Clock `json:"earlyLeaveEnd,omitempty"`
}

type Schedule struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Tolerance Tolerance     `json:"tolerance"`
	Days      []ScheduleDay `json:"days"`
	Holidays  []Holiday     `json:"holidays,omitempty"`
}

func (s Schedule) Day(weekday time.Weekday) (ScheduleDay, bool) {
	for _, d := range s.Days {
		if d.Weekday == weekday {
			return d, true
		}
	}
	return ScheduleDay{}, false
}

func (s Schedule) IsHoliday(date time.Time) bool {
	for _, h := range s.Holidays {
		if SameDate(h.Date, date) {
			return true
		}
	}
	return false
}

// WorksOn reports whether date is a selected weekday with hours and not a holiday.
func (s Schedule) WorksOn(date time.Time) bool {
	if s.IsHoliday(date) {
		return false
	}
	d, ok := s.Day(date.Weekday())
	return ok && d.Selected && d.WorkStart != nil && d.WorkEnd != nil
}
