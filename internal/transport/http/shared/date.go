package shared

import (
	"errors"
	"time"
)

var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// ParseDay returns local midnight of the calendar day named by value, or of
// now's day in loc when value is empty. RFC3339 input keeps its wall-clock
// date rather than being shifted into loc.
func ParseDay(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		now = now.In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, value); err != nil {
			return time.Time{}, ErrInvalidDate
		}
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), nil
}
