// Package clock implements the two pure date/time conversions the
// registration engine needs: wall-clock (date, time, zone) to instant and
// back. Both honor IANA zone transition rules.
package clock

import (
	"fmt"
	"time"
)

// ToInstant converts a wall-clock date+time in the given IANA zone to an
// absolute instant. An empty tz is interpreted as UTC, keeping conversions
// deterministic in tests that don't care about zones.
//
// Spring-forward: a wall time that does not exist in the zone (e.g.
// 02:30 on a spring-forward day) is rounded forward to the next
// representable minute. Fall-back: an ambiguous wall time (one that occurs
// twice) resolves to the first, earlier instant.
func ToInstant(date, wallTime, tz string) (time.Time, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}

	y, m, d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	h, mi, err := parseTime(wallTime)
	if err != nil {
		return time.Time{}, err
	}

	// time.Date moves a nonexistent wall time across the gap in either
	// direction depending on the zone, and may pick either offset for an
	// ambiguous one, so both cases are resolved from the zone's bounds: a
	// gap resolves to the transition that ends it, an overlap to the
	// pre-transition offset.
	t := time.Date(y, m, d, h, mi, 0, 0, loc)
	start, end := t.ZoneBounds()
	if t.Day() != d || t.Hour() != h || t.Minute() != mi {
		if !end.IsZero() && end.Sub(t) < t.Sub(start) {
			return end, nil
		}
		return start, nil
	}
	_, off := t.Zone()
	if _, prevOff := start.Add(-time.Second).Zone(); !start.IsZero() && prevOff > off && t.Sub(start) < time.Duration(prevOff-off)*time.Second {
		return t.Add(-time.Duration(prevOff-off) * time.Second), nil
	}
	return t, nil
}

// FromInstant converts an absolute instant to a wall-clock (date, time) pair
// in the given IANA zone.
func FromInstant(instant time.Time, tz string) (date string, wallTime string, err error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return "", "", err
	}
	local := instant.In(loc)
	return local.Format("2006-01-02"), local.Format("15:04"), nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clock: unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

func parseDate(date string) (year int, month time.Month, day int, err error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("clock: invalid date %q: %w", date, err)
	}
	y, m, d := t.Date()
	return y, m, d, nil
}

func parseTime(wallTime string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", wallTime)
	if err != nil {
		return 0, 0, fmt.Errorf("clock: invalid time %q: %w", wallTime, err)
	}
	return t.Hour(), t.Minute(), nil
}
