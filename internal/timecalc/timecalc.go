// Package timecalc provides UTC wall-clock arithmetic for the daily schedule.
//
// Every wall-clock value in the school is interpreted as UTC. This is not a
// timezone engine: a school runs in a single timezone and storing its local
// clock as UTC keeps date comparisons stable across servers.
package timecalc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is the length of a schedule day.
	MinutesPerDay = 24 * 60

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ErrInvalidFormat is returned for malformed "HH:MM" or "YYYY-MM-DD" strings.
var ErrInvalidFormat = errors.New("invalid format")

// TimeToMinutes converts "HH:MM" into minutes since midnight.
// Out-of-range fields are rejected rather than wrapped.
func TimeToMinutes(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidFormat, clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: hour in %q", ErrInvalidFormat, clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: minute in %q", ErrInvalidFormat, clock)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidFormat, clock)
	}

	return hour*60 + minute, nil
}

// MinutesToTime renders minutes since midnight as "HH:MM".
// Values outside a day wrap modulo 24h; the result is display-only.
func MinutesToTime(minutes int) string {
	m := ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddMinutesToTime shifts "HH:MM" by delta minutes, which may be negative.
func AddMinutesToTime(clock string, delta int) (string, error) {
	minutes, err := TimeToMinutes(clock)
	if err != nil {
		return "", err
	}
	return MinutesToTime(minutes + delta), nil
}

// ParseDate parses "YYYY-MM-DD" as a UTC midnight.
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFormat, date)
	}
	return t, nil
}

// CreateUTCDateTime combines a calendar date and a wall-clock time into a UTC instant.
func CreateUTCDateTime(date, clock string) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := TimeToMinutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}

// IsSameUTCDate reports whether both instants fall on the same UTC calendar date.
func IsSameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate renders the UTC calendar date of t.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatClock renders the UTC wall-clock time of t.
func FormatClock(t time.Time) string {
	return t.UTC().Format(ClockLayout)
}

// MinutesOfDay returns the minutes since UTC midnight of t.
func MinutesOfDay(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// StartOfDay truncates t to its UTC midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
