package bazi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first layout that parses wins, so an
// ambiguous "02/03/2024" resolves day-first.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01-02-2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02.01.2006",
	"01.02.2006",
	"2006.01.02",
	"Mon 01/02/2006",
	"Jan 2, 2006",
}

var clockLayouts = []string{
	"15:04",
	"03:04 PM",
	"3:04 PM",
	"03:04PM",
}

// DateKeyLayout is the canonical calendar-date key used by reading sources.
const DateKeyLayout = "2006-01-02"

// ValidationError reports which birth field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseDate parses s against the supported layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseDateRelative accepts the relative words today, tomorrow and yesterday
// in addition to everything ParseDate understands.
func ParseDateRelative(s string, now time.Time) (time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	return ParseDate(s)
}

// NormalizeDateKey returns the YYYY-MM-DD key for any supported date spelling.
func NormalizeDateKey(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateKeyLayout), nil
}

// ParseBirthTime returns the 24-hour HH:MM form of s.
func ParseBirthTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("unrecognized time %q", s)
}

// ParseTimezone accepts an IANA zone name or a fixed offset written as
// UTC+08:00, UTC-5 or UTC+05:30.
func ParseTimezone(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	upper := strings.ToUpper(s)
	if upper == "UTC" || upper == "GMT" {
		return time.UTC, nil
	}
	if strings.HasPrefix(upper, "UTC+") || strings.HasPrefix(upper, "UTC-") {
		offset, err := parseOffset(upper[3:])
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", s, err)
		}
		return time.FixedZone(upper, offset), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", s, err)
	}
	return loc, nil
}

func parseOffset(v string) (int, error) {
	sign := 1
	if v[0] == '-' {
		sign = -1
	}
	v = v[1:]
	hoursPart, minutesPart, hasMinutes := strings.Cut(v, ":")
	hours, err := strconv.Atoi(hoursPart)
	if err != nil {
		return 0, fmt.Errorf("bad hour offset")
	}
	minutes := 0
	if hasMinutes {
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes < 0 || minutes >= 60 {
			return 0, fmt.Errorf("bad minute offset")
		}
	}
	if hours < 0 || hours > 14 {
		return 0, fmt.Errorf("offset out of range")
	}
	return sign * (hours*3600 + minutes*60), nil
}

// ValidateBirth checks the three birth fields and returns a *ValidationError
// naming the first bad one.
func ValidateBirth(date, clock, timezone string) error {
	if _, err := ParseDate(date); err != nil {
		return &ValidationError{Field: "birth_date", Reason: err.Error()}
	}
	if _, err := ParseBirthTime(clock); err != nil {
		return &ValidationError{Field: "birth_time", Reason: "use HH:MM (24-hour)"}
	}
	if _, err := ParseTimezone(timezone); err != nil {
		return &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	return nil
}
