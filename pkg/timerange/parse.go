package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime parses an RFC3339 timestamp or a relative expression ("now",
// "now-7d") against now. Times after now are rejected: activities and audit
// events are historical records.
func ParseTime(value string, now time.Time) (time.Time, error) {
	var parsed time.Time

	switch {
	case strings.HasPrefix(value, "now"):
		t, err := parseRelative(value, now)
		if err != nil {
			return time.Time{}, err
		}
		parsed = t
	default:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time format: %q (use RFC3339 like '2024-01-01T00:00:00Z' or relative like 'now-7d')", value)
		}
		parsed = t
	}

	if parsed.After(now) {
		return time.Time{}, fmt.Errorf("time cannot be in the future: %s", value)
	}
	return parsed, nil
}

// parseRelative handles "now" and "now-<n><unit>". Days and weeks go through
// AddDate so the wall clock survives DST transitions.
func parseRelative(expr string, now time.Time) (time.Time, error) {
	if expr == "now" {
		return now, nil
	}
	if !strings.HasPrefix(expr, "now-") {
		return time.Time{}, fmt.Errorf("relative time must be 'now' or 'now-<n><unit>' (e.g. 'now-7d'), got %q", expr)
	}

	offset := expr[len("now-"):]
	if len(offset) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration: %q (must be <number><unit>, e.g. '7d', '2h')", offset)
	}

	unit := offset[len(offset)-1]
	value, err := strconv.Atoi(offset[:len(offset)-1])
	if err != nil || value < 0 {
		return time.Time{}, fmt.Errorf("invalid duration value: %q (expected a non-negative number before the unit)", offset)
	}

	switch unit {
	case 'w':
		return now.AddDate(0, 0, -7*value), nil
	case 'd':
		return now.AddDate(0, 0, -value), nil
	case 'h':
		return now.Add(-time.Duration(value) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(value) * time.Minute), nil
	case 's':
		return now.Add(-time.Duration(value) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("invalid duration unit: %c (use s, m, h, d, or w)", unit)
	}
}

// Parse builds a TimeRange from a start/end pair as typed on a command line.
// A known preset key with an end of "now" (or empty) stays a preset; any
// other pair is resolved against now into a custom range.
func Parse(start, end string, now time.Time) (TimeRange, error) {
	if end == "" {
		end = "now"
	}
	if _, ok := LookupPreset(start); ok && end == "now" {
		return Preset(start), nil
	}

	s, err := ParseTime(start, now)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid start time: %w", err)
	}
	e, err := ParseTime(end, now)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid end time: %w", err)
	}
	return Custom(s, e)
}
