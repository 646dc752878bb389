// Package timerange models the time window of a feed query as either a named
// relative preset or an explicit pair of absolute bounds, never both.
package timerange

import (
	"fmt"
	"time"
)

// Preset keys understood by the Activity API.
const (
	LastHour    = "now-1h"
	Last24Hours = "now-24h"
	Last7Days   = "now-7d"
	Last30Days  = "now-30d"

	// CustomKey is reported by selectors when explicit bounds are active.
	CustomKey = "custom"
)

// PresetOption is a selectable preset with its display label.
type PresetOption struct {
	Key   string
	Label string
}

// Presets lists the presets in display order.
var Presets = []PresetOption{
	{Key: LastHour, Label: "Last hour"},
	{Key: Last24Hours, Label: "Last 24 hours"},
	{Key: Last7Days, Label: "Last 7 days"},
	{Key: Last30Days, Label: "Last 30 days"},
}

// LookupPreset returns the option for key.
func LookupPreset(key string) (PresetOption, bool) {
	for _, p := range Presets {
		if p.Key == key {
			return p, true
		}
	}
	return PresetOption{}, false
}

// TimeRange is Preset(key) or Custom(start, end). The zero value is invalid;
// use Default, Preset or Custom.
type TimeRange struct {
	preset string
	start  time.Time
	end    time.Time
}

// Default is the last 24 hours.
func Default() TimeRange {
	return Preset(Last24Hours)
}

// Preset returns a relative range for key. Unknown keys are accepted so the
// server can reject them with its own message.
func Preset(key string) TimeRange {
	return TimeRange{preset: key}
}

// Custom returns an absolute range. start must be before end.
func Custom(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, fmt.Errorf("custom time range requires both start and end")
	}
	if !start.Before(end) {
		return TimeRange{}, fmt.Errorf("start time %s must be before end time %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeRange{start: start.UTC(), end: end.UTC()}, nil
}

// IsZero reports whether r is the unset zero value.
func (r TimeRange) IsZero() bool {
	return r.preset == "" && r.start.IsZero()
}

// IsPreset reports whether r is a relative preset.
func (r TimeRange) IsPreset() bool {
	return r.preset != ""
}

// PresetKey returns the preset key, or "" for custom ranges.
func (r TimeRange) PresetKey() string {
	return r.preset
}

// Bounds returns the explicit bounds of a custom range.
func (r TimeRange) Bounds() (start, end time.Time, ok bool) {
	if r.IsPreset() || r.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return r.start, r.end, true
}

// QueryBounds returns the start/end strings sent to the API: the preset key
// and "now" for presets, RFC3339 timestamps for custom ranges.
func (r TimeRange) QueryBounds() (start, end string) {
	if r.IsPreset() {
		return r.preset, "now"
	}
	if r.IsZero() {
		return Default().QueryBounds()
	}
	return r.start.Format(time.RFC3339), r.end.Format(time.RFC3339)
}

// Resolve returns absolute bounds relative to now.
func (r TimeRange) Resolve(now time.Time) (start, end time.Time, err error) {
	if r.IsZero() {
		return Default().Resolve(now)
	}
	if !r.IsPreset() {
		return r.start, r.end, nil
	}
	start, err = ParseTime(r.preset, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid preset %q: %w", r.preset, err)
	}
	return start, now, nil
}

// Equal reports whether r and other select the same window.
func (r TimeRange) Equal(other TimeRange) bool {
	return r.preset == other.preset && r.start.Equal(other.start) && r.end.Equal(other.end)
}

// Label returns a short human description.
func (r TimeRange) Label() string {
	if r.IsPreset() {
		if p, ok := LookupPreset(r.preset); ok {
			return p.Label
		}
		return r.preset
	}
	if r.IsZero() {
		return Default().Label()
	}
	return fmt.Sprintf("%s – %s", r.start.Format("2006-01-02 15:04"), r.end.Format("2006-01-02 15:04"))
}

func (r TimeRange) String() string {
	start, end := r.QueryBounds()
	return start + ".." + end
}
