package ui

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/pkg/timerange"
)

// TimeRangeSelector holds either a preset or an explicit custom range, never
// both.
type TimeRangeSelector struct {
	clock    clock.PassiveClock
	current  timerange.TimeRange
	onChange func(timerange.TimeRange)
}

// NewTimeRangeSelector starts from initial, or the default preset when it is
// zero. clk may be nil.
func NewTimeRangeSelector(initial timerange.TimeRange, clk clock.PassiveClock, onChange func(timerange.TimeRange)) *TimeRangeSelector {
	if initial.IsZero() {
		initial = timerange.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &TimeRangeSelector{clock: clk, current: initial, onChange: onChange}
}

// Range returns the active time range.
func (s *TimeRangeSelector) Range() timerange.TimeRange {
	return s.current
}

// Label returns the trigger text.
func (s *TimeRangeSelector) Label() string {
	return s.current.Label()
}

// Options lists the presets followed by the custom entry.
func (s *TimeRangeSelector) Options() []timerange.PresetOption {
	out := make([]timerange.PresetOption, 0, len(timerange.Presets)+1)
	out = append(out, timerange.Presets...)
	return append(out, timerange.PresetOption{Key: timerange.CustomKey, Label: "Custom range"})
}

// SelectedPreset returns the preset key, or "custom" for an explicit range.
func (s *TimeRangeSelector) SelectedPreset() string {
	if s.current.IsPreset() {
		return s.current.PresetKey()
	}
	return timerange.CustomKey
}

// PresetKey returns the preset key, "" for an explicit range.
func (s *TimeRangeSelector) PresetKey() string {
	return s.current.PresetKey()
}

// Bounds returns the explicit bounds as RFC3339, both empty for a preset.
func (s *TimeRangeSelector) Bounds() (start, end string) {
	from, to, ok := s.current.Bounds()
	if !ok {
		return "", ""
	}
	return from.Format(time.RFC3339), to.Format(time.RFC3339)
}

// SelectPreset activates a preset and drops any explicit bounds.
func (s *TimeRangeSelector) SelectPreset(key string) error {
	if _, ok := timerange.LookupPreset(key); !ok {
		return fmt.Errorf("unknown time range preset %q", key)
	}
	s.set(timerange.Preset(key))
	return nil
}

// ApplyCustom activates an explicit range. Both values accept RFC3339 or a
// relative expression such as "now-2h".
func (s *TimeRangeSelector) ApplyCustom(start, end string) error {
	now := s.clock.Now()
	from, err := timerange.ParseTime(start, now)
	if err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	to, err := timerange.ParseTime(end, now)
	if err != nil {
		return fmt.Errorf("invalid end time: %w", err)
	}
	tr, err := timerange.Custom(from, to)
	if err != nil {
		return err
	}
	s.set(tr)
	return nil
}

func (s *TimeRangeSelector) set(tr timerange.TimeRange) {
	if s.current.Equal(tr) {
		return
	}
	s.current = tr
	if s.onChange != nil {
		s.onChange(tr)
	}
}
