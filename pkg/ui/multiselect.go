package ui

import (
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// Option is one choice of a filter control.
type Option struct {
	Value string
	// Label defaults to Value.
	Label string
	Count int64
	// HasCount is false for options that were not returned by a facet query,
	// e.g. a selection restored from flags.
	HasCount bool
}

// DisplayLabel returns the label with its count, e.g. "HTTPProxy (4)".
func (o Option) DisplayLabel() string {
	label := o.Label
	if label == "" {
		label = o.Value
	}
	if o.HasCount {
		return fmt.Sprintf("%s (%d)", label, o.Count)
	}
	return label
}

// OptionsFromFacets converts facet values into options, keeping their order.
// labelFn may be nil.
func OptionsFromFacets(values []v1alpha1.FacetValue, labelFn func(string) string) []Option {
	out := make([]Option, 0, len(values))
	for _, v := range values {
		label := v.Value
		if labelFn != nil {
			label = labelFn(v.Value)
		}
		out = append(out, Option{Value: v.Value, Label: label, Count: v.Count, HasCount: true})
	}
	return out
}

// MultiSelect is the state of a multi-valued filter control (kinds, actors,
// namespaces, API groups, verbs). Every change emits the full replacement
// set, never a delta.
type MultiSelect struct {
	Name     string
	options  []Option
	selected []string
	onChange func([]string)
}

// NewMultiSelect returns a control with an initial selection. onChange may be
// nil.
func NewMultiSelect(name string, options []Option, selected []string, onChange func([]string)) *MultiSelect {
	return &MultiSelect{
		Name:     name,
		options:  options,
		selected: uniqueValues(selected),
		onChange: onChange,
	}
}

// SetOptions replaces the options, e.g. after facets reload. The selection is
// kept.
func (m *MultiSelect) SetOptions(options []Option) {
	m.options = options
}

// Options returns the options followed by any selected value that is not
// among them, so a selection never disappears from the list.
func (m *MultiSelect) Options() []Option {
	out := slices.Clone(m.options)
	for _, v := range m.selected {
		if !slices.ContainsFunc(m.options, func(o Option) bool { return o.Value == v }) {
			out = append(out, Option{Value: v, Label: v})
		}
	}
	return out
}

// Selected returns a copy of the selection.
func (m *MultiSelect) Selected() []string {
	return slices.Clone(m.selected)
}

// IsSelected reports whether value is selected.
func (m *MultiSelect) IsSelected(value string) bool {
	return slices.Contains(m.selected, value)
}

// Label is the compact trigger text: "All" for an empty selection, the
// option label for a single selection, "N selected" otherwise.
func (m *MultiSelect) Label() string {
	switch len(m.selected) {
	case 0:
		return "All"
	case 1:
		for _, o := range m.options {
			if o.Value == m.selected[0] && o.Label != "" {
				return o.Label
			}
		}
		return m.selected[0]
	}
	return fmt.Sprintf("%d selected", len(m.selected))
}

// Toggle adds or removes value.
func (m *MultiSelect) Toggle(value string) {
	next := slices.Clone(m.selected)
	if i := slices.Index(next, value); i >= 0 {
		next = slices.Delete(next, i, i+1)
	} else {
		next = append(next, value)
	}
	m.SetSelected(next)
}

// SetSelected replaces the selection.
func (m *MultiSelect) SetSelected(values []string) {
	m.selected = uniqueValues(values)
	m.emit()
}

// uniqueValues drops repeated values, keeping the first occurrence.
func uniqueValues(values []string) []string {
	seen := sets.New[string]()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen.Has(v) {
			continue
		}
		seen.Insert(v)
		out = append(out, v)
	}
	return out
}

// Clear empties the selection ("All").
func (m *MultiSelect) Clear() {
	if len(m.selected) == 0 {
		return
	}
	m.SetSelected(nil)
}

func (m *MultiSelect) emit() {
	if m.onChange != nil {
		m.onChange(slices.Clone(m.selected))
	}
}
