package ui

import (
	"fmt"
	"slices"
	"strings"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// All is the sentinel value of a toggle group that applies no constraint.
const All = "all"

// Verbs offered by the audit log verb toggle.
var Verbs = []string{"create", "update", "patch", "delete"}

// ToggleOption is one value of a closed enumeration.
type ToggleOption struct {
	Value string
	Label string
}

// ToggleGroup holds exactly one selected value out of a closed enumeration
// that always includes All.
type ToggleGroup struct {
	Name     string
	options  []ToggleOption
	selected string
	onChange func(string)
}

// NewToggleGroup returns a group. An empty selected value means All. The All
// option is added when options lack it.
func NewToggleGroup(name string, options []ToggleOption, selected string, onChange func(string)) (*ToggleGroup, error) {
	if !slices.ContainsFunc(options, func(o ToggleOption) bool { return o.Value == All }) {
		options = append([]ToggleOption{{Value: All, Label: "All"}}, options...)
	}
	g := &ToggleGroup{Name: name, options: options, selected: All, onChange: onChange}
	if selected != "" && selected != All {
		if !g.has(selected) {
			return nil, fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(g.Values(), ", "), selected)
		}
		g.selected = selected
	}
	return g, nil
}

// NewChangeSourceToggle returns the all/human/system group.
func NewChangeSourceToggle(selected string, onChange func(string)) (*ToggleGroup, error) {
	return NewToggleGroup("change source", []ToggleOption{
		{Value: All, Label: "All"},
		{Value: v1alpha1.ChangeSourceHuman, Label: "Human"},
		{Value: v1alpha1.ChangeSourceSystem, Label: "System"},
	}, selected, onChange)
}

// NewVerbToggle returns the all/create/update/patch/delete group.
func NewVerbToggle(selected string, onChange func(string)) (*ToggleGroup, error) {
	opts := []ToggleOption{{Value: All, Label: "All"}}
	for _, v := range Verbs {
		opts = append(opts, ToggleOption{Value: v, Label: strings.ToUpper(v[:1]) + v[1:]})
	}
	return NewToggleGroup("verb", opts, selected, onChange)
}

func (g *ToggleGroup) has(value string) bool {
	return slices.ContainsFunc(g.options, func(o ToggleOption) bool { return o.Value == value })
}

// Options returns the enumeration in display order.
func (g *ToggleGroup) Options() []ToggleOption {
	return slices.Clone(g.options)
}

// Values returns the enumeration values.
func (g *ToggleGroup) Values() []string {
	out := make([]string, 0, len(g.options))
	for _, o := range g.options {
		out = append(out, o.Value)
	}
	return out
}

// Selected returns the selected value, All when unconstrained.
func (g *ToggleGroup) Selected() string {
	return g.selected
}

// FilterValue returns the selection as a filter value: "" for All.
func (g *ToggleGroup) FilterValue() string {
	if g.selected == All {
		return ""
	}
	return g.selected
}

// Select changes the selection. Values outside the enumeration are rejected.
func (g *ToggleGroup) Select(value string) error {
	if value == "" {
		value = All
	}
	if !g.has(value) {
		return fmt.Errorf("%s must be one of %s, got %q", g.Name, strings.Join(g.Values(), ", "), value)
	}
	if value == g.selected {
		return nil
	}
	g.selected = value
	if g.onChange != nil {
		g.onChange(value)
	}
	return nil
}

// Next selects the following value, wrapping around.
func (g *ToggleGroup) Next() {
	i := slices.IndexFunc(g.options, func(o ToggleOption) bool { return o.Value == g.selected })
	_ = g.Select(g.options[(i+1)%len(g.options)].Value)
}
