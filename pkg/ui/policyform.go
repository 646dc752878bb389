package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// Discovery lists the API groups and resources offered by the policy form.
type Discovery interface {
	GetAllAPIGroups(ctx context.Context) ([]string, error)
	DiscoverAPIResources(ctx context.Context, apiGroup string) (*metav1.APIResourceList, error)
}

// FieldValue is either a known option picked from discovery or free text the
// user typed for something discovery does not serve.
type FieldValue struct {
	known *Option
	text  string
}

// Known wraps a discovered option.
func Known(o Option) FieldValue {
	return FieldValue{known: &o}
}

// Freeform wraps typed text.
func Freeform(text string) FieldValue {
	return FieldValue{text: text}
}

// IsKnown reports whether the value came from discovery.
func (v FieldValue) IsKnown() bool {
	return v.known != nil
}

// Option returns the discovered option.
func (v FieldValue) Option() (Option, bool) {
	if v.known == nil {
		return Option{}, false
	}
	return *v.known, true
}

// Value returns the underlying string.
func (v FieldValue) Value() string {
	if v.known != nil {
		return v.known.Value
	}
	return v.text
}

// PolicyResourceForm edits the target resource of an ActivityPolicy.
type PolicyResourceForm struct {
	discovery Discovery
	onChange  func(v1alpha1.ActivityPolicyResource)

	groups   []Option
	kinds    []Option
	apiGroup FieldValue
	kind     FieldValue
}

// NewPolicyResourceForm returns an empty form. onChange may be nil.
func NewPolicyResourceForm(d Discovery, onChange func(v1alpha1.ActivityPolicyResource)) *PolicyResourceForm {
	return &PolicyResourceForm{discovery: d, onChange: onChange}
}

// LoadGroups fills the API group options. On failure the group field stays
// usable as free text.
func (f *PolicyResourceForm) LoadGroups(ctx context.Context) error {
	groups, err := f.discovery.GetAllAPIGroups(ctx)
	if err != nil {
		f.groups = nil
		return fmt.Errorf("failed to load API groups: %w", err)
	}
	f.groups = make([]Option, 0, len(groups))
	for _, g := range groups {
		label := g
		if g == "" {
			label = "core"
		}
		f.groups = append(f.groups, Option{Value: g, Label: label})
	}
	return nil
}

// GroupOptions returns the discovered API groups.
func (f *PolicyResourceForm) GroupOptions() []Option {
	return slices.Clone(f.groups)
}

// KindOptions returns the kinds served by the selected group.
func (f *PolicyResourceForm) KindOptions() []Option {
	return slices.Clone(f.kinds)
}

// APIGroup returns the group field.
func (f *PolicyResourceForm) APIGroup() FieldValue {
	return f.apiGroup
}

// Kind returns the kind field.
func (f *PolicyResourceForm) Kind() FieldValue {
	return f.kind
}

// SetAPIGroup sets the group and reloads the kind options for a known group.
// The kind is kept only while it stays valid for the new group.
func (f *PolicyResourceForm) SetAPIGroup(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	f.apiGroup = pick(f.groups, value)
	f.kinds = nil

	var err error
	if f.apiGroup.IsKnown() {
		err = f.loadKinds(ctx, value)
	}
	if f.kind.IsKnown() {
		f.kind = pick(f.kinds, f.kind.Value())
	}
	f.emit()
	return err
}

func (f *PolicyResourceForm) loadKinds(ctx context.Context, group string) error {
	list, err := f.discovery.DiscoverAPIResources(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to load kinds of %q: %w", group, err)
	}
	for _, r := range list.APIResources {
		if slices.ContainsFunc(f.kinds, func(o Option) bool { return o.Value == r.Kind }) {
			continue
		}
		f.kinds = append(f.kinds, Option{Value: r.Kind, Label: DeriveKindLabel(r.Kind)})
	}
	slices.SortFunc(f.kinds, func(a, b Option) int { return strings.Compare(a.Value, b.Value) })
	return nil
}

// SetKind sets the kind.
func (f *PolicyResourceForm) SetKind(value string) {
	f.kind = pick(f.kinds, strings.TrimSpace(value))
	f.emit()
}

// Resource returns the edited target.
func (f *PolicyResourceForm) Resource() v1alpha1.ActivityPolicyResource {
	return v1alpha1.ActivityPolicyResource{APIGroup: f.apiGroup.Value(), Kind: f.kind.Value()}
}

// Validate checks the form can be submitted. The core group is the empty
// string, so only the kind is required.
func (f *PolicyResourceForm) Validate() error {
	if f.kind.Value() == "" {
		return errors.New("kind is required")
	}
	return nil
}

func (f *PolicyResourceForm) emit() {
	if f.onChange != nil {
		f.onChange(f.Resource())
	}
}

func pick(options []Option, value string) FieldValue {
	for _, o := range options {
		if o.Value == value {
			return Known(o)
		}
	}
	return Freeform(value)
}
