// Package filter holds the activity filter state shared by the feed, the facet
// loader and the command line. Fields are combined with AND; values inside a
// multi-valued field are combined with OR. An empty field never constrains.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/klog/v2"

	"go.miloapis.com/activityfeed/internal/cel"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// Field names accepted by Without. They match the facet field paths.
const (
	FieldChangeSource = v1alpha1.FacetFieldChangeSource
	FieldKind         = v1alpha1.FacetFieldResourceKind
	FieldActor        = v1alpha1.FacetFieldActorName
	FieldAPIGroup     = v1alpha1.FacetFieldAPIGroup
	FieldNamespace    = v1alpha1.FacetFieldResourceNamespace
	FieldResourceName = "spec.resource.name"
	FieldResourceUID  = "spec.resource.uid"
	FieldSearch       = "search"
	FieldExpression   = "filter"
)

// Filters is the user-selected filter state.
type Filters struct {
	// ChangeSource is "", "human" or "system".
	ChangeSource  string
	ResourceKinds []string
	ActorNames    []string
	APIGroups     []string
	Namespaces    []string
	// ResourceName matches as a case-insensitive substring.
	ResourceName string
	// Search is free text passed to the server's full-text search.
	Search      string
	ResourceUID string
	// Expression is an additional CEL expression ANDed with the rest.
	Expression string
}

// IsEmpty reports whether f places no constraint at all.
func (f Filters) IsEmpty() bool {
	return f.ChangeSource == "" && len(f.ResourceKinds) == 0 && len(f.ActorNames) == 0 &&
		len(f.APIGroups) == 0 && len(f.Namespaces) == 0 && f.ResourceName == "" &&
		f.Search == "" && f.ResourceUID == "" && strings.TrimSpace(f.Expression) == ""
}

// Clone returns a copy that shares no slices with f.
func (f Filters) Clone() Filters {
	out := f
	out.ResourceKinds = slices.Clone(f.ResourceKinds)
	out.ActorNames = slices.Clone(f.ActorNames)
	out.APIGroups = slices.Clone(f.APIGroups)
	out.Namespaces = slices.Clone(f.Namespaces)
	return out
}

// Equal compares two filter sets. Multi-valued fields compare as sets.
func (f Filters) Equal(o Filters) bool {
	return f.ChangeSource == o.ChangeSource &&
		sameSet(f.ResourceKinds, o.ResourceKinds) &&
		sameSet(f.ActorNames, o.ActorNames) &&
		sameSet(f.APIGroups, o.APIGroups) &&
		sameSet(f.Namespaces, o.Namespaces) &&
		f.ResourceName == o.ResourceName &&
		f.Search == o.Search &&
		f.ResourceUID == o.ResourceUID &&
		strings.TrimSpace(f.Expression) == strings.TrimSpace(o.Expression)
}

// Without returns a copy of f with the named field cleared. Facet queries use
// it so that a field's options are counted without its own selection.
func (f Filters) Without(field string) Filters {
	out := f.Clone()
	switch field {
	case FieldChangeSource:
		out.ChangeSource = ""
	case FieldKind:
		out.ResourceKinds = nil
	case FieldActor:
		out.ActorNames = nil
	case FieldAPIGroup:
		out.APIGroups = nil
	case FieldNamespace:
		out.Namespaces = nil
	case FieldResourceName:
		out.ResourceName = ""
	case FieldResourceUID:
		out.ResourceUID = ""
	case FieldSearch:
		out.Search = ""
	case FieldExpression:
		out.Expression = ""
	}
	return out
}

// Values returns the selection of a multi-valued field, nil for other fields.
func (f Filters) Values(field string) []string {
	switch field {
	case FieldKind:
		return f.ResourceKinds
	case FieldActor:
		return f.ActorNames
	case FieldAPIGroup:
		return f.APIGroups
	case FieldNamespace:
		return f.Namespaces
	}
	return nil
}

// WithValues returns a copy of f with the selection of a multi-valued field
// replaced. Other fields are ignored.
func (f Filters) WithValues(field string, values []string) Filters {
	out := f.Clone()
	if len(values) == 0 {
		values = nil
	}
	switch field {
	case FieldKind:
		out.ResourceKinds = values
	case FieldActor:
		out.ActorNames = values
	case FieldAPIGroup:
		out.APIGroups = values
	case FieldNamespace:
		out.Namespaces = values
	}
	return out
}

// Validate checks the change source and compiles the CEL expression.
func (f Filters) Validate() error {
	switch f.ChangeSource {
	case "", v1alpha1.ChangeSourceHuman, v1alpha1.ChangeSourceSystem:
	default:
		return fmt.Errorf("change source must be %q or %q, got %q",
			v1alpha1.ChangeSourceHuman, v1alpha1.ChangeSourceSystem, f.ChangeSource)
	}
	if strings.TrimSpace(f.Expression) != "" {
		if _, err := cel.CompileActivityFilter(f.Expression); err != nil {
			return fmt.Errorf("invalid filter expression: %w", err)
		}
	}
	return nil
}

// CEL renders the structured fields as a server-side CEL filter. Search is not
// included: it travels in the query's search field. The free-form Expression
// is appended as "(fields) && (expression)".
func (f Filters) CEL() string {
	var clauses []string

	if f.ChangeSource != "" {
		clauses = append(clauses, fmt.Sprintf("spec.changeSource == '%s'", EscapeCELString(f.ChangeSource)))
	}
	clauses = appendIn(clauses, "spec.resource.kind", f.ResourceKinds)
	clauses = appendIn(clauses, "spec.actor.name", f.ActorNames)
	clauses = appendIn(clauses, "spec.resource.apiGroup", f.APIGroups)
	clauses = appendIn(clauses, "spec.resource.namespace", f.Namespaces)
	if f.ResourceName != "" {
		clauses = append(clauses, fmt.Sprintf("spec.resource.name.contains('%s')", EscapeCELString(f.ResourceName)))
	}
	if f.ResourceUID != "" {
		clauses = append(clauses, fmt.Sprintf("spec.resource.uid == '%s'", EscapeCELString(f.ResourceUID)))
	}

	combined := strings.Join(clauses, " && ")

	if expr := strings.TrimSpace(f.Expression); expr != "" {
		if combined != "" {
			combined = fmt.Sprintf("(%s) && (%s)", combined, expr)
		} else {
			combined = expr
		}
	}
	return combined
}

// searchPaths are the fields the free-text search looks at.
var searchPaths = []string{"spec.summary", "spec.actor.name", "spec.resource.name", "spec.resource.kind"}

// FacetCEL is CEL with the free-text search folded in, for facet queries,
// which have no search field. Each search term must be contained in one of
// the searched fields. Unlike the list search the match is case-sensitive.
func (f Filters) FacetCEL() string {
	terms := strings.Fields(f.Search)
	if len(terms) == 0 {
		return f.CEL()
	}
	clauses := make([]string, 0, len(terms)+1)
	for _, term := range terms {
		alternatives := make([]string, 0, len(searchPaths))
		for _, path := range searchPaths {
			alternatives = append(alternatives, fmt.Sprintf("%s.contains('%s')", path, EscapeCELString(term)))
		}
		clauses = append(clauses, "("+strings.Join(alternatives, " || ")+")")
	}
	if rest := f.CEL(); rest != "" {
		clauses = append(clauses, "("+rest+")")
	}
	return strings.Join(clauses, " && ")
}

func appendIn(clauses []string, path string, values []string) []string {
	switch len(values) {
	case 0:
		return clauses
	case 1:
		return append(clauses, fmt.Sprintf("%s == '%s'", path, EscapeCELString(values[0])))
	}
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+EscapeCELString(v)+"'")
	}
	return append(clauses, fmt.Sprintf("%s in [%s]", path, strings.Join(quoted, ", ")))
}

// FieldSelector renders the fields a watch can filter on server-side. Only
// single values map onto a field selector; multi-valued fields, substring
// matches and the CEL expression are left to the client-side predicate.
func (f Filters) FieldSelector() string {
	set := fields.Set{}
	if f.ChangeSource != "" {
		set["spec.changeSource"] = f.ChangeSource
	}
	if len(f.ResourceKinds) == 1 {
		set["spec.resource.kind"] = f.ResourceKinds[0]
	}
	if len(f.ActorNames) == 1 {
		set["spec.actor.name"] = f.ActorNames[0]
	}
	if len(f.APIGroups) == 1 {
		set["spec.resource.apiGroup"] = f.APIGroups[0]
	}
	if len(f.Namespaces) == 1 {
		set["spec.resource.namespace"] = f.Namespaces[0]
	}
	if f.ResourceUID != "" {
		set["spec.resource.uid"] = f.ResourceUID
	}
	if len(set) == 0 {
		return ""
	}
	return fields.SelectorFromSet(set).String()
}

// MatchesFields evaluates the structured fields against a. The CEL expression
// is not consulted; use Compile for the full predicate.
func (f Filters) MatchesFields(a *v1alpha1.Activity) bool {
	if a == nil {
		return false
	}
	if f.ChangeSource != "" && a.Spec.ChangeSource != f.ChangeSource {
		return false
	}
	if !oneOf(f.ResourceKinds, a.Spec.Resource.Kind) ||
		!oneOf(f.ActorNames, a.Spec.Actor.Name) ||
		!oneOf(f.APIGroups, a.Spec.Resource.APIGroup) ||
		!oneOf(f.Namespaces, a.Spec.Resource.Namespace) {
		return false
	}
	if f.ResourceName != "" && !containsFold(a.Spec.Resource.Name, f.ResourceName) {
		return false
	}
	if f.ResourceUID != "" && a.Spec.Resource.UID != f.ResourceUID {
		return false
	}
	if f.Search != "" && !matchesSearch(a, f.Search) {
		return false
	}
	return true
}

func oneOf(allowed []string, v string) bool {
	return len(allowed) == 0 || slices.Contains(allowed, v)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// matchesSearch approximates the server's full-text search over the summary,
// actor and resource identity.
func matchesSearch(a *v1alpha1.Activity, q string) bool {
	for _, term := range strings.Fields(q) {
		if !containsFold(a.Spec.Summary, term) &&
			!containsFold(a.Spec.Actor.Name, term) &&
			!containsFold(a.Spec.Resource.Name, term) &&
			!containsFold(a.Spec.Resource.Kind, term) {
			return false
		}
	}
	return true
}

// Predicate is a compiled form of Filters for repeated client-side matching.
type Predicate struct {
	filters Filters
	expr    *cel.ActivityFilter
}

// Compile validates f and returns its predicate.
func (f Filters) Compile() (*Predicate, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := &Predicate{filters: f.Clone()}
	if strings.TrimSpace(f.Expression) != "" {
		expr, err := cel.CompileActivityFilter(f.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression: %w", err)
		}
		p.expr = expr
	}
	return p, nil
}

// Filters returns the filter set p was compiled from.
func (p *Predicate) Filters() Filters {
	return p.filters.Clone()
}

// Matches reports whether a passes every constraint. Evaluation errors count
// as a miss.
func (p *Predicate) Matches(a *v1alpha1.Activity) bool {
	if p == nil {
		return a != nil
	}
	if !p.filters.MatchesFields(a) {
		return false
	}
	ok, err := p.expr.Matches(a)
	if err != nil {
		klog.V(4).InfoS("Filter expression evaluation failed", "activity", a.Name, "err", err)
		return false
	}
	return ok
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
