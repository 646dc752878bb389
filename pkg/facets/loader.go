// Package facets loads the (value, count) options shown next to each filter
// control. Each field is counted under the current filters minus that field,
// so users see the alternatives to their own selection.
package facets

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"go.miloapis.com/activityfeed/internal/metrics"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

// DefaultFields are the filterable fields with facet-backed dropdowns.
var DefaultFields = []string{
	filter.FieldKind,
	filter.FieldActor,
	filter.FieldNamespace,
	filter.FieldAPIGroup,
}

// Client fetches facet values for a single field.
type Client interface {
	GetFacets(ctx context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error)
}

// Result holds the facet values of one Load.
type Result struct {
	// Values maps a field to its options. A failed field maps to an empty
	// list.
	Values map[string][]v1alpha1.FacetValue
	// Errors holds the per-field failures.
	Errors map[string]error
	// Err aggregates Errors, nil when every field loaded.
	Err error
}

// Options returns the values of field, never nil.
func (r Result) Options(field string) []v1alpha1.FacetValue {
	if v, ok := r.Values[field]; ok && v != nil {
		return v
	}
	return []v1alpha1.FacetValue{}
}

// Loader issues one facet query per field concurrently.
type Loader struct {
	client Client
	fields []string
}

// NewLoader returns a loader for fields, or DefaultFields when none are given.
func NewLoader(c Client, fields ...string) *Loader {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Loader{client: c, fields: fields}
}

// Fields returns the fields this loader queries.
func (l *Loader) Fields() []string {
	return l.fields
}

// Load queries every field. A failing field does not block the others.
func (l *Loader) Load(ctx context.Context, filters filter.Filters, tr timerange.TimeRange) Result {
	var (
		mu     sync.Mutex
		values = make(map[string][]v1alpha1.FacetValue, len(l.fields))
		errs   = map[string]error{}
		g      errgroup.Group
	)

	for _, field := range l.fields {
		g.Go(func() error {
			v, err := l.client.GetFacets(ctx, field, filters.Without(field), tr)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.FacetQueryErrors.WithLabelValues(field).Inc()
				klog.ErrorS(err, "Facet query failed", "field", field)
				errs[field] = err
				values[field] = []v1alpha1.FacetValue{}
				return nil
			}
			values[field] = v
			return nil
		})
	}
	// Workers never return an error; failures are collected per field.
	_ = g.Wait()

	result := Result{Values: values, Errors: errs}
	if len(errs) > 0 {
		list := make([]error, 0, len(errs))
		for _, field := range l.fields {
			if err, ok := errs[field]; ok {
				list = append(list, fmt.Errorf("%s: %w", field, err))
			}
		}
		result.Err = utilerrors.NewAggregate(list)
	}
	return result
}

// Tracker keeps the latest facet result for a view and the aggregate loading
// flag. Reloads overlap safely: only the most recently issued one is kept.
type Tracker struct {
	loader *Loader

	mu      sync.Mutex
	gen     uint64
	loading bool
	result  Result
}

// NewTracker returns an empty tracker.
func NewTracker(loader *Loader) *Tracker {
	return &Tracker{loader: loader}
}

// Reload loads facets for filters and tr and stores the result unless a newer
// Reload was issued meanwhile.
func (t *Tracker) Reload(ctx context.Context, filters filter.Filters, tr timerange.TimeRange) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.loading = true
	t.mu.Unlock()

	result := t.loader.Load(ctx, filters, tr)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.loading = false
	t.result = result
}

// State returns the latest result and whether a reload is in flight.
func (t *Tracker) State() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.loading
}
