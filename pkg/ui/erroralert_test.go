package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/validation/field"

	statusfmt "go.miloapis.com/activityfeed/internal/apierrors"
	"go.miloapis.com/activityfeed/pkg/feed"
	"go.miloapis.com/activityfeed/pkg/filter"
)

func TestErrorAlert(t *testing.T) {
	statusErr := fmt.Errorf("activity query failed: %w", apierrors.NewServiceUnavailable("clickhouse is down"))

	tests := []struct {
		name      string
		category  ErrorCategory
		err       error
		formatter ErrorFormatter
		title     string
		message   string
		retryable bool
	}{
		{
			name:      "status error shows server message",
			category:  CategoryBaseQuery,
			err:       statusErr,
			title:     "Failed to load activities",
			message:   "clickhouse is down",
			retryable: true,
		},
		{
			name:     "validation status lists causes",
			category: CategoryBaseQuery,
			err: statusfmt.NewValidationStatusError(
				schema.GroupKind{Group: "activity.miloapis.com", Kind: "ActivityQuery"}, "",
				field.ErrorList{
					field.Invalid(field.NewPath("spec", "limit"), 5000, "must be between 1 and 1000"),
					field.Invalid(field.NewPath("spec", "filter"), "x ==", "invalid CEL"),
				}),
			title: "Failed to load activities",
			message: "Some fields are missing or invalid. See the error details for what needs to be corrected.\n" +
				"  spec.limit: must be between 1 and 1000\n" +
				"  spec.filter: invalid CEL",
			retryable: true,
		},
		{
			name:      "watch",
			category:  CategoryWatch,
			err:       errors.New("connection reset"),
			title:     "Live updates interrupted",
			message:   "connection reset",
			retryable: true,
		},
		{
			name:     "facet aggregate lists each field",
			category: CategoryFacet,
			err: utilerrors.NewAggregate([]error{
				errors.New("spec.actor.name: timeout"),
				errors.New("spec.resource.kind: timeout"),
			}),
			title:   "Some filter options could not be loaded",
			message: "spec.actor.name: timeout\nspec.resource.kind: timeout",
		},
		{
			name:     "formatter overrides",
			category: CategoryBaseQuery,
			err:      statusErr,
			formatter: func(c ErrorCategory, err error) string {
				if apierrors.IsServiceUnavailable(err) {
					return "The activity service is unavailable."
				}
				return ""
			},
			title:     "Failed to load activities",
			message:   "The activity service is unavailable.",
			retryable: true,
		},
		{
			name:      "formatter falls back on empty",
			category:  CategoryWatch,
			err:       errors.New("eof"),
			formatter: func(ErrorCategory, error) string { return "" },
			title:     "Live updates interrupted",
			message:   "eof",
			retryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewErrorAlert(tt.category, tt.err, tt.formatter)
			require.NotNil(t, a)
			assert.Equal(t, tt.title, a.Title())
			assert.Equal(t, tt.message, a.Message())
			assert.Equal(t, tt.retryable, a.Retryable())
			assert.Contains(t, a.Render(60, "r"), tt.title)
		})
	}

	assert.Nil(t, NewErrorAlert(CategoryWatch, nil, nil))
}

func TestErrorAlert_InvalidFilterExpression(t *testing.T) {
	err := filter.Filters{Expression: "spec.nope =="}.Validate()
	require.Error(t, err)

	a := NewErrorAlert(CategoryBaseQuery, err, nil)
	require.NotNil(t, a)
	assert.True(t, strings.HasPrefix(a.Message(), "Invalid filter at line 1"), a.Message())
	assert.Contains(t, a.Message(), "Please correct this and try again.")
	assert.NotContains(t, a.Message(), "  spec.filter:")
	assert.NotContains(t, a.Message(), "invalid filter expression:")
}

func TestAlertsFor(t *testing.T) {
	snap := feed.Snapshot{Error: errors.New("list failed"), WatchError: errors.New("stream failed")}
	alerts := AlertsFor(snap, errors.New("facets failed"), nil)
	require.Len(t, alerts, 3)
	assert.Equal(t, CategoryBaseQuery, alerts[0].Category)
	assert.Equal(t, CategoryWatch, alerts[1].Category)
	assert.Equal(t, CategoryFacet, alerts[2].Category)

	assert.Empty(t, AlertsFor(feed.Snapshot{}, nil, nil))
	assert.Empty(t, AlertsFor(feed.Snapshot{Error: feed.ErrClosed}, nil, nil))
}
