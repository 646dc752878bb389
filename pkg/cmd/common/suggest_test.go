package common

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

type fakeFacetClient struct {
	values []v1alpha1.FacetValue
	err    error

	gotField   string
	gotFilters filter.Filters
	gotCEL     string
	gotRange   timerange.TimeRange
}

func (f *fakeFacetClient) GetFacets(_ context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	f.gotField, f.gotFilters, f.gotRange = field, filters, tr
	return f.values, f.err
}

func (f *fakeFacetClient) GetAuditLogFacets(_ context.Context, field, celFilter string, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	f.gotField, f.gotCEL, f.gotRange = field, celFilter, tr
	return f.values, f.err
}

func TestPrintFacetTable(t *testing.T) {
	tests := []struct {
		name         string
		field        string
		values       []v1alpha1.FacetValue
		label        func(string) string
		wantContains []string
		wantMissing  []string
	}{
		{
			name:  "facet with values",
			field: "spec.actor.name",
			values: []v1alpha1.FacetValue{
				{Value: "alice@example.com", Count: 142},
				{Value: "system:serviceaccount:default:sa", Count: 67},
			},
			wantContains: []string{"FIELD: spec.actor.name", "VALUE", "COUNT", "alice@example.com", "142", "system:serviceaccount:default:sa", "67"},
			wantMissing:  []string{"LABEL"},
		},
		{
			name:         "facet with labels",
			field:        "spec.resource.kind",
			values:       []v1alpha1.FacetValue{{Value: "HTTPProxy", Count: 5}},
			label:        func(v string) string { return "label-" + v },
			wantContains: []string{"LABEL", "label-HTTPProxy", "5"},
		},
		{
			name:         "large count",
			field:        "verb",
			values:       []v1alpha1.FacetValue{{Value: "get", Count: 9999999}},
			wantContains: []string{"9999999"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, PrintFacetTable(tt.field, tt.values, &buf, tt.label))

			for _, want := range tt.wantContains {
				assert.Contains(t, buf.String(), want)
			}
			for _, missing := range tt.wantMissing {
				assert.NotContains(t, buf.String(), missing)
			}
		})
	}
}

func TestPrintActivityFacets(t *testing.T) {
	c := &fakeFacetClient{values: []v1alpha1.FacetValue{{Value: "alice", Count: 3}}}
	filters := filter.Filters{ActorNames: []string{"bob"}, ResourceKinds: []string{"HTTPProxy"}}
	tr := timerange.Preset(timerange.Last7Days)

	var buf bytes.Buffer
	require.NoError(t, PrintActivityFacets(context.Background(), c, filter.FieldActor, filters, tr, &buf))

	assert.Equal(t, filter.FieldActor, c.gotField)
	assert.Nil(t, c.gotFilters.ActorNames, "the field's own selection is dropped")
	assert.Equal(t, []string{"HTTPProxy"}, c.gotFilters.ResourceKinds)
	assert.True(t, tr.Equal(c.gotRange))
	assert.Contains(t, buf.String(), "alice")
}

func TestPrintAuditLogFacets(t *testing.T) {
	tests := []struct {
		name         string
		client       *fakeFacetClient
		wantErr      string
		wantContains string
	}{
		{
			name:         "values",
			client:       &fakeFacetClient{values: []v1alpha1.FacetValue{{Value: "delete", Count: 2}}},
			wantContains: "delete",
		},
		{
			name:         "empty",
			client:       &fakeFacetClient{},
			wantContains: "No values found for field: verb",
		},
		{
			name:    "error",
			client:  &fakeFacetClient{err: errors.New("boom")},
			wantErr: "facet query failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := PrintAuditLogFacets(context.Background(), tt.client, "verb", "objectRef.namespace == 'prod'", timerange.Default(), &buf)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "objectRef.namespace == 'prod'", tt.client.gotCEL)
			assert.Contains(t, buf.String(), tt.wantContains)
		})
	}
}
