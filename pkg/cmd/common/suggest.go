package common

import (
	"context"
	"fmt"
	"io"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

// ActivityFacetClient fetches activity facet values.
type ActivityFacetClient interface {
	GetFacets(ctx context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error)
}

// AuditLogFacetClient fetches audit log facet values.
type AuditLogFacetClient interface {
	GetAuditLogFacets(ctx context.Context, field, celFilter string, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error)
}

// PrintActivityFacets executes and prints an activity facet query. The
// field's own filter is dropped so the output lists its alternatives.
func PrintActivityFacets(ctx context.Context, c ActivityFacetClient, field string, filters filter.Filters, tr timerange.TimeRange, out io.Writer) error {
	values, err := c.GetFacets(ctx, field, filters.Without(field), tr)
	if err != nil {
		return fmt.Errorf("facet query failed: %w", err)
	}
	return printFacets(field, values, out)
}

// PrintAuditLogFacets executes and prints an audit log facet query
func PrintAuditLogFacets(ctx context.Context, c AuditLogFacetClient, field, celFilter string, tr timerange.TimeRange, out io.Writer) error {
	values, err := c.GetAuditLogFacets(ctx, field, celFilter, tr)
	if err != nil {
		return fmt.Errorf("facet query failed: %w", err)
	}
	return printFacets(field, values, out)
}

func printFacets(field string, values []v1alpha1.FacetValue, out io.Writer) error {
	if len(values) == 0 {
		_, _ = fmt.Fprintf(out, "No values found for field: %s\n", field)
		return nil
	}
	return PrintFacetTable(field, values, out, nil)
}

// PrintFacetTable prints facet values as a table. label, when set, adds a
// display label column.
func PrintFacetTable(field string, values []v1alpha1.FacetValue, out io.Writer, label func(string) string) error {
	_, _ = fmt.Fprintf(out, "FIELD: %s\n", field)

	columns := []metav1.TableColumnDefinition{
		{Name: "Value", Type: "string", Description: "Distinct value"},
	}
	if label != nil {
		columns = append(columns, metav1.TableColumnDefinition{Name: "Label", Type: "string", Description: "Display label"})
	}
	columns = append(columns, metav1.TableColumnDefinition{Name: "Count", Type: "integer", Description: "Number of occurrences"})

	table := NewTable(columns...)
	for _, v := range values {
		cells := []interface{}{v.Value}
		if label != nil {
			cells = append(cells, label(v.Value))
		}
		cells = append(cells, v.Count)
		table.Rows = append(table.Rows, metav1.TableRow{Cells: cells})
	}

	return CreateTablePrinter(false).PrintObj(table, out)
}
