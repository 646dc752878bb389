package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/facets"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// facetFields are the fields the facets command accepts.
var facetFields = []string{
	filter.FieldKind,
	filter.FieldActor,
	filter.FieldNamespace,
	filter.FieldAPIGroup,
	filter.FieldChangeSource,
	v1alpha1.FacetFieldActorType,
}

// FacetsOptions contains the options for listing filter options
type FacetsOptions struct {
	Fields    []string
	Filters   common.FilterFlags
	TimeRange common.TimeRangeFlags

	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
	Clock     clock.PassiveClock
}

// NewFacetsOptions creates a new FacetsOptions with default values
func NewFacetsOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *FacetsOptions {
	return &FacetsOptions{
		IOStreams: ioStreams,
		Factory:   f,
		NewClient: newClient,
		Clock:     clock.RealClock{},
		TimeRange: common.TimeRangeFlags{
			StartTime: timerange.Last24Hours,
			EndTime:   "now",
		},
	}
}

// NewFacetsCommand creates the facets command
func NewFacetsCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewFacetsOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "facets [field...]",
		Short: "Show the filter options of the activity feed",
		Long: `Show the distinct values, with counts, of the filterable activity fields.

Each field is counted under the other active filters, but not its own, so the
output lists the alternatives to the current selection. Fields are queried in
parallel; a field that fails does not hide the others.

Fields:
  spec.resource.kind, spec.actor.name, spec.resource.namespace,
  spec.resource.apiGroup, spec.changeSource, spec.actor.type

Examples:
  # Filter options for the last 24 hours
  kubectl activity facets

  # Which actors changed HTTPProxies this week
  kubectl activity facets spec.actor.name --kind HTTPProxy --start-time now-7d
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	common.AddTimeRangeFlags(cmd, &o.TimeRange, timerange.Last24Hours)
	common.AddFilterFlags(cmd, &o.Filters)

	return cmd
}

// Complete fills in missing options
func (o *FacetsOptions) Complete(cmd *cobra.Command, args []string) error {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	if o.NewClient == nil {
		o.NewClient = DefaultClient
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	o.Fields = args
	if len(o.Fields) == 0 {
		o.Fields = facets.DefaultFields
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *FacetsOptions) Validate() error {
	for _, field := range o.Fields {
		if !slices.Contains(facetFields, field) {
			return fmt.Errorf("unsupported facet field %q, must be one of %v", field, facetFields)
		}
	}
	if err := o.TimeRange.Validate(); err != nil {
		return err
	}
	return o.Filters.Validate()
}

// Run loads and prints the facets
func (o *FacetsOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}
	tr, err := o.TimeRange.ToTimeRange(o.Clock.Now())
	if err != nil {
		return err
	}

	result := facets.NewLoader(c, o.Fields...).Load(ctx, o.Filters.Filters(), tr)

	for i, field := range o.Fields {
		if err, failed := result.Errors[field]; failed {
			_, _ = fmt.Fprintf(o.ErrOut, "FIELD: %s\nerror: %v\n", field, err)
			continue
		}
		if i > 0 {
			_, _ = fmt.Fprintln(o.Out)
		}
		if err := common.PrintFacetTable(field, result.Options(field), o.Out, facetLabel(field)); err != nil {
			return err
		}
	}

	if result.Err != nil {
		alert := ui.NewErrorAlert(ui.CategoryFacet, result.Err, nil)
		return fmt.Errorf("%s: %s", alert.Title(), alert.Message())
	}
	return nil
}

// facetLabel returns the display label function of field, nil when values are
// shown as is.
func facetLabel(field string) func(string) string {
	switch field {
	case filter.FieldKind:
		return ui.DeriveKindLabel
	case filter.FieldAPIGroup:
		return func(v string) string {
			if v == "" {
				return "core"
			}
			return v
		}
	}
	return nil
}
