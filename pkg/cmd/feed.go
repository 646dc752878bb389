package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/printers"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/client/natswatch"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/feed"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/ui"
)

const (
	outputSummary = "summary"
	outputDetail  = "detail"
)

// FeedOptions contains the options for querying activities
type FeedOptions struct {
	Filters common.FilterFlags

	// Watch mode
	Watch bool
	NATS  common.NATSFlags

	// Common flags
	TimeRange  common.TimeRangeFlags
	Pagination common.PaginationFlags
	Output     common.OutputFlags
	Suggest    common.SuggestFlags

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
	Clock     clock.PassiveClock
}

// NewFeedOptions creates a new FeedOptions with default values
func NewFeedOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *FeedOptions {
	return &FeedOptions{
		IOStreams:  ioStreams,
		Factory:    f,
		NewClient:  newClient,
		Clock:      clock.RealClock{},
		PrintFlags: genericclioptions.NewPrintFlags(""),
		TimeRange: common.TimeRangeFlags{
			StartTime: timerange.Last24Hours,
			EndTime:   "now",
		},
		Pagination: common.PaginationFlags{
			Limit: client.DefaultPageSize,
		},
	}
}

// NewFeedCommand creates the feed command
func NewFeedCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewFeedOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "feed [flags]",
		Short: "Query human-readable activity summaries",
		Long: `Query human-readable activity summaries from the control plane.

Activities are translated from audit logs and events using ActivityPolicy rules,
providing human-friendly descriptions of what changed in your cluster.

Time Formats:
  Relative: "now-7d", "now-2h", "now-30m" (units: s, m, h, d, w)
  Absolute: "2024-01-01T00:00:00Z" (RFC3339 with timezone)

Output Formats:
  table (default): Structured view with timestamp, actor, source, and summary
  summary: Just the summaries, one per line
  detail: Every field of each activity, including the changes
  json/yaml: Full activity objects

Multi-valued Filters:
  --namespace, --actor, --kind and --api-group accept several values, either
  repeated or comma separated. An activity matches if it matches any value.

CEL Filters:
  spec.changeSource       - "human" or "system"
  spec.actor.name         - Actor display name
  spec.actor.type         - "user", "serviceaccount", "controller"
  spec.resource.kind      - Resource kind (Deployment, Pod, etc.)
  spec.resource.namespace - Resource namespace
  spec.resource.apiGroup  - API group
  spec.summary            - Activity summary text

Examples:
  # Recent human activity
  kubectl activity feed --change-source human

  # Deployment and StatefulSet changes
  kubectl activity feed --kind Deployment,StatefulSet

  # Search for specific text
  kubectl activity feed --search "created HTTPProxy"

  # Live feed of human changes
  kubectl activity feed --change-source human --watch

  # Live feed straight from JetStream
  kubectl activity feed --watch --nats-url nats://nats.activity-system:4222

  # Filter with CEL for complex queries
  kubectl activity feed --filter "spec.actor.type == 'serviceaccount'"

  # Discover active users
  kubectl activity feed --suggest spec.actor.name
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	common.AddTimeRangeFlags(cmd, &o.TimeRange, timerange.Last24Hours)
	common.AddPaginationFlags(cmd, &o.Pagination, client.DefaultPageSize)
	common.AddOutputFlags(cmd, &o.Output)
	common.AddSuggestFlags(cmd, &o.Suggest)
	common.AddFilterFlags(cmd, &o.Filters)
	common.AddNATSFlags(cmd, &o.NATS)
	cmd.Flags().BoolVarP(&o.Watch, "watch", "w", false, "Watch for new activities")

	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Complete fills in missing options
func (o *FeedOptions) Complete(cmd *cobra.Command) error {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.NewClient == nil {
		o.NewClient = DefaultClient
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *FeedOptions) Validate() error {
	if err := o.Filters.Validate(); err != nil {
		return err
	}
	if err := o.NATS.Validate(); err != nil {
		return err
	}
	if o.Watch {
		// Watch mode doesn't use time range or pagination
		return nil
	}
	if o.NATS.Enabled() {
		return fmt.Errorf("--nats-url requires --watch")
	}

	if err := o.TimeRange.Validate(); err != nil {
		return err
	}
	if err := o.Pagination.Validate(); err != nil {
		return err
	}
	return nil
}

// Run executes the feed query
func (o *FeedOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}
	filters := o.Filters.Filters()

	if o.Watch {
		return o.runWatch(ctx, c, filters)
	}

	tr, err := o.TimeRange.ToTimeRange(o.Clock.Now())
	if err != nil {
		return err
	}

	if o.Suggest.IsSuggestMode() {
		return common.PrintActivityFacets(ctx, c, o.Suggest.Suggest, filters, tr, o.Out)
	}

	if o.Pagination.AllPages {
		return o.runAllPages(ctx, c, filters, tr)
	}

	return o.runSinglePage(ctx, c, filters, tr)
}

// runSinglePage executes a single query
func (o *FeedOptions) runSinglePage(ctx context.Context, c client.Interface, filters filter.Filters, tr timerange.TimeRange) error {
	req := client.ListRequest{
		Filters:   filters,
		TimeRange: tr,
		PageSize:  o.Pagination.Limit,
		Cursor:    o.Pagination.ContinueAfter,
	}

	if o.Output.Debug {
		_, _ = fmt.Fprintf(o.ErrOut, "DEBUG: filter=%q search=%q timeRange=%s limit=%d continue=%q\n",
			filters.CEL(), filters.Search, tr, req.PageSize, req.Cursor)
	}

	result, err := c.ListActivities(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	return o.printResults(result.Items, result.NextCursor)
}

// runAllPages drives a feed controller through every page. Pages are
// deduplicated by the controller, so an activity that shifts across a page
// boundary between requests is printed once.
func (o *FeedOptions) runAllPages(ctx context.Context, c client.Interface, filters filter.Filters, tr timerange.TimeRange) error {
	ctrl := feed.NewController(c, feed.Options{
		PageSize:  o.Pagination.Limit,
		Filters:   filters,
		TimeRange: tr,
		Clock:     o.Clock,
	})
	defer ctrl.Close()

	isTableOutput := common.IsDefaultOutputFormat(o.PrintFlags)
	isSummary := common.IsOutputFormat(o.PrintFlags, outputSummary)
	tp := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders)

	ctrl.Refresh(ctx)
	printed := 0
	for page := 1; ; page++ {
		snap := ctrl.Snapshot()
		if snap.Error != nil {
			return fmt.Errorf("query failed on page %d: %w", page, snap.Error)
		}

		batch := snap.Activities[printed:]
		switch {
		case isTableOutput:
			if len(batch) > 0 || page == 1 {
				if err := tp.PrintTable(activitiesToTable(batch)); err != nil {
					return err
				}
			}
		case isSummary:
			if err := o.printSummary(batch); err != nil {
				return err
			}
		}
		printed = len(snap.Activities)

		if !snap.HasMore {
			break
		}
		if page > 1 && len(batch) == 0 {
			// The cursor did not move past anything new.
			klog.V(2).InfoS("Stopping pagination on a page without new activities", "page", page)
			_, _ = fmt.Fprintf(o.ErrOut, "Warning: page %d returned no new activities; stopping.\n", page)
			break
		}
		if o.Output.Debug {
			_, _ = fmt.Fprintf(o.ErrOut, "DEBUG: Fetching page %d\n", page+1)
		}
		ctrl.LoadMore(ctx)
	}

	if !isTableOutput && !isSummary {
		if err := o.printObjects(ctrl.Snapshot().Activities); err != nil {
			return err
		}
	}

	tp.PrintAllPagesInfo(printed)
	return nil
}

// runWatch streams new activities through a feed controller until the
// context is cancelled or the stream fails.
func (o *FeedOptions) runWatch(ctx context.Context, c client.Interface, filters filter.Filters) error {
	opts := feed.Options{
		Filters: filters,
		// Streamed activities are never dropped by a preset range.
		TimeRange: timerange.Default(),
		Clock:     o.Clock,
	}
	if o.NATS.Enabled() {
		w, err := natswatch.New(o.NATS.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer w.Close()
		opts.Streamer = w
	}

	ctrl := feed.NewController(c, opts)
	defer ctrl.Close()
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	_, _ = fmt.Fprintf(o.ErrOut, "Watching for activities... (press Ctrl+C to stop)\n\n")
	ctrl.StartStreaming(ctx)

	color := common.SupportsColor(o.Out)
	printed := map[string]struct{}{}
	for {
		snap := ctrl.Snapshot()
		// Streamed activities are prepended; print the unseen ones oldest
		// first.
		for i := len(snap.Activities) - 1; i >= 0; i-- {
			a := &snap.Activities[i]
			if _, ok := printed[a.Key()]; ok {
				continue
			}
			printed[a.Key()] = struct{}{}
			_, _ = fmt.Fprintln(o.Out, watchLine(a, color))
		}

		if snap.WatchError != nil {
			if ctx.Err() != nil {
				_, _ = fmt.Fprintf(o.ErrOut, "\nWatch stopped.\n")
				return nil
			}
			return fmt.Errorf("watch failed: %w", snap.WatchError)
		}

		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(o.ErrOut, "\nWatch stopped.\n")
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
		}
	}
}

// watchLine renders an activity as "[15:04:05] summary". With color, the
// source badge and linked resource references are styled.
func watchLine(a *v1alpha1.Activity, color bool) string {
	timestamp := a.CreationTimestamp.Local().Format("15:04:05")
	if !color {
		return fmt.Sprintf("[%s] %s", timestamp, a.Spec.Summary)
	}
	return fmt.Sprintf("%s %s %s",
		ui.LabelStyle.Render("["+timestamp+"]"),
		ui.ChangeSourceBadge(a.Spec.ChangeSource).Render(),
		ui.RenderSummary(a, ui.KubectlResolver{}, true),
	)
}

// printResults outputs the query results in the specified format
func (o *FeedOptions) printResults(activities []v1alpha1.Activity, continueToken string) error {
	if common.IsOutputFormat(o.PrintFlags, outputSummary) {
		return o.printSummary(activities)
	}

	if common.IsDefaultOutputFormat(o.PrintFlags) {
		return o.printTable(activities, continueToken)
	}

	return o.printObjects(activities)
}

// printTable prints activities as a formatted table
func (o *FeedOptions) printTable(activities []v1alpha1.Activity, continueToken string) error {
	tp := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders)
	if err := tp.PrintTable(activitiesToTable(activities)); err != nil {
		return err
	}
	tp.PrintPaginationInfo(continueToken, len(activities))
	return nil
}

// printSummary prints just the activity summaries, one per line
func (o *FeedOptions) printSummary(activities []v1alpha1.Activity) error {
	for _, activity := range activities {
		if _, err := fmt.Fprintln(o.Out, activity.Spec.Summary); err != nil {
			return fmt.Errorf("failed to print summary: %w", err)
		}
	}
	return nil
}

// printObjects prints the detail view or hands the list to a kubectl printer.
func (o *FeedOptions) printObjects(activities []v1alpha1.Activity) error {
	if common.IsOutputFormat(o.PrintFlags, outputDetail) {
		return printActivityDetails(activities, o.Out)
	}

	printer, err := common.CreatePrinter(o.PrintFlags)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return printActivities(activities, printer, o.Out)
}

// activitiesToTable converts activities to a Table object
func activitiesToTable(activities []v1alpha1.Activity) *metav1.Table {
	table := common.NewTable(
		metav1.TableColumnDefinition{Name: "Timestamp", Type: "string", Description: "Time of activity"},
		metav1.TableColumnDefinition{Name: "Actor", Type: "string", Description: "Who performed the action"},
		metav1.TableColumnDefinition{Name: "Source", Type: "string", Description: "Change source"},
		metav1.TableColumnDefinition{Name: "Resource", Type: "string", Description: "Affected resource"},
		metav1.TableColumnDefinition{Name: "Summary", Type: "string", Description: "Activity summary"},
	)
	table.Rows = activitiesToRows(activities)
	return table
}

// activitiesToRows converts activities to table rows
func activitiesToRows(activities []v1alpha1.Activity) []metav1.TableRow {
	rows := make([]metav1.TableRow, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		resource := a.Spec.Resource.Name
		if a.Spec.Resource.Kind != "" {
			resource = ui.DeriveKindLabel(a.Spec.Resource.Kind) + " " + resource
		}
		rows = append(rows, metav1.TableRow{
			Cells: []interface{}{
				a.CreationTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
				a.Spec.Actor.Name,
				a.Spec.ChangeSource,
				resource,
				common.Truncate(a.Spec.Summary, 80),
			},
		})
	}
	return rows
}

// printActivities prints activities using the configured printer
func printActivities(activities []v1alpha1.Activity, printer printers.ResourcePrinter, out io.Writer) error {
	activityList := &v1alpha1.ActivityList{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ActivityList",
			APIVersion: v1alpha1.SchemeGroupVersion.String(),
		},
		Items: activities,
	}
	return printer.PrintObj(activityList, out)
}

// printActivityDetails prints the full detail view of each activity with the
// advanced section expanded.
func printActivityDetails(activities []v1alpha1.Activity, out io.Writer) error {
	for i := range activities {
		d, err := ui.ActivityDetail(&activities[i], ui.KubectlResolver{})
		if err != nil {
			klog.ErrorS(err, "Failed to build activity detail", "activity", activities[i].Name)
			return fmt.Errorf("failed to render activity %s: %w", activities[i].Name, err)
		}
		d.Toggle(ui.SectionAdvanced)
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		if _, err := fmt.Fprintln(out, d.Render()); err != nil {
			return err
		}
	}
	return nil
}
