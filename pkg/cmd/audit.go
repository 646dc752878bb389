package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/printers"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/internal/cel"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// AuditOptions contains the options for querying audit logs
type AuditOptions struct {
	// Filter options
	Filter    string
	Namespace string
	Resource  string
	Verbs     []string
	User      string

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

// NewAuditOptions creates a new AuditOptions with default values
func NewAuditOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *AuditOptions {
	return &AuditOptions{
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

// NewAuditCommand creates the audit command
func NewAuditCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewAuditOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "audit [flags]",
		Short: "Query the audit logs behind the activity feed",
		Long: `Query audit logs from the control plane with time ranges and filters.

Activities summarize audit events; use this command to see the raw requests
behind them.

Time Formats:
  Relative: "now-7d", "now-2h", "now-30m" (units: s, m, h, d, w)
  Absolute: "2024-01-01T00:00:00Z" (RFC3339 with timezone)

Shorthand Filters:
  --namespace, --resource, --verb, --user flags are combined with AND logic.
  The --filter flag is applied after shorthand filters.

Common Filters:
  verb == 'delete'                                    # All deletions
  objectRef.namespace == 'production'                 # Events in production
  responseStatus.code >= 400                          # Failed requests
  user.username.startsWith('system:serviceaccount:')  # Service account activity

Examples:
  # Deletions in the last week
  kubectl activity audit --start-time "now-7d" --verb delete

  # Writes to secrets by a specific user
  kubectl activity audit --resource secrets --verb create,update,patch,delete --user alice@example.com

  # Every field of each event
  kubectl activity audit --filter "responseStatus.code >= 400" -o detail

  # Discover what users have activity
  kubectl activity audit --suggest user.username
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

	cmd.Flags().StringVar(&o.Filter, "filter", "", "CEL filter expression to narrow results")
	cmd.Flags().StringVarP(&o.Namespace, "namespace", "n", "", "Filter by target namespace")
	cmd.Flags().StringVar(&o.Resource, "resource", "", "Filter by resource type (e.g., secrets, pods)")
	cmd.Flags().StringSliceVar(&o.Verbs, "verb", nil, "Filter by API verb (create, update, patch, delete, get, list, watch)")
	cmd.Flags().StringVar(&o.User, "user", "", "Filter by username")

	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Complete fills in missing options
func (o *AuditOptions) Complete(cmd *cobra.Command) error {
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
	for i, v := range o.Verbs {
		o.Verbs[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *AuditOptions) Validate() error {
	if err := o.TimeRange.Validate(); err != nil {
		return err
	}
	if err := o.Pagination.Validate(); err != nil {
		return err
	}
	return nil
}

// Run executes the audit query
func (o *AuditOptions) Run(ctx context.Context) error {
	if expr := o.buildFilter(); expr != "" {
		if _, err := cel.CompileAuditFilter(ctx, expr); err != nil {
			return err
		}
	}

	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}
	tr, err := o.TimeRange.ToTimeRange(o.Clock.Now())
	if err != nil {
		return err
	}

	if o.Suggest.IsSuggestMode() {
		return common.PrintAuditLogFacets(ctx, c, o.Suggest.Suggest, o.buildFilter(), tr, o.Out)
	}

	if o.Pagination.AllPages {
		return o.runAllPages(ctx, c, tr)
	}

	return o.runSinglePage(ctx, c, tr)
}

// buildFilter creates a CEL filter from shorthand flags and explicit filter
func (o *AuditOptions) buildFilter() string {
	var filters []string

	if o.Namespace != "" {
		filters = append(filters, fmt.Sprintf("objectRef.namespace == '%s'", filter.EscapeCELString(o.Namespace)))
	}
	if o.Resource != "" {
		filters = append(filters, fmt.Sprintf("objectRef.resource == '%s'", filter.EscapeCELString(o.Resource)))
	}
	switch verbs := nonEmptyValues(o.Verbs); len(verbs) {
	case 0:
	case 1:
		filters = append(filters, fmt.Sprintf("verb == '%s'", filter.EscapeCELString(verbs[0])))
	default:
		quoted := make([]string, len(verbs))
		for i, v := range verbs {
			quoted[i] = "'" + filter.EscapeCELString(v) + "'"
		}
		filters = append(filters, fmt.Sprintf("verb in [%s]", strings.Join(quoted, ", ")))
	}
	if o.User != "" {
		filters = append(filters, fmt.Sprintf("user.username == '%s'", filter.EscapeCELString(o.User)))
	}

	combined := strings.Join(filters, " && ")

	if o.Filter != "" {
		if combined != "" {
			combined = fmt.Sprintf("(%s) && (%s)", combined, o.Filter)
		} else {
			combined = o.Filter
		}
	}

	return combined
}

func nonEmptyValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (o *AuditOptions) request(tr timerange.TimeRange, cursor string) client.AuditLogRequest {
	return client.AuditLogRequest{
		Filter:    o.buildFilter(),
		TimeRange: tr,
		PageSize:  o.Pagination.Limit,
		Cursor:    cursor,
	}
}

// runSinglePage executes a single query
func (o *AuditOptions) runSinglePage(ctx context.Context, c client.Interface, tr timerange.TimeRange) error {
	req := o.request(tr, o.Pagination.ContinueAfter)

	if o.Output.Debug {
		_, _ = fmt.Fprintf(o.ErrOut, "DEBUG: filter=%q timeRange=%s limit=%d continue=%q\n", req.Filter, tr, req.PageSize, req.Cursor)
	}

	result, err := c.ListAuditLogs(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	return o.printResults(result.Items, result.NextCursor)
}

// runAllPages fetches all pages of results
func (o *AuditOptions) runAllPages(ctx context.Context, c client.Interface, tr timerange.TimeRange) error {
	var allEvents []auditv1.Event
	cursor := ""
	totalCount := 0

	isTableOutput := common.IsDefaultOutputFormat(o.PrintFlags)
	tp := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders)

	for page := 1; ; page++ {
		if o.Output.Debug {
			_, _ = fmt.Fprintf(o.ErrOut, "DEBUG: Fetching page %d\n", page)
		}

		result, err := c.ListAuditLogs(ctx, o.request(tr, cursor))
		if err != nil {
			return fmt.Errorf("query failed on page %d: %w", page, err)
		}

		totalCount += len(result.Items)

		// Tables are printed page by page; other formats need the full list.
		if isTableOutput {
			if err := tp.PrintTable(eventsToTable(result.Items)); err != nil {
				return err
			}
		} else {
			allEvents = append(allEvents, result.Items...)
		}

		if !result.HasMore || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	if !isTableOutput {
		if err := o.printObjects(allEvents); err != nil {
			return err
		}
	}

	tp.PrintAllPagesInfo(totalCount)
	return nil
}

// printResults outputs the query results in the specified format
func (o *AuditOptions) printResults(events []auditv1.Event, continueToken string) error {
	if common.IsDefaultOutputFormat(o.PrintFlags) {
		tp := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders)
		if err := tp.PrintTable(eventsToTable(events)); err != nil {
			return err
		}
		tp.PrintPaginationInfo(continueToken, len(events))
		return nil
	}
	return o.printObjects(events)
}

func (o *AuditOptions) printObjects(events []auditv1.Event) error {
	if common.IsOutputFormat(o.PrintFlags, outputDetail) {
		return printEventDetails(events, o.Out)
	}

	printer, err := common.CreatePrinter(o.PrintFlags)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return printEvents(events, printer, o.Out)
}

// eventsToTable converts audit events to a Table object
func eventsToTable(events []auditv1.Event) *metav1.Table {
	table := common.NewTable(
		metav1.TableColumnDefinition{Name: "Timestamp", Type: "string", Description: "Time of the event"},
		metav1.TableColumnDefinition{Name: "Verb", Type: "string", Description: "Action performed"},
		metav1.TableColumnDefinition{Name: "User", Type: "string", Description: "User who performed the action"},
		metav1.TableColumnDefinition{Name: "Resource", Type: "string", Description: "Resource affected"},
		metav1.TableColumnDefinition{Name: "Status", Type: "string", Description: "HTTP status code"},
	)
	table.Rows = eventsToRows(events)
	return table
}

// eventsToRows converts audit events to table rows
func eventsToRows(events []auditv1.Event) []metav1.TableRow {
	rows := make([]metav1.TableRow, 0, len(events))
	for i := range events {
		e := &events[i]

		resource := ""
		if ref := e.ObjectRef; ref != nil {
			resource = ref.Resource + "/" + ref.Name
			if ref.Namespace != "" {
				resource = ref.Namespace + "/" + resource
			}
		}

		status := ""
		if e.ResponseStatus != nil {
			status = fmt.Sprintf("%d", e.ResponseStatus.Code)
		}

		rows = append(rows, metav1.TableRow{
			Cells: []interface{}{
				e.StageTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
				e.Verb,
				e.User.Username,
				resource,
				status,
			},
		})
	}
	return rows
}

// printEvents prints audit events using the configured printer
func printEvents(events []auditv1.Event, printer printers.ResourcePrinter, out io.Writer) error {
	eventList := &auditv1.EventList{
		TypeMeta: metav1.TypeMeta{
			Kind:       "EventList",
			APIVersion: auditv1.SchemeGroupVersion.String(),
		},
		Items: events,
	}
	return printer.PrintObj(eventList, out)
}

// printEventDetails prints the full detail view of each audit event.
func printEventDetails(events []auditv1.Event, out io.Writer) error {
	for i := range events {
		d, err := ui.AuditLogDetail(&events[i])
		if err != nil {
			return fmt.Errorf("failed to render audit event %s: %w", events[i].AuditID, err)
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
