package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/internal/cel"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// historyVerbs are the verbs that change a resource.
var historyVerbs = []string{"create", "update", "patch", "delete"}

// HistoryOptions contains the options for viewing resource history
type HistoryOptions struct {
	Namespace string
	Resource  string
	Name      string
	ShowDiff  bool

	// Common flags
	TimeRange  common.TimeRangeFlags
	Pagination common.PaginationFlags
	Output     common.OutputFlags

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
	Clock     clock.PassiveClock
}

// NewHistoryOptions creates a new HistoryOptions with default values
func NewHistoryOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *HistoryOptions {
	return &HistoryOptions{
		IOStreams:  ioStreams,
		Factory:    f,
		NewClient:  newClient,
		Clock:      clock.RealClock{},
		PrintFlags: genericclioptions.NewPrintFlags(""),
		TimeRange: common.TimeRangeFlags{
			StartTime: timerange.Last30Days,
			EndTime:   "now",
		},
		Pagination: common.PaginationFlags{
			Limit: 100,
		},
	}
}

// NewHistoryCommand creates the history command
func NewHistoryCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewHistoryOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "history RESOURCE NAME",
		Short: "View the change history of a specific resource",
		Long: `View the change history of one resource by querying the audit logs
behind its activities.

Only changes are shown (create, update, patch, delete), oldest first. Use
--diff to see what changed between consecutive versions, or -o detail for
every field of each audit event.

  RESOURCE: the plural resource type (e.g., httpproxies, configmaps, secrets)
  NAME:     the name of the resource

Use the -n/--namespace flag for namespaced resources.

Examples:
  # Change history of an HTTP proxy
  kubectl activity history httpproxies api-gateway -n production

  # What changed between versions
  kubectl activity history configmaps app-config -n default --diff

  # Changes from the last 7 days, every page
  kubectl activity history secrets api-credentials -n default --start-time "now-7d" --all-pages

  # Raw audit events
  kubectl activity history configmaps app-settings -n default -o yaml
`,
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
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

	common.AddTimeRangeFlags(cmd, &o.TimeRange, timerange.Last30Days)
	common.AddPaginationFlags(cmd, &o.Pagination, 100)
	common.AddOutputFlags(cmd, &o.Output)
	cmd.Flags().BoolVar(&o.ShowDiff, "diff", false, "Show diff between consecutive resource versions")

	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Complete fills in missing options
func (o *HistoryOptions) Complete(cmd *cobra.Command, args []string) error {
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

	if len(args) != 2 {
		return fmt.Errorf("exactly two arguments are required: RESOURCE NAME")
	}
	o.Resource = strings.ToLower(args[0])
	o.Name = args[1]

	// The -n/--namespace flag belongs to the kubectl factory.
	if o.Factory != nil {
		namespace, enforceNamespace, err := o.Factory.ToRawKubeConfigLoader().Namespace()
		if err != nil {
			return fmt.Errorf("failed to get namespace: %w", err)
		}
		if enforceNamespace || namespace != "" {
			o.Namespace = namespace
		}
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *HistoryOptions) Validate() error {
	if o.Resource == "" {
		return fmt.Errorf("resource type is required")
	}
	if o.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if o.ShowDiff && !common.IsDefaultOutputFormat(o.PrintFlags) {
		return fmt.Errorf("--diff cannot be combined with -o")
	}
	if err := o.TimeRange.Validate(); err != nil {
		return err
	}
	return o.Pagination.Validate()
}

// Run executes the history query
func (o *HistoryOptions) Run(ctx context.Context) error {
	expr := o.buildFilter()
	if _, err := cel.CompileAuditFilter(ctx, expr); err != nil {
		return err
	}

	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}
	tr, err := o.TimeRange.ToTimeRange(o.Clock.Now())
	if err != nil {
		return err
	}

	var events []auditv1.Event
	continueToken := ""
	if o.Pagination.AllPages {
		events, err = o.fetchAllPages(ctx, c, tr)
	} else {
		events, continueToken, err = o.fetchPage(ctx, c, tr)
	}
	if err != nil {
		return err
	}

	// Results arrive newest first; history reads oldest first.
	slices.Reverse(events)

	switch {
	case !common.IsDefaultOutputFormat(o.PrintFlags):
		return o.printObjects(events)
	case o.ShowDiff:
		return o.printDiff(events)
	}

	tp := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders)
	if err := tp.PrintTable(historyToTable(events)); err != nil {
		return err
	}
	if o.Pagination.AllPages {
		tp.PrintAllPagesInfo(len(events))
	} else {
		tp.PrintPaginationInfo(continueToken, len(events))
	}
	return nil
}

// buildFilter selects the changes made to one resource.
func (o *HistoryOptions) buildFilter() string {
	quoted := make([]string, len(historyVerbs))
	for i, v := range historyVerbs {
		quoted[i] = "'" + v + "'"
	}

	filters := []string{
		fmt.Sprintf("objectRef.resource == '%s'", filter.EscapeCELString(o.Resource)),
		fmt.Sprintf("objectRef.name == '%s'", filter.EscapeCELString(o.Name)),
		fmt.Sprintf("verb in [%s]", strings.Join(quoted, ", ")),
	}
	if o.Namespace != "" {
		filters = append(filters, fmt.Sprintf("objectRef.namespace == '%s'", filter.EscapeCELString(o.Namespace)))
	}
	return strings.Join(filters, " && ")
}

func (o *HistoryOptions) request(tr timerange.TimeRange, cursor string) client.AuditLogRequest {
	return client.AuditLogRequest{
		Filter:    o.buildFilter(),
		TimeRange: tr,
		PageSize:  o.Pagination.Limit,
		Cursor:    cursor,
	}
}

func (o *HistoryOptions) fetchPage(ctx context.Context, c client.Interface, tr timerange.TimeRange) ([]auditv1.Event, string, error) {
	req := o.request(tr, o.Pagination.ContinueAfter)
	if o.Output.Debug {
		_, _ = fmt.Fprintf(o.ErrOut, "DEBUG: filter=%q timeRange=%s limit=%d continue=%q\n", req.Filter, tr, req.PageSize, req.Cursor)
	}

	result, err := c.ListAuditLogs(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("query failed: %w", err)
	}
	return result.Items, result.NextCursor, nil
}

// fetchAllPages follows continue tokens until the server reports no more
// results or hands back the cursor it was given.
func (o *HistoryOptions) fetchAllPages(ctx context.Context, c client.Interface, tr timerange.TimeRange) ([]auditv1.Event, error) {
	var events []auditv1.Event
	cursor := ""

	for page := 1; ; page++ {
		result, err := c.ListAuditLogs(ctx, o.request(tr, cursor))
		if err != nil {
			return nil, fmt.Errorf("query failed on page %d: %w", page, err)
		}
		events = append(events, result.Items...)

		if !result.HasMore || result.NextCursor == "" {
			break
		}
		if result.NextCursor == cursor {
			klog.V(2).InfoS("Audit log cursor did not advance", "page", page, "cursor", cursor)
			_, _ = fmt.Fprintf(o.ErrOut, "Warning: page %d returned the same continue token; stopping.\n", page)
			break
		}
		cursor = result.NextCursor
	}
	return events, nil
}

func (o *HistoryOptions) printObjects(events []auditv1.Event) error {
	if common.IsOutputFormat(o.PrintFlags, outputDetail) {
		return printEventDetails(events, o.Out)
	}

	printer, err := common.CreatePrinter(o.PrintFlags)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return printEvents(events, printer, o.Out)
}

// printDiff shows each change with a diff against the previous version of
// the object, taken from the audit events' response bodies.
func (o *HistoryOptions) printDiff(events []auditv1.Event) error {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(o.Out, "No changes found for this resource.")
		return nil
	}

	color := common.SupportsColor(o.Out)
	var prev map[string]any

	for i := range events {
		e := &events[i]

		var curr map[string]any
		if e.ResponseObject != nil && len(e.ResponseObject.Raw) > 0 {
			if err := json.Unmarshal(e.ResponseObject.Raw, &curr); err != nil {
				_, _ = fmt.Fprintf(o.ErrOut, "Warning: failed to parse response object of change %d: %v\n", i+1, err)
				continue
			}
			curr = cleanObjectForDiff(curr)
		}

		o.printChangeHeader(i+1, e, color)

		switch {
		case prev != nil && curr != nil:
			_, _ = fmt.Fprintf(o.Out, "\nChanges: %s\n\n", summarizeChanges(prev, curr))
			diff, err := ui.ObjectDiff(prev, curr)
			if err != nil {
				_, _ = fmt.Fprintf(o.ErrOut, "Warning: %v\n", err)
				break
			}
			if diff == "" {
				_, _ = fmt.Fprintln(o.Out, "(no changes detected)")
				break
			}
			_, _ = fmt.Fprint(o.Out, colorizeDiff(diff, color))
		case curr != nil:
			if e.Verb == "create" {
				_, _ = fmt.Fprint(o.Out, "\nCreated resource\n\n")
			} else {
				_, _ = fmt.Fprint(o.Out, "\nInitial state (oldest available change)\n\n")
			}
			o.printObject(curr)
		case e.Verb == "delete" && prev != nil:
			_, _ = fmt.Fprint(o.Out, "\nDeleted resource\n\n")
			o.printObject(prev)
		}

		if curr != nil {
			prev = curr
		}
	}

	_, _ = fmt.Fprintf(o.ErrOut, "\nTotal: %d changes\n", len(events))
	return nil
}

func (o *HistoryOptions) printChangeHeader(n int, e *auditv1.Event, color bool) {
	verb := ui.VerbBadge(e.Verb)
	title := fmt.Sprintf("Change #%d  %s", n, verb.Text)
	if e.ResponseStatus != nil {
		title += fmt.Sprintf(" [%s]", ui.StatusBadge(e.ResponseStatus.Code).Text)
	}
	if color {
		title = ui.TitleStyle.Render(title)
	}

	_, _ = fmt.Fprintf(o.Out, "\n%s\n", title)
	_, _ = fmt.Fprintf(o.Out, "  %s\n", e.StageTimestamp.UTC().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(o.Out, "  %s\n", e.User.Username)
}

func (o *HistoryOptions) printObject(obj map[string]any) {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(o.ErrOut, "Warning: failed to print object: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(o.Out, string(data))
}

// cleanObjectForDiff drops the metadata that changes on every write.
func cleanObjectForDiff(obj map[string]any) map[string]any {
	cleaned := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case "metadata":
			meta, ok := v.(map[string]any)
			if !ok {
				continue
			}
			kept := make(map[string]any)
			for _, mk := range []string{"name", "namespace", "labels", "annotations"} {
				if mv, ok := meta[mk]; ok {
					kept[mk] = mv
				}
			}
			if len(kept) > 0 {
				cleaned[k] = kept
			}
		case "managedFields", "resourceVersion", "generation", "uid":
		default:
			cleaned[k] = v
		}
	}
	return cleaned
}

// summarizeChanges names the top-level fields that differ, ignoring status
// and metadata.
func summarizeChanges(prev, curr map[string]any) string {
	var changes []string
	for _, k := range sortedKeys(curr) {
		if k == "status" || k == "metadata" {
			continue
		}
		prevVal, _ := json.Marshal(prev[k])
		currVal, _ := json.Marshal(curr[k])
		if string(prevVal) != string(currVal) {
			changes = append(changes, k)
		}
	}
	for _, k := range sortedKeys(prev) {
		if k == "status" || k == "metadata" {
			continue
		}
		if _, ok := curr[k]; !ok {
			changes = append(changes, k+" (removed)")
		}
	}

	switch {
	case len(changes) == 0:
		return "metadata only"
	case len(changes) > 3:
		return fmt.Sprintf("%s and %d more fields", strings.Join(changes[:3], ", "), len(changes)-3)
	}
	return strings.Join(changes, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var (
	diffHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ui.Primary)
	diffHunkStyle   = lipgloss.NewStyle().Foreground(ui.Primary)
	diffAddStyle    = lipgloss.NewStyle().Foreground(ui.Success)
	diffDelStyle    = lipgloss.NewStyle().Foreground(ui.Destructive)
)

func colorizeDiff(diff string, color bool) string {
	if !color {
		return diff
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = diffHeaderStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = diffHunkStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = diffDelStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = diffAddStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// historyToTable converts audit events to a Table object
func historyToTable(events []auditv1.Event) *metav1.Table {
	table := common.NewTable(
		metav1.TableColumnDefinition{Name: "Timestamp", Type: "string", Description: "Time of the change"},
		metav1.TableColumnDefinition{Name: "Verb", Type: "string", Description: "Action performed"},
		metav1.TableColumnDefinition{Name: "User", Type: "string", Description: "User who made the change"},
		metav1.TableColumnDefinition{Name: "Status", Type: "string", Description: "HTTP status code"},
	)
	table.Rows = make([]metav1.TableRow, 0, len(events))
	for i := range events {
		e := &events[i]
		status := ""
		if e.ResponseStatus != nil {
			status = fmt.Sprintf("%d", e.ResponseStatus.Code)
		}
		table.Rows = append(table.Rows, metav1.TableRow{
			Cells: []interface{}{
				e.StageTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
				e.Verb,
				e.User.Username,
				status,
			},
		})
	}
	return table
}
