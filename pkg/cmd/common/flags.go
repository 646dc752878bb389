package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/client/natswatch"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

// TimeRangeFlags contains common time range flags
type TimeRangeFlags struct {
	StartTime string
	EndTime   string
}

// AddTimeRangeFlags adds time range flags to a command
func AddTimeRangeFlags(cmd *cobra.Command, flags *TimeRangeFlags, defaultStart string) {
	cmd.Flags().StringVar(&flags.StartTime, "start-time", defaultStart, "Start time (relative: 'now-7d' or absolute: RFC3339)")
	cmd.Flags().StringVar(&flags.EndTime, "end-time", "now", "End time (relative: 'now' or absolute: RFC3339)")
}

// Validate checks that time range flags are valid
func (f *TimeRangeFlags) Validate() error {
	if f.StartTime == "" {
		return fmt.Errorf("--start-time is required")
	}
	if f.EndTime == "" {
		return fmt.Errorf("--end-time is required")
	}
	return nil
}

// ToTimeRange converts the flags into a time range. A relative start with an
// end of "now" stays relative so the server resolves it; anything else is
// resolved against now into explicit bounds.
func (f *TimeRangeFlags) ToTimeRange(now time.Time) (timerange.TimeRange, error) {
	if f.EndTime == "now" && strings.HasPrefix(f.StartTime, "now-") {
		if _, err := timerange.ParseTime(f.StartTime, now); err != nil {
			return timerange.TimeRange{}, fmt.Errorf("invalid time range: invalid start time: %w", err)
		}
		return timerange.Preset(f.StartTime), nil
	}
	tr, err := timerange.Parse(f.StartTime, f.EndTime, now)
	if err != nil {
		return timerange.TimeRange{}, fmt.Errorf("invalid time range: %w", err)
	}
	return tr, nil
}

// PaginationFlags contains common pagination flags
type PaginationFlags struct {
	Limit         int32
	AllPages      bool
	ContinueAfter string
}

// AddPaginationFlags adds pagination flags to a command
func AddPaginationFlags(cmd *cobra.Command, flags *PaginationFlags, defaultLimit int32) {
	cmd.Flags().Int32Var(&flags.Limit, "limit", defaultLimit, fmt.Sprintf("Maximum number of results per page (1-%d)", client.MaxPageSize))
	cmd.Flags().BoolVar(&flags.AllPages, "all-pages", false, "Fetch all pages of results")
	cmd.Flags().StringVar(&flags.ContinueAfter, "continue-after", "", "Pagination cursor from previous query")
}

// Validate checks that pagination flags are valid
func (f *PaginationFlags) Validate() error {
	if f.Limit < 1 || f.Limit > client.MaxPageSize {
		return fmt.Errorf("--limit must be between 1 and %d", client.MaxPageSize)
	}
	if f.AllPages && f.ContinueAfter != "" {
		return fmt.Errorf("--all-pages and --continue-after are mutually exclusive")
	}
	return nil
}

// OutputFlags contains common output flags
type OutputFlags struct {
	NoHeaders bool
	Debug     bool
}

// AddOutputFlags adds output flags to a command
func AddOutputFlags(cmd *cobra.Command, flags *OutputFlags) {
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Omit table headers")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "Show debug information")
}

// SuggestFlags contains facet query flags
type SuggestFlags struct {
	Suggest string
}

// AddSuggestFlags adds suggest flag to a command
func AddSuggestFlags(cmd *cobra.Command, flags *SuggestFlags) {
	cmd.Flags().StringVar(&flags.Suggest, "suggest", "", "Show distinct values for a field (facet query)")
}

// IsSuggestMode returns true if suggest mode is active
func (f *SuggestFlags) IsSuggestMode() bool {
	return f.Suggest != ""
}

// FilterFlags are the activity filter flags shared by feed, facets and
// browse. Repeating a multi-valued flag, or passing a comma separated list,
// matches any of the values.
type FilterFlags struct {
	Namespaces   []string
	Actors       []string
	Kinds        []string
	APIGroups    []string
	ChangeSource string
	ResourceName string
	ResourceUID  string
	Search       string
	Filter       string
}

// AddFilterFlags adds activity filter flags to a command
func AddFilterFlags(cmd *cobra.Command, flags *FilterFlags) {
	cmd.Flags().StringSliceVarP(&flags.Namespaces, "namespace", "n", nil, "Filter by resource namespace")
	cmd.Flags().StringSliceVar(&flags.Actors, "actor", nil, "Filter by actor name")
	cmd.Flags().StringSliceVar(&flags.Kinds, "kind", nil, "Filter by resource kind (Deployment, HTTPProxy, etc.)")
	cmd.Flags().StringSliceVar(&flags.APIGroups, "api-group", nil, "Filter by API group")
	cmd.Flags().StringVar(&flags.ChangeSource, "change-source", "", "Filter by change source: human, system")
	cmd.Flags().StringVar(&flags.ResourceName, "resource-name", "", "Filter by resource name (substring match)")
	cmd.Flags().StringVar(&flags.ResourceUID, "resource-uid", "", "Get history of specific resource by UID")
	cmd.Flags().StringVar(&flags.Search, "search", "", "Full-text search in summaries")
	cmd.Flags().StringVar(&flags.Filter, "filter", "", "CEL filter expression")
}

// Filters returns the flags as a filter set.
func (f *FilterFlags) Filters() filter.Filters {
	return filter.Filters{
		ChangeSource:  f.ChangeSource,
		ResourceKinds: nonEmpty(f.Kinds),
		ActorNames:    nonEmpty(f.Actors),
		APIGroups:     f.APIGroups,
		Namespaces:    nonEmpty(f.Namespaces),
		ResourceName:  f.ResourceName,
		Search:        f.Search,
		ResourceUID:   f.ResourceUID,
		Expression:    f.Filter,
	}
}

// Validate checks the change source and compiles the CEL expression.
func (f *FilterFlags) Validate() error {
	return f.Filters().Validate()
}

// nonEmpty drops empty values. The core API group is the empty string, so
// APIGroups is passed through untouched.
func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// NATSFlags select a JetStream server as the live stream source instead of
// the API server watch.
type NATSFlags struct {
	natswatch.Config
}

// AddNATSFlags adds JetStream flags to a command
func AddNATSFlags(cmd *cobra.Command, flags *NATSFlags) {
	cmd.Flags().StringVar(&flags.URL, "nats-url", "", "Stream activities from this NATS JetStream server instead of the API server watch")
	cmd.Flags().StringVar(&flags.StreamName, "nats-stream", "", "JetStream stream holding activities (default ACTIVITIES)")
	cmd.Flags().StringVar(&flags.SubjectPrefix, "nats-subject-prefix", "", "Subject prefix of published activities (default activities)")
	cmd.Flags().StringVar(&flags.TenantType, "tenant-type", "", "Only stream activities of this tenant type")
	cmd.Flags().StringVar(&flags.TenantName, "tenant-name", "", "Only stream activities of this tenant")
	cmd.Flags().BoolVar(&flags.TLSEnabled, "nats-tls", false, "Use TLS for the NATS connection")
	cmd.Flags().StringVar(&flags.TLSCertFile, "nats-tls-cert", "", "Client certificate for NATS TLS")
	cmd.Flags().StringVar(&flags.TLSKeyFile, "nats-tls-key", "", "Client key for NATS TLS")
	cmd.Flags().StringVar(&flags.TLSCAFile, "nats-tls-ca", "", "CA bundle for NATS TLS")
}

// Enabled reports whether a NATS server was configured.
func (f *NATSFlags) Enabled() bool {
	return f.URL != ""
}

// Validate checks that tenant scoping is consistent.
func (f *NATSFlags) Validate() error {
	if f.TenantName != "" && f.TenantType == "" {
		return fmt.Errorf("--tenant-name requires --tenant-type")
	}
	if !f.Enabled() && (f.TenantType != "" || f.TLSEnabled) {
		return fmt.Errorf("NATS options require --nats-url")
	}
	return nil
}
