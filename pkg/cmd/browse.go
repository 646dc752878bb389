package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/client/natswatch"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/facets"
	"go.miloapis.com/activityfeed/pkg/feed"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/tui"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// BrowseOptions contains the options for the interactive browser
type BrowseOptions struct {
	Filters   common.FilterFlags
	TimeRange common.TimeRangeFlags
	NATS      common.NATSFlags
	PageSize  int32
	Live      bool

	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
	Clock     clock.WithDelayedExecution

	// runProgram runs the bubbletea program. Tests replace it.
	runProgram func(ctx context.Context, m tea.Model, o *BrowseOptions) error
}

// NewBrowseOptions creates a new BrowseOptions with default values
func NewBrowseOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *BrowseOptions {
	return &BrowseOptions{
		IOStreams: ioStreams,
		Factory:   f,
		NewClient: newClient,
		Clock:     clock.RealClock{},
		PageSize:  client.DefaultPageSize,
		Live:      true,
		TimeRange: common.TimeRangeFlags{
			StartTime: timerange.Last24Hours,
			EndTime:   "now",
		},
		runProgram: runTeaProgram,
	}
}

// NewBrowseCommand creates the browse command
func NewBrowseCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewBrowseOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "browse [flags]",
		Short: "Browse the activity feed interactively",
		Long: `Open an interactive, live-updating view of the activity feed.

Scroll to the end of the list to load older activities. New activities stream
in at the top while live updates are on.

Keys:
  ↑/↓ or k/j  move           enter  details        /  search
  f           filter values  s      change source  t  time range
  w           live on/off    n      show new       r  retry
  x           clear filters  q      quit

Examples:
  # Browse the last 24 hours
  kubectl activity browse

  # Browse human changes to HTTPProxies over the last week
  kubectl activity browse --kind HTTPProxy --change-source human --start-time now-7d
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
	common.AddFilterFlags(cmd, &o.Filters)
	common.AddNATSFlags(cmd, &o.NATS)
	cmd.Flags().Int32Var(&o.PageSize, "page-size", o.PageSize, fmt.Sprintf("Activities per page (1-%d)", client.MaxPageSize))
	cmd.Flags().BoolVar(&o.Live, "live", o.Live, "Stream new activities as they happen")

	return cmd
}

// Complete fills in missing options
func (o *BrowseOptions) Complete(cmd *cobra.Command) error {
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
	if o.runProgram == nil {
		o.runProgram = runTeaProgram
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *BrowseOptions) Validate() error {
	if o.PageSize < 1 || o.PageSize > client.MaxPageSize {
		return fmt.Errorf("--page-size must be between 1 and %d", client.MaxPageSize)
	}
	if err := o.TimeRange.Validate(); err != nil {
		return err
	}
	if err := o.NATS.Validate(); err != nil {
		return err
	}
	return o.Filters.Validate()
}

// Run opens the browser and blocks until it exits
func (o *BrowseOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}
	tr, err := o.TimeRange.ToTimeRange(o.Clock.Now())
	if err != nil {
		return err
	}
	filters := o.Filters.Filters()

	opts := feed.Options{
		PageSize:           o.PageSize,
		Filters:            filters,
		TimeRange:          tr,
		AutoStartStreaming: o.Live,
		Clock:              o.Clock,
	}
	if o.NATS.Enabled() {
		w, err := natswatch.New(o.NATS.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer w.Close()
		opts.Streamer = w
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl := feed.NewController(c, opts)
	defer ctrl.Close()

	model := tui.New(ctx, tui.Config{
		Feed:      ctrl,
		Facets:    facets.NewTracker(facets.NewLoader(c)),
		Resolver:  ui.KubectlResolver{},
		Filters:   filters,
		TimeRange: tr,
		Clock:     o.Clock,
	})

	klog.V(2).InfoS("Starting activity browser", "timeRange", tr.String(), "live", o.Live)
	return o.runProgram(ctx, model, o)
}

func runTeaProgram(ctx context.Context, m tea.Model, o *BrowseOptions) error {
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(o.In),
		tea.WithOutput(o.Out),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("activity browser failed: %w", err)
	}
	return nil
}
