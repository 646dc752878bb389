package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/cmd/util"

	"go.miloapis.com/activityfeed/internal/metrics"
	"go.miloapis.com/activityfeed/pkg/client"
)

// ClientFunc builds the Activity API client from the kubectl factory.
type ClientFunc func(f util.Factory) (client.Interface, error)

// DefaultClient builds a client.Client from the factory's REST config.
func DefaultClient(f util.Factory) (client.Interface, error) {
	config, err := f.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}
	c, err := client.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity client: %w", err)
	}
	return c, nil
}

// ActivityCommandOptions contains options for creating the activity command
type ActivityCommandOptions struct {
	// Factory is the kubectl factory to use for building clients.
	// If nil, a default factory will be created.
	Factory util.Factory

	// IOStreams for command input/output.
	// If not set, defaults to os.Stdin/Stdout/Stderr.
	IOStreams genericclioptions.IOStreams

	// ConfigFlags for kubeconfig management.
	// If nil and Factory is nil, default ConfigFlags will be created.
	// This field is ignored if Factory is provided.
	ConfigFlags *genericclioptions.ConfigFlags

	// NewClient builds the Activity API client. Defaults to DefaultClient.
	NewClient ClientFunc
}

// NewActivityCommand creates the root command for the activity CLI
// with the provided options. This allows external clients to provide their own
// factory, IO streams, or config flags. Pass an empty ActivityCommandOptions{}
// to use defaults.
func NewActivityCommand(opts ActivityCommandOptions) *cobra.Command {
	ioStreams := opts.IOStreams
	if ioStreams.In == nil {
		ioStreams.In = os.Stdin
	}
	if ioStreams.Out == nil {
		ioStreams.Out = os.Stdout
	}
	if ioStreams.ErrOut == nil {
		ioStreams.ErrOut = os.Stderr
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = DefaultClient
	}

	var f util.Factory
	var kubeConfigFlags *genericclioptions.ConfigFlags

	if opts.Factory != nil {
		f = opts.Factory
	} else {
		if opts.ConfigFlags != nil {
			kubeConfigFlags = opts.ConfigFlags
		} else {
			kubeConfigFlags = genericclioptions.NewConfigFlags(true)
		}
		matchVersionKubeConfigFlags := util.NewMatchVersionFlags(kubeConfigFlags)
		f = util.NewFactory(matchVersionKubeConfigFlags)
	}

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Browse the control plane activity feed",
		Long: `The activity plugin reads the human-readable activity feed of your control
plane: who changed what, when, and whether a person or a controller did it.

Use it to follow changes live, investigate incidents from the terminal, or
drill down into the audit logs behind an activity.`,
		SilenceUsage: true,
	}

	var dumpMetrics bool
	cmd.PersistentFlags().BoolVar(&dumpMetrics, "dump-metrics", false, "Write the client metrics (queries, stream events, filter errors) to stderr after the command finishes")
	cmd.PersistentPostRunE = func(c *cobra.Command, args []string) error {
		if !dumpMetrics {
			return nil
		}
		return metrics.WriteText(ioStreams.ErrOut)
	}

	// An external factory manages its own flags.
	if kubeConfigFlags != nil {
		kubeConfigFlags.AddFlags(cmd.PersistentFlags())
	}

	cmd.AddCommand(NewFeedCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewFacetsCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewBrowseCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewKindsCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewPoliciesCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewAuditCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewHistoryCommand(f, newClient, ioStreams))
	cmd.AddCommand(NewMCPCommand(f, newClient, ioStreams))

	return cmd
}
