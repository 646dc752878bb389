package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"

	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// KindsOptions contains the options for listing resource kinds
type KindsOptions struct {
	APIGroups []string
	Output    common.OutputFlags

	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
}

// NewKindsOptions creates a new KindsOptions with default values
func NewKindsOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *KindsOptions {
	return &KindsOptions{
		IOStreams: ioStreams,
		Factory:   f,
		NewClient: newClient,
	}
}

// NewKindsCommand creates the kinds command
func NewKindsCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewKindsOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "kinds [flags]",
		Short: "List the resource kinds an ActivityPolicy can target",
		Long: `List the resource kinds served by the control plane, grouped by API group,
with the display labels used in activity summaries and filters.

Examples:
  # Every kind of every API group
  kubectl activity kinds

  # Kinds of one API group
  kubectl activity kinds --api-group networking.datumapis.com
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSliceVar(&o.APIGroups, "api-group", nil, "Only list kinds of these API groups")
	common.AddOutputFlags(cmd, &o.Output)

	return cmd
}

// Complete fills in missing options
func (o *KindsOptions) Complete(cmd *cobra.Command) error {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	if o.NewClient == nil {
		o.NewClient = DefaultClient
	}
	return nil
}

// Run discovers and prints the kinds. Groups whose discovery fails are
// reported after the table.
func (o *KindsOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}

	form := ui.NewPolicyResourceForm(c, nil)
	if err := form.LoadGroups(ctx); err != nil {
		return err
	}

	groups := o.APIGroups
	if len(groups) == 0 {
		for _, g := range form.GroupOptions() {
			groups = append(groups, g.Value)
		}
	}

	table := common.NewTable(
		metav1.TableColumnDefinition{Name: "API Group", Type: "string", Description: "API group, core for the legacy group"},
		metav1.TableColumnDefinition{Name: "Kind", Type: "string", Description: "Resource kind"},
		metav1.TableColumnDefinition{Name: "Label", Type: "string", Description: "Display label"},
		metav1.TableColumnDefinition{Name: "Plural", Type: "string", Description: "Plural display label"},
	)

	var errs []error
	for _, group := range groups {
		if err := form.SetAPIGroup(ctx, group); err != nil {
			klog.V(2).InfoS("Skipping API group", "group", group, "err", err)
			errs = append(errs, err)
			continue
		}
		if !form.APIGroup().IsKnown() {
			errs = append(errs, fmt.Errorf("API group %q is not served by the control plane", group))
			continue
		}
		groupLabel := form.APIGroup().Value()
		if opt, ok := form.APIGroup().Option(); ok {
			groupLabel = opt.Label
		}
		for _, kind := range form.KindOptions() {
			table.Rows = append(table.Rows, metav1.TableRow{
				Cells: []interface{}{groupLabel, kind.Value, kind.Label, ui.DerivePluralLabel(kind.Value)},
			})
		}
	}

	if err := common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders).PrintTable(table); err != nil {
		return err
	}
	return utilerrors.NewAggregate(errs)
}
