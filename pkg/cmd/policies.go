package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/cmd/util"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/cmd/common"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// PoliciesOptions contains the options for listing ActivityPolicies
type PoliciesOptions struct {
	APIGroup string
	Kind     string
	Output   common.OutputFlags

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc
}

// NewPoliciesOptions creates a new PoliciesOptions with default values
func NewPoliciesOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *PoliciesOptions {
	return &PoliciesOptions{
		IOStreams:  ioStreams,
		Factory:    f,
		NewClient:  newClient,
		PrintFlags: genericclioptions.NewPrintFlags(""),
	}
}

// NewPoliciesCommand creates the policies command
func NewPoliciesCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewPoliciesOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:     "policies [flags]",
		Aliases: []string{"policy"},
		Short:   "List the ActivityPolicies that translate changes into activities",
		Long: `List the ActivityPolicies configured on the control plane, with the resource
each one targets and how many audit and event rules it has.

Examples:
  # All policies
  kubectl activity policies

  # Policies for HTTPProxies
  kubectl activity policies --api-group networking.datumapis.com --kind HTTPProxy

  # Full policy objects
  kubectl activity policies -o yaml
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.APIGroup, "api-group", "", "Only list policies targeting this API group")
	cmd.Flags().StringVar(&o.Kind, "kind", "", "Only list policies targeting this kind")
	common.AddOutputFlags(cmd, &o.Output)
	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Complete fills in missing options
func (o *PoliciesOptions) Complete(cmd *cobra.Command) error {
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

// Run lists and prints the policies
func (o *PoliciesOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}

	list, err := c.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list activity policies: %w", err)
	}
	list = list.DeepCopy()
	list.Items = slices.DeleteFunc(list.Items, func(p v1alpha1.ActivityPolicy) bool {
		return !o.matches(p.Spec.Resource)
	})

	if !common.IsDefaultOutputFormat(o.PrintFlags) {
		printer, err := common.CreatePrinter(o.PrintFlags)
		if err != nil {
			return fmt.Errorf("failed to create printer: %w", err)
		}
		list.TypeMeta = metav1.TypeMeta{Kind: "ActivityPolicyList", APIVersion: v1alpha1.SchemeGroupVersion.String()}
		return printer.PrintObj(list, o.Out)
	}

	if len(list.Items) == 0 {
		_, _ = fmt.Fprintln(o.ErrOut, "No activity policies found.")
		return nil
	}
	return common.NewTablePrinter(o.IOStreams, o.Output.NoHeaders).PrintTable(policiesToTable(list.Items))
}

// matches filters by target. The API group is compared only when --api-group
// was given, since the core group is the empty string.
func (o *PoliciesOptions) matches(r v1alpha1.ActivityPolicyResource) bool {
	if o.APIGroup != "" && r.APIGroup != o.APIGroup {
		return false
	}
	return o.Kind == "" || r.Kind == o.Kind
}

// policiesToTable converts policies to a Table object
func policiesToTable(policies []v1alpha1.ActivityPolicy) *metav1.Table {
	table := common.NewTable(
		metav1.TableColumnDefinition{Name: "Name", Type: "string", Format: "name", Description: "Policy name"},
		metav1.TableColumnDefinition{Name: "API Group", Type: "string", Description: "Target API group"},
		metav1.TableColumnDefinition{Name: "Kind", Type: "string", Description: "Target kind"},
		metav1.TableColumnDefinition{Name: "Audit Rules", Type: "integer", Description: "Number of audit rules"},
		metav1.TableColumnDefinition{Name: "Event Rules", Type: "integer", Description: "Number of event rules"},
		metav1.TableColumnDefinition{Name: "Ready", Type: "string", Description: "Whether every rule compiled"},
	)
	for i := range policies {
		p := &policies[i]
		group := p.Spec.Resource.APIGroup
		if group == "" {
			group = "core"
		}
		table.Rows = append(table.Rows, metav1.TableRow{
			Cells: []interface{}{
				p.Name,
				group,
				ui.DeriveKindLabel(p.Spec.Resource.Kind),
				len(p.Spec.AuditRules),
				len(p.Spec.EventRules),
				policyReady(p),
			},
		})
	}
	return table
}

func policyReady(p *v1alpha1.ActivityPolicy) string {
	cond := meta.FindStatusCondition(p.Status.Conditions, "Ready")
	if cond == nil {
		return "Unknown"
	}
	if cond.Status == metav1.ConditionTrue {
		return "True"
	}
	return fmt.Sprintf("False (%s)", cond.Reason)
}
