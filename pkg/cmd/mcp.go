package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/component-base/version"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"go.miloapis.com/activityfeed/pkg/mcp/tools"
)

// MCPOptions contains the options for the MCP server
type MCPOptions struct {
	Name string

	genericclioptions.IOStreams
	Factory   util.Factory
	NewClient ClientFunc

	// serve runs the server until the client disconnects. Tests replace it.
	serve func(ctx context.Context, server *mcp.Server) error
}

// NewMCPOptions creates a new MCPOptions with default values
func NewMCPOptions(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *MCPOptions {
	return &MCPOptions{
		Name:      "activity",
		IOStreams: ioStreams,
		Factory:   f,
		NewClient: newClient,
		serve:     serveStdio,
	}
}

// NewMCPCommand creates the mcp command
func NewMCPCommand(f util.Factory, newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewMCPOptions(f, newClient, ioStreams)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server for AI assistants",
		Long: `Start an MCP (Model Context Protocol) server that exposes the activity feed
to AI assistants. The server communicates via stdio and uses the current
kubeconfig context.

Available tools:
  - query_activities: Search the activity feed
  - get_activity_facets: Get distinct values for activity fields
  - list_activity_policies: List configured ActivityPolicies
  - query_audit_logs: Search audit logs with CEL filters
  - get_audit_log_facets: Get distinct values for audit log fields

Example configuration for an MCP client:
  {
    "mcpServers": {
      "activity": {
        "command": "kubectl-activity",
        "args": ["mcp", "--context", "production"]
      }
    }
  }`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.Name, "server-name", o.Name, "Server name reported to MCP clients")

	return cmd
}

// Complete fills in missing options
func (o *MCPOptions) Complete(cmd *cobra.Command) error {
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	if o.NewClient == nil {
		o.NewClient = DefaultClient
	}
	if o.serve == nil {
		o.serve = serveStdio
	}
	// stdout carries the protocol; controller-runtime logs go to stderr.
	ctrllog.SetLogger(zap.New(zap.WriteTo(o.ErrOut), zap.Level(zapcore.WarnLevel)))
	return nil
}

// Run serves the tools until the client disconnects or ctx is done
func (o *MCPOptions) Run(ctx context.Context) error {
	c, err := o.NewClient(o.Factory)
	if err != nil {
		return err
	}

	server := tools.NewToolProvider(c).NewMCPServer(tools.ServerConfig{
		Name:    o.Name,
		Version: version.Get().GitVersion,
	})

	klog.V(1).InfoS("Starting MCP server", "name", o.Name)
	if err := o.serve(ctx, server); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func serveStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
