package main

import (
	"os"

	"github.com/spf13/pflag"
	"k8s.io/component-base/cli"

	"go.miloapis.com/activityfeed/pkg/cmd"
)

func main() {
	flags := pflag.NewFlagSet("kubectl-activity", pflag.ExitOnError)
	pflag.CommandLine = flags

	rootCmd := cmd.NewActivityCommand(cmd.ActivityCommandOptions{})
	rootCmd.Use = "kubectl-activity"

	os.Exit(cli.Run(rootCmd))
}
