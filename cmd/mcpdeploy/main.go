package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bybit-mcp/mcp-deploy/cmd/mcpdeploy/plan"
	"github.com/bybit-mcp/mcp-deploy/cmd/mcpdeploy/scaffold"
	"github.com/bybit-mcp/mcp-deploy/cmd/mcpdeploy/setup"
	"github.com/bybit-mcp/mcp-deploy/cmd/mcpdeploy/verify"
	"github.com/bybit-mcp/mcp-deploy/cmd/mcpdeploy/version"
	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/debug"
)

var root = &cobra.Command{
	Use:          "mcpdeploy",
	Long:         "Command line tool for provisioning bybit-mcp deployments on Google Cloud.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, argv []string) {
		debug.ConfigureLogger(log.Default())
	},
}

func init() {
	// Send logs to the standard error stream by default:
	err := flag.Set("logtostderr", "true")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't set default error stream: %v\n", err)
		os.Exit(1)
	}

	// Register the options that are managed by the 'flag' package, so that they will also be parsed
	// by the 'pflag' package:
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	// Add the command line flags:
	fs := root.PersistentFlags()
	arguments.AddDebugFlag(fs)

	// Register the subcommands:
	root.AddCommand(setup.NewSetupCmd())
	root.AddCommand(plan.NewPlanCmd())
	root.AddCommand(verify.NewVerifyCmd())
	root.AddCommand(scaffold.NewScaffoldCmd())
	root.AddCommand(version.Cmd)
}

func main() {
	// This is needed to make `glog` believe that the flags have already been parsed, otherwise
	// every log messages is prefixed by an error message stating the the flags haven't been
	// parsed.
	err := flag.CommandLine.Parse([]string{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't parse empty command line to satisfy 'glog': %v\n", err)
		os.Exit(1)
	}

	// Execute the root command:
	root.SetArgs(os.Args[1:])
	if err = root.Execute(); err != nil {
		os.Exit(1)
	}
}
