package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/info"
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of the tool",
	Long:  "Prints the version number of the tool.",
	RunE:  run,
}

func run(cmd *cobra.Command, argv []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", info.Version)
	return nil
}
