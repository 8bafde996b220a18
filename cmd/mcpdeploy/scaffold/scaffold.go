package scaffold

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/docker"
)

var args struct {
	targetDir string
}

// NewScaffoldCmd provides the "scaffold" subcommand
func NewScaffoldCmd() *cobra.Command {
	scaffoldCmd := &cobra.Command{
		Use:   "scaffold COMMAND",
		Short: "Generate build files for the service",
		Args:  cobra.MinimumNArgs(1),
	}

	scaffoldCmd.AddCommand(NewDockerCmd())

	return scaffoldCmd
}

// NewDockerCmd provides the "scaffold docker" subcommand
func NewDockerCmd() *cobra.Command {
	dockerCmd := &cobra.Command{
		Use:   "docker",
		Short: "Write container build files",
		Long: "Write a standard Dockerfile and a hardened variant that runs the " +
			"service as an unprivileged user.",
		PreRunE: validationForDockerCmd,
		RunE:    runDockerCmd,
	}

	arguments.AddOutputDirFlag(dockerCmd.Flags(), &args.targetDir)

	return dockerCmd
}

func validationForDockerCmd(cmd *cobra.Command, argv []string) error {
	if len(argv) != 0 {
		return fmt.Errorf("expected no arguments")
	}

	var err error
	args.targetDir, err = arguments.GetPathFromFlag(args.targetDir)
	return err
}

func runDockerCmd(cmd *cobra.Command, argv []string) error {
	log.Printf("Writing container build files to %s", args.targetDir)
	if err := docker.WriteDockerfiles(args.targetDir); err != nil {
		return errors.Wrapf(err, "failed to write container build files")
	}
	return nil
}
