package plan

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/provision"
)

var args struct {
	region    string
	targetDir string
	variant   string
}

// NewPlanCmd provides the "plan" subcommand
func NewPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan PROJECT_ID [OWNER/REPO]",
		Short: "Write a gcloud script equivalent to the setup commands",
		Long: "Write a shell script that provisions the same resources as 'setup', " +
			"for operators who want to review or run the steps by hand. No cloud " +
			"calls are made.",
		PreRunE: validationForPlanCmd,
		RunE:    runPlanCmd,
	}

	arguments.AddRegionFlag(planCmd.Flags(), &args.region, deploy.DefaultRegion)
	arguments.AddOutputDirFlag(planCmd.Flags(), &args.targetDir)
	planCmd.Flags().StringVar(&args.variant, "variant", string(deploy.VariantWif),
		"Credential variant to plan for, either 'wif' or 'key'.")

	return planCmd
}

func validationForPlanCmd(cmd *cobra.Command, argv []string) error {
	if len(argv) < 1 || len(argv) > 2 {
		return fmt.Errorf(
			"expected a project ID, optionally followed by a GitHub repository as OWNER/REPO")
	}
	if _, err := manifestFromArgs(argv); err != nil {
		return err
	}

	var err error
	args.targetDir, err = arguments.GetPathFromFlag(args.targetDir)
	return err
}

func runPlanCmd(cmd *cobra.Command, argv []string) error {
	manifest, err := manifestFromArgs(argv)
	if err != nil {
		return err
	}

	log.Printf("Writing script file to %s", args.targetDir)
	if err := provision.WriteSetupScript(args.targetDir, manifest); err != nil {
		return errors.Wrapf(err, "failed to write setup script")
	}
	return nil
}

func manifestFromArgs(argv []string) (*deploy.Manifest, error) {
	githubRepo := ""
	if len(argv) == 2 {
		githubRepo = argv[1]
	}
	return deploy.NewManifest(argv[0], args.region, deploy.Variant(args.variant), githubRepo)
}
