package verify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/gcp"
	"github.com/bybit-mcp/mcp-deploy/pkg/provision"
)

var args struct {
	region  string
	variant string
}

// NewVerifyCmd provides the "verify" subcommand
func NewVerifyCmd() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify PROJECT_ID [OWNER/REPO]",
		Short: "Verify that a project's deployment resources exist",
		Long: "Check the project for every resource 'setup' would create and report " +
			"the ones that are missing. Nothing is created or modified.",
		PreRunE: validationForVerifyCmd,
		RunE:    runVerifyCmd,
	}

	arguments.AddRegionFlag(verifyCmd.Flags(), &args.region, deploy.DefaultRegion)
	verifyCmd.Flags().StringVar(&args.variant, "variant", string(deploy.VariantWif),
		"Credential variant to verify against, either 'wif' or 'key'.")

	return verifyCmd
}

func validationForVerifyCmd(cmd *cobra.Command, argv []string) error {
	if len(argv) < 1 || len(argv) > 2 {
		return fmt.Errorf(
			"expected a project ID, optionally followed by a GitHub repository as OWNER/REPO")
	}
	_, err := manifestFromArgs(argv)
	return err
}

func runVerifyCmd(cmd *cobra.Command, argv []string) error {
	ctx := context.Background()

	manifest, err := manifestFromArgs(argv)
	if err != nil {
		return err
	}

	gcpClient, err := gcp.NewGcpClient(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to initiate GCP client")
	}

	provisioner := provision.NewProvisioner(provision.ProvisionerSpec{
		Manifest:  manifest,
		GcpClient: gcpClient,
	})

	missing, err := provisioner.Verify(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to verify project '%s'", manifest.ProjectID)
	}
	if len(missing) > 0 {
		for _, m := range missing {
			cmd.Printf("missing: %s\n", m)
		}
		return fmt.Errorf("project '%s' is missing %d resources; run 'mcpdeploy setup' to create them",
			manifest.ProjectID, len(missing))
	}

	cmd.Printf("Project '%s' has all deployment resources.\n", manifest.ProjectID)
	return nil
}

func manifestFromArgs(argv []string) (*deploy.Manifest, error) {
	githubRepo := ""
	if len(argv) == 2 {
		githubRepo = argv[1]
	}
	return deploy.NewManifest(argv[0], args.region, deploy.Variant(args.variant), githubRepo)
}
