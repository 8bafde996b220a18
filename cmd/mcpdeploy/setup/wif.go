package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/gcp"
	"github.com/bybit-mcp/mcp-deploy/pkg/provision"
)

var wifOpts = options{}

// NewWifCmd provides the "setup wif" subcommand
func NewWifCmd() *cobra.Command {
	wifCmd := &cobra.Command{
		Use:   "wif PROJECT_ID OWNER/REPO",
		Short: "Provision deployment resources with workload identity federation",
		Long: "Provision the full deployment surface for a GitHub repository using " +
			"workload identity federation. GitHub Actions workflows of the given " +
			"repository impersonate the deployer service account through short-lived " +
			"federated tokens; no key material is created.",
		PreRunE: validationForWifCmd,
		RunE:    runWifCmd,
	}

	arguments.AddRegionFlag(wifCmd.Flags(), &wifOpts.Region, deploy.DefaultRegion)
	arguments.AddAssumeYesFlag(wifCmd.Flags(), &wifOpts.AssumeYes)

	return wifCmd
}

func validationForWifCmd(cmd *cobra.Command, argv []string) error {
	if len(argv) != 2 {
		_ = cmd.Usage()
		return fmt.Errorf(
			"expected exactly two arguments: a project ID and a GitHub repository as OWNER/REPO")
	}
	// Fail on malformed input before any cloud call is made.
	if _, err := deploy.NewManifest(argv[0], wifOpts.Region, deploy.VariantWif, argv[1]); err != nil {
		_ = cmd.Usage()
		return err
	}
	return nil
}

func runWifCmd(cmd *cobra.Command, argv []string) error {
	ctx := context.Background()
	log := log.Default()

	manifest, err := deploy.NewManifest(argv[0], wifOpts.Region, deploy.VariantWif, argv[1])
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

	log.Printf("Provisioning project '%s' for workload identity federation...", manifest.ProjectID)

	if err := provisioner.EnsureProject(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure project")
	}
	if err := confirmBilling(manifest.ProjectID, wifOpts.AssumeYes); err != nil {
		return err
	}
	if err := runCommonSteps(ctx, log, provisioner); err != nil {
		return err
	}
	if err := provisioner.EnsureSecretBindings(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure secret bindings")
	}
	if err := provisioner.EnsureWorkloadIdentityPool(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure workload identity pool")
	}
	if err := provisioner.EnsureWorkloadIdentityProvider(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure workload identity provider")
	}
	if err := provisioner.EnsureFederatedAccess(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure federated access")
	}

	projectNum, err := gcpClient.ProjectNumberFromId(ctx, manifest.ProjectID)
	if err != nil {
		return errors.Wrapf(err, "failed to get project number from id")
	}

	log.Printf("Project '%s' is provisioned.", manifest.ProjectID)

	printFollowUps(cmd, manifest)
	cmd.Println()
	cmd.Println("Configure these values in the repository's CI settings:")
	cmd.Printf("  workload_identity_provider: %s\n", manifest.FederatedProviderResource(projectNum))
	cmd.Printf("  service_account: %s\n", manifest.ServiceAccountEmail())
	return nil
}
