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

var keyOpts = options{}

// NewKeyCmd provides the "setup key" subcommand
func NewKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key PROJECT_ID",
		Short: "Provision deployment resources with a service account key",
		Long: "Provision the full deployment surface and mint a long-lived JSON key " +
			"for the deployer service account. Prefer 'setup wif' where the CI system " +
			"supports OIDC federation; a key is a standing credential that must be " +
			"stored and rotated by hand.",
		PreRunE: validationForKeyCmd,
		RunE:    runKeyCmd,
	}

	arguments.AddRegionFlag(keyCmd.Flags(), &keyOpts.Region, deploy.DefaultRegion)
	arguments.AddOutputDirFlag(keyCmd.Flags(), &keyOpts.TargetDir)
	arguments.AddAssumeYesFlag(keyCmd.Flags(), &keyOpts.AssumeYes)

	return keyCmd
}

func validationForKeyCmd(cmd *cobra.Command, argv []string) error {
	if len(argv) != 1 {
		_ = cmd.Usage()
		return fmt.Errorf("expected exactly one argument: a project ID")
	}
	if _, err := deploy.NewManifest(argv[0], keyOpts.Region, deploy.VariantKey, ""); err != nil {
		_ = cmd.Usage()
		return err
	}

	var err error
	keyOpts.TargetDir, err = arguments.GetPathFromFlag(keyOpts.TargetDir)
	return err
}

func runKeyCmd(cmd *cobra.Command, argv []string) error {
	ctx := context.Background()
	log := log.Default()

	manifest, err := deploy.NewManifest(argv[0], keyOpts.Region, deploy.VariantKey, "")
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

	log.Printf("Provisioning project '%s' with a service account key...", manifest.ProjectID)

	if err := provisioner.EnsureProject(ctx, log); err != nil {
		return errors.Wrapf(err, "failed to ensure project")
	}
	if err := confirmBilling(manifest.ProjectID, keyOpts.AssumeYes); err != nil {
		return err
	}
	if err := runCommonSteps(ctx, log, provisioner); err != nil {
		return err
	}

	keyPath, err := provisioner.MintServiceAccountKey(ctx, log, keyOpts.TargetDir)
	if err != nil {
		return errors.Wrapf(err, "failed to mint service account key")
	}

	log.Printf("Project '%s' is provisioned.", manifest.ProjectID)

	cmd.Println()
	cmd.Printf("WARNING: %s holds a long-lived credential for %s.\n",
		keyPath, manifest.ServiceAccountEmail())
	cmd.Println("Store it in the CI system's secret store, then delete the local copy.")

	printFollowUps(cmd, manifest)
	return nil
}
