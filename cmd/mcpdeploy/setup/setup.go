package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bybit-mcp/mcp-deploy/pkg/arguments"
	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/provision"
)

type options struct {
	Region    string
	TargetDir string
	AssumeYes bool
}

// NewSetupCmd implements the "setup" subcommand for cloud resource provisioning
func NewSetupCmd() *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup COMMAND",
		Short: "Provision Google Cloud resources for a bybit-mcp deployment",
		Long: "Provision the project, registry, service account, IAM bindings and " +
			"secrets needed to deploy the bybit-mcp service. Every step is idempotent " +
			"and safe to re-run.",
		Args: cobra.MinimumNArgs(1),
	}

	setupCmd.AddCommand(NewWifCmd())
	setupCmd.AddCommand(NewKeyCmd())

	return setupCmd
}

// confirmBilling blocks on the manual billing gate unless --assume-yes was
// given. Billing cannot be linked through the APIs used here.
func confirmBilling(projectID string, assumeYes bool) error {
	if assumeYes {
		return nil
	}
	confirmed, err := arguments.ConfirmBilling(projectID)
	if err != nil {
		return errors.Wrap(err, "failed to read billing confirmation")
	}
	if !confirmed {
		return fmt.Errorf("billing must be linked to project '%s' before provisioning can continue", projectID)
	}
	return nil
}

// runCommonSteps performs the steps shared by both variants, in dependency
// order. The first failure aborts the run; earlier steps are not rolled back.
func runCommonSteps(ctx context.Context, log *log.Logger, p provision.Provisioner) error {
	if err := p.EnsureServices(ctx, log); err != nil {
		return err
	}
	if err := p.EnsureArtifactRegistry(ctx, log); err != nil {
		return err
	}
	if err := p.EnsureServiceAccount(ctx, log); err != nil {
		return err
	}
	if err := p.EnsureProjectBindings(ctx, log); err != nil {
		return err
	}
	return p.EnsureSecrets(ctx, log)
}

func printFollowUps(cmd *cobra.Command, manifest *deploy.Manifest) {
	cmd.Println()
	cmd.Println("Next steps:")
	for i, secretID := range manifest.SecretIDs() {
		cmd.Printf("%d. Add a version to secret '%s':\n", i+1, secretID)
		cmd.Printf("   gcloud secrets versions add %s --data-file=-\n", secretID)
	}
	cmd.Printf("%d. Push an image to %s/%s and deploy it to Cloud Run.\n",
		len(manifest.SecretIDs())+1, manifest.Region+"-docker.pkg.dev",
		manifest.ProjectID+"/"+deploy.RegistryRepoID)
}
