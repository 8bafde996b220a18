package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
)

// WriteSetupScript renders the gcloud equivalent of the provisioning steps
// into targetDir for operator review. Nothing is executed.
func WriteSetupScript(targetDir string, manifest *deploy.Manifest) error {
	content := GenerateSetupScript(manifest)
	return os.WriteFile(filepath.Join(targetDir, "setup.sh"), []byte(content), 0600)
}

// GenerateSetupScript returns the shell commands matching the manifest, one
// idempotent gcloud call per resource, in dependency order.
func GenerateSetupScript(manifest *deploy.Manifest) string {
	var sb strings.Builder

	sb.WriteString("#!/bin/bash\nset -euo pipefail\n")

	sb.WriteString("\n# Create the project and make it the active context:\n")
	sb.WriteString(fmt.Sprintf("gcloud projects create %s --name=%s || true\n",
		manifest.ProjectID, manifest.ProjectID))
	sb.WriteString(fmt.Sprintf("gcloud config set project %s\n", manifest.ProjectID))

	sb.WriteString("\n# Enable required services:\n")
	sb.WriteString(fmt.Sprintf("gcloud services enable %s\n", strings.Join(manifest.Services(), " ")))

	sb.WriteString("\n# Create the container image repository:\n")
	sb.WriteString(fmt.Sprintf(
		"gcloud artifacts repositories create %s --repository-format=docker --location=%s --description=\"%s\" || true\n",
		deploy.RegistryRepoID, manifest.Region, registryDescription))

	sb.WriteString("\n# Create the deployer service account:\n")
	sb.WriteString(fmt.Sprintf(
		"gcloud iam service-accounts create %s --display-name=%s --description=\"%s\" || true\n",
		deploy.ServiceAccountID, deploy.ServiceAccountID, deployerDescription))

	sb.WriteString("\n# Bind project roles:\n")
	for _, role := range manifest.ProjectRoles() {
		sb.WriteString(fmt.Sprintf("gcloud projects add-iam-policy-binding %s --member=%s --role=%s\n",
			manifest.ProjectID, manifest.ServiceAccountMember(), role))
	}

	sb.WriteString("\n# Create secrets with no initial versions:\n")
	for _, secretID := range manifest.SecretIDs() {
		sb.WriteString(fmt.Sprintf("gcloud secrets create %s --replication-policy=automatic || true\n", secretID))
	}

	if manifest.Variant == deploy.VariantWif {
		sb.WriteString("\n# Grant the deployer narrow access on each secret:\n")
		for _, secretID := range manifest.SecretIDs() {
			for _, role := range deploy.SecretRoles {
				sb.WriteString(fmt.Sprintf("gcloud secrets add-iam-policy-binding %s --member=%s --role=%s\n",
					secretID, manifest.ServiceAccountMember(), role))
			}
		}
		sb.WriteString(workloadIdentityScriptContent(manifest))
	} else {
		sb.WriteString(serviceAccountKeyScriptContent(manifest))
	}

	return sb.String()
}

func workloadIdentityScriptContent(manifest *deploy.Manifest) string {
	var sb strings.Builder

	sb.WriteString("\n# Create the workload identity pool:\n")
	sb.WriteString(fmt.Sprintf(`gcloud iam workload-identity-pools create %s \
	--project=%s \
	--location=global \
	--description="%s" \
	--display-name="%s" || true
`, deploy.WorkloadPoolID, manifest.ProjectID, poolDescription, deploy.WorkloadPoolID))

	mappings := []string{}
	for attribute, claim := range manifest.AttributeMapping() {
		mappings = append(mappings, attribute+"="+claim)
	}
	sort.Strings(mappings)
	sb.WriteString("\n# Create the GitHub OIDC provider, trusting only the configured repository:\n")
	sb.WriteString(fmt.Sprintf(`gcloud iam workload-identity-pools providers create-oidc %s \
	--project=%s \
	--location=global \
	--workload-identity-pool=%s \
	--display-name="%s" \
	--issuer-uri="%s" \
	--attribute-mapping="%s" \
	--attribute-condition='%s' || true
`, deploy.WorkloadProviderID, manifest.ProjectID, deploy.WorkloadPoolID, deploy.WorkloadProviderID,
		deploy.GithubIssuerURL, strings.Join(mappings, ","), manifest.AttributeCondition()))

	sb.WriteString("\n# Allow the federated identity to impersonate the deployer:\n")
	sb.WriteString(fmt.Sprintf(`PROJECT_NUMBER=$(gcloud projects describe %s --format='value(projectNumber)')
gcloud iam service-accounts add-iam-policy-binding %s \
	--member="principalSet://iam.googleapis.com/projects/${PROJECT_NUMBER}/locations/global/workloadIdentityPools/%s/attribute.repository/%s" \
	--role=%s
`, manifest.ProjectID, manifest.ServiceAccountEmail(), deploy.WorkloadPoolID, manifest.GithubRepo,
		workloadIdentityUserRole))

	return sb.String()
}

func serviceAccountKeyScriptContent(manifest *deploy.Manifest) string {
	return fmt.Sprintf(`
# Mint a long-lived deployer key. Delete the file once registered with CI:
gcloud iam service-accounts keys create %s --iam-account=%s
`, deploy.KeyFileName, manifest.ServiceAccountEmail())
}
