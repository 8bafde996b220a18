package provision

import (
	"context"
	"fmt"

	"cloud.google.com/go/iam/admin/apiv1/adminpb"
	"github.com/pkg/errors"
	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"

	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/gcp"
	"github.com/bybit-mcp/mcp-deploy/pkg/utils"
)

// Verify re-checks every manifest resource against the cloud and returns a
// description of each one that is missing, covering both the resources
// themselves and the IAM grants between them. An empty slice means the
// deployment is fully provisioned. Errors other than not-found abort the
// walk: absence is a finding, an unreachable API is not.
func (p *provisioner) Verify(ctx context.Context) ([]string, error) {
	var missing []string

	if _, err := p.gcpClient.GetProject(ctx, p.manifest.ProjectID); err != nil {
		if !gcp.IsNotFound(err) {
			return nil, errors.Wrapf(err, "failed to check project '%s'", p.manifest.ProjectID)
		}
		// Without the project nothing below can exist.
		return []string{fmt.Sprintf("project '%s'", p.manifest.ProjectID)}, nil
	}

	if _, err := p.gcpClient.GetArtifactRepository(ctx, p.manifest.RegistryResource()); err != nil {
		if !gcp.IsNotFound(err) {
			return nil, errors.Wrapf(err, "failed to check artifact repository '%s'", deploy.RegistryRepoID)
		}
		missing = append(missing, fmt.Sprintf("artifact repository '%s'", deploy.RegistryRepoID))
	}

	saResource := gcp.FmtSaResourceId(deploy.ServiceAccountID, p.manifest.ProjectID)
	saPresent := true
	if _, err := p.gcpClient.GetServiceAccount(ctx, &adminpb.GetServiceAccountRequest{
		Name: saResource,
	}); err != nil {
		if !gcp.IsNotFound(err) {
			return nil, errors.Wrapf(err, "failed to check service account '%s'", deploy.ServiceAccountID)
		}
		missing = append(missing, fmt.Sprintf("service account '%s'", deploy.ServiceAccountID))
		saPresent = false
	}

	projectPolicy, err := p.gcpClient.GetProjectIamPolicy(
		ctx,
		p.manifest.ProjectID,
		&cloudresourcemanager.GetIamPolicyRequest{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch policy for project")
	}
	for _, role := range p.manifest.ProjectRoles() {
		if !policyHasMember(projectPolicy, role, p.manifest.ServiceAccountMember()) {
			missing = append(missing, fmt.Sprintf("project role '%s' for the deployer", role))
		}
	}

	for _, secretID := range p.manifest.SecretIDs() {
		if _, err := p.gcpClient.GetSecret(ctx, p.manifest.SecretResource(secretID)); err != nil {
			if !gcp.IsNotFound(err) {
				return nil, errors.Wrapf(err, "failed to check secret '%s'", secretID)
			}
			missing = append(missing, fmt.Sprintf("secret '%s'", secretID))
			continue
		}
		if p.manifest.Variant != deploy.VariantWif {
			continue
		}
		accessPolicy, err := p.gcpClient.GetSecretAccessPolicy(ctx, p.manifest.SecretResource(secretID))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check access policy of secret '%s'", secretID)
		}
		for _, role := range deploy.SecretRoles {
			member := gcp.PolicyMember(p.manifest.ServiceAccountMember())
			if !accessPolicy.HasRole(member, gcp.RoleName(role)) {
				missing = append(missing, fmt.Sprintf("deployer access to secret '%s'", secretID))
				break
			}
		}
	}

	if p.manifest.Variant == deploy.VariantWif {
		if _, err := p.gcpClient.GetWorkloadIdentityPool(ctx, p.manifest.PoolResource()); err != nil {
			if !gcp.IsNotFound(err) {
				return nil, errors.Wrapf(err, "failed to check workload identity pool '%s'", deploy.WorkloadPoolID)
			}
			missing = append(missing, fmt.Sprintf("workload identity pool '%s'", deploy.WorkloadPoolID))
		} else if _, err := p.gcpClient.GetWorkloadIdentityProvider(ctx, p.manifest.ProviderResource()); err != nil {
			if !gcp.IsNotFound(err) {
				return nil, errors.Wrapf(err, "failed to check workload identity provider '%s'",
					deploy.WorkloadProviderID)
			}
			missing = append(missing, fmt.Sprintf("workload identity provider '%s'", deploy.WorkloadProviderID))
		}

		if saPresent {
			federatedMissing, err := p.verifyFederatedAccess(ctx, saResource)
			if err != nil {
				return nil, err
			}
			missing = append(missing, federatedMissing...)
		}
	}

	return missing, nil
}

// Checks that the repository-scoped principal set may impersonate the
// deployer. Only called once the service account is known to exist.
func (p *provisioner) verifyFederatedAccess(ctx context.Context, saResource string) ([]string, error) {
	projectNum, err := p.gcpClient.ProjectNumberFromId(ctx, p.manifest.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get project number from id")
	}
	accessPolicy, err := p.gcpClient.GetServiceAccountAccessPolicy(ctx, saResource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check access policy of service account '%s'",
			deploy.ServiceAccountID)
	}
	principal := gcp.PolicyMember(p.manifest.FederatedPrincipal(projectNum))
	if !accessPolicy.HasRole(principal, workloadIdentityUserRole) {
		return []string{fmt.Sprintf("federated access for repository '%s'", p.manifest.GithubRepo)}, nil
	}
	return nil, nil
}

func policyHasMember(policy *cloudresourcemanager.Policy, roleName, memberName string) bool {
	for _, binding := range policy.Bindings {
		if binding.Role == roleName && utils.Contains(binding.Members, memberName) {
			return true
		}
	}
	return false
}
