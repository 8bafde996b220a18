// Package provision reconciles a deployment manifest against observed
// Google Cloud state. Every step is idempotent: presence of a resource is
// success, and a re-run against a fully provisioned project performs no
// mutating calls.
package provision

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"cloud.google.com/go/iam/admin/apiv1/adminpb"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/pkg/errors"
	artifactregistry "google.golang.org/api/artifactregistry/v1"
	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"
	iamv1 "google.golang.org/api/iam/v1"

	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
	"github.com/bybit-mcp/mcp-deploy/pkg/gcp"
	"github.com/bybit-mcp/mcp-deploy/pkg/utils"
)

const (
	maxRetries   = 10
	retryDelayMs = 500
)

const workloadIdentityUserRole = "roles/iam.workloadIdentityUser"

const (
	registryDescription = "Container images for the bybit-mcp service"
	deployerDescription = "Deploys bybit-mcp to Cloud Run"
	poolDescription     = "GitHub Actions federation for bybit-mcp"
)

// All operations that modify cloud resources should be logged to the user.
// For this reason, all methods of this interface take a logger as a parameter.
type Provisioner interface {
	EnsureProject(ctx context.Context, log *log.Logger) error
	EnsureServices(ctx context.Context, log *log.Logger) error
	EnsureArtifactRegistry(ctx context.Context, log *log.Logger) error
	EnsureServiceAccount(ctx context.Context, log *log.Logger) error
	EnsureProjectBindings(ctx context.Context, log *log.Logger) error
	EnsureSecrets(ctx context.Context, log *log.Logger) error
	EnsureSecretBindings(ctx context.Context, log *log.Logger) error
	EnsureWorkloadIdentityPool(ctx context.Context, log *log.Logger) error
	EnsureWorkloadIdentityProvider(ctx context.Context, log *log.Logger) error
	EnsureFederatedAccess(ctx context.Context, log *log.Logger) error
	MintServiceAccountKey(ctx context.Context, log *log.Logger, targetDir string) (string, error)

	// Verify reports the manifest resources that are absent from the cloud.
	Verify(ctx context.Context) ([]string, error)
}

type provisioner struct {
	manifest  *deploy.Manifest
	gcpClient gcp.GcpClient
}

type ProvisionerSpec struct {
	Manifest  *deploy.Manifest
	GcpClient gcp.GcpClient
}

func NewProvisioner(spec ProvisionerSpec) Provisioner {
	return &provisioner{
		manifest:  spec.Manifest,
		gcpClient: spec.GcpClient,
	}
}

func (p *provisioner) EnsureProject(ctx context.Context, log *log.Logger) error {
	_, err := p.gcpClient.GetProject(ctx, p.manifest.ProjectID)
	if err == nil {
		return nil
	}
	// Projects the caller cannot see report not-found or forbidden; either
	// way a create attempt settles the question.
	createErr := p.gcpClient.CreateProject(ctx, &cloudresourcemanager.Project{
		ProjectId: p.manifest.ProjectID,
		Name:      p.manifest.ProjectID,
	})
	if createErr != nil {
		if gcp.IsAlreadyExists(createErr) {
			return nil
		}
		return errors.Wrapf(createErr, "failed to create project '%s'", p.manifest.ProjectID)
	}
	log.Printf("Project '%s' has been created", p.manifest.ProjectID)
	return nil
}

func (p *provisioner) EnsureServices(ctx context.Context, log *log.Logger) error {
	services := p.manifest.Services()
	if err := p.gcpClient.BatchEnableServices(ctx, p.manifest.ProjectID, services); err != nil {
		return errors.Wrap(err, "failed to enable required services")
	}
	log.Printf("Enabled %d services on project '%s'", len(services), p.manifest.ProjectID)
	return nil
}

func (p *provisioner) EnsureArtifactRegistry(ctx context.Context, log *log.Logger) error {
	_, err := p.gcpClient.GetArtifactRepository(ctx, p.manifest.RegistryResource())
	if err == nil {
		return nil
	}
	if !gcp.IsNotFound(err) {
		return errors.Wrapf(err, "failed to check if artifact repository '%s' exists", deploy.RegistryRepoID)
	}

	_, err = p.gcpClient.CreateArtifactRepository(
		ctx,
		p.manifest.RegistryParent(),
		deploy.RegistryRepoID,
		&artifactregistry.Repository{
			Format:      "DOCKER",
			Description: registryDescription,
		},
	)
	if err != nil {
		if gcp.IsAlreadyExists(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to create artifact repository '%s'", deploy.RegistryRepoID)
	}
	log.Printf("Artifact repository '%s' created in '%s'", deploy.RegistryRepoID, p.manifest.Region)
	return nil
}

// Creates the deployer service account if absent. If the account already
// exists, the current instance is fetched and treated as success; a
// disabled account is re-enabled.
func (p *provisioner) EnsureServiceAccount(ctx context.Context, log *log.Logger) error {
	request := &adminpb.CreateServiceAccountRequest{
		Name:      p.manifest.ProjectResource(),
		AccountId: deploy.ServiceAccountID,
		ServiceAccount: &adminpb.ServiceAccount{
			DisplayName: deploy.ServiceAccountID,
			Description: deployerDescription,
		},
	}
	sa, err := p.gcpClient.CreateServiceAccount(ctx, request)
	if err != nil {
		if !gcp.IsAlreadyExists(err) {
			return errors.Wrap(err, "failed to create deployer service account")
		}
		sa, err = p.gcpClient.GetServiceAccount(ctx, &adminpb.GetServiceAccountRequest{
			Name: gcp.FmtSaResourceId(deploy.ServiceAccountID, p.manifest.ProjectID),
		})
		if err != nil {
			return errors.Wrap(err, "failed to fetch existing deployer service account")
		}
	} else {
		log.Printf("IAM service account '%s' has been created", deploy.ServiceAccountID)
	}

	if sa.Disabled {
		if err := p.gcpClient.EnableServiceAccount(ctx, deploy.ServiceAccountID, p.manifest.ProjectID); err != nil {
			return errors.Wrapf(err, "failed to enable service account '%s'", deploy.ServiceAccountID)
		}
		log.Printf("IAM service account '%s' has been enabled", deploy.ServiceAccountID)
	}
	return nil
}

func (p *provisioner) EnsureProjectBindings(ctx context.Context, log *log.Logger) error {
	// It was found that there is a window of time between when a service
	// account creation call is made that the service account is not available
	// in adjacent API calls. The call is therefore wrapped in retry logic to
	// be robust to these types of synchronization issues.
	return utils.DelayedRetry(func() error {
		return p.bindRolesToPrincipal(
			ctx,
			log,
			p.manifest.ServiceAccountMember(),
			p.manifest.ProjectRoles(),
		)
	}, maxRetries, retryDelayMs*time.Millisecond)
}

func (p *provisioner) EnsureSecrets(ctx context.Context, log *log.Logger) error {
	for _, secretID := range p.manifest.SecretIDs() {
		_, err := p.gcpClient.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   p.manifest.ProjectResource(),
			SecretId: secretID,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if err != nil {
			if gcp.IsAlreadyExists(err) {
				continue
			}
			return errors.Wrapf(err, "failed to create secret '%s'", secretID)
		}
		log.Printf("Secret '%s' has been created with no versions", secretID)
	}
	return nil
}

// Grants the deployer service account access on each individual secret.
// Only the wif variant uses these narrow grants; the key variant relies on
// a project-wide accessor role instead.
func (p *provisioner) EnsureSecretBindings(ctx context.Context, log *log.Logger) error {
	if p.manifest.Variant != deploy.VariantWif {
		return nil
	}
	for _, secretID := range p.manifest.SecretIDs() {
		accessPolicy, err := p.gcpClient.GetSecretAccessPolicy(ctx, p.manifest.SecretResource(secretID))
		if err != nil {
			return errors.Wrapf(err, "failed to determine access policy of secret '%s'", secretID)
		}
		var modified bool
		for _, role := range deploy.SecretRoles {
			member := gcp.PolicyMember(p.manifest.ServiceAccountMember())
			if !accessPolicy.HasRole(member, gcp.RoleName(role)) {
				accessPolicy.AddRole(member, gcp.RoleName(role))
				modified = true
			}
		}
		if modified {
			if err := p.gcpClient.SetSecretAccessPolicy(ctx, accessPolicy); err != nil {
				return errors.Wrapf(err, "failed to grant deployer access on secret '%s'", secretID)
			}
			log.Printf("Deployer access granted on secret '%s'", secretID)
		}
	}
	return nil
}

func (p *provisioner) EnsureWorkloadIdentityPool(ctx context.Context, log *log.Logger) error {
	poolResource := p.manifest.PoolResource()

	resp, err := p.gcpClient.GetWorkloadIdentityPool(ctx, poolResource)
	if err != nil {
		if !gcp.IsNotFound(err) {
			return errors.Wrapf(err, "failed to check if there is existing workload identity pool '%s'",
				deploy.WorkloadPoolID)
		}
		pool := &iamv1.WorkloadIdentityPool{
			Name:        deploy.WorkloadPoolID,
			DisplayName: deploy.WorkloadPoolID,
			Description: poolDescription,
			State:       "ACTIVE",
			Disabled:    false,
		}
		if _, err := p.gcpClient.CreateWorkloadIdentityPool(ctx, p.manifest.PoolParent(), deploy.WorkloadPoolID, pool); err != nil {
			return errors.Wrapf(err, "failed to create workload identity pool '%s'", deploy.WorkloadPoolID)
		}
		log.Printf("Workload identity pool created with name '%s'", deploy.WorkloadPoolID)
		return nil
	}

	if resp != nil && resp.State == "DELETED" {
		_, err := p.gcpClient.UndeleteWorkloadIdentityPool(
			ctx, poolResource, &iamv1.UndeleteWorkloadIdentityPoolRequest{},
		)
		if err != nil {
			return errors.Wrapf(err, "failed to undelete workload identity pool '%s'", deploy.WorkloadPoolID)
		}
		log.Printf("Undeleted workload identity pool '%s'", deploy.WorkloadPoolID)
	}
	return nil
}

func (p *provisioner) EnsureWorkloadIdentityProvider(ctx context.Context, log *log.Logger) error {
	attributeMap := p.manifest.AttributeMapping()
	condition := p.manifest.AttributeCondition()
	providerResource := p.manifest.ProviderResource()
	state := "ACTIVE"

	resp, err := p.gcpClient.GetWorkloadIdentityProvider(ctx, providerResource)
	if err != nil {
		if !gcp.IsNotFound(err) {
			return errors.Wrapf(err, "failed to check if there is existing workload identity provider '%s' in pool '%s'",
				deploy.WorkloadProviderID, deploy.WorkloadPoolID)
		}
		provider := &iamv1.WorkloadIdentityPoolProvider{
			Name:               deploy.WorkloadProviderID,
			DisplayName:        deploy.WorkloadProviderID,
			Description:        poolDescription,
			State:              state,
			Disabled:           false,
			AttributeMapping:   attributeMap,
			AttributeCondition: condition,
			Oidc: &iamv1.Oidc{
				IssuerUri: deploy.GithubIssuerURL,
			},
		}
		if _, err := p.gcpClient.CreateWorkloadIdentityProvider(
			ctx, p.manifest.PoolResource(), deploy.WorkloadProviderID, provider,
		); err != nil {
			return errors.Wrapf(err, "failed to create workload identity provider '%s'", deploy.WorkloadProviderID)
		}
		log.Printf("Workload identity provider created with name '%s' for pool '%s'",
			deploy.WorkloadProviderID, deploy.WorkloadPoolID)
		return nil
	}

	var needsUpdate bool
	if resp.Description != poolDescription ||
		resp.Disabled ||
		resp.DisplayName != deploy.WorkloadProviderID ||
		resp.State != state ||
		resp.AttributeCondition != condition ||
		resp.Oidc == nil ||
		resp.Oidc.IssuerUri != deploy.GithubIssuerURL ||
		!reflect.DeepEqual(resp.AttributeMapping, attributeMap) {
		needsUpdate = true
	}

	if needsUpdate {
		if err := p.gcpClient.UpdateWorkloadIdentityProvider(ctx,
			&iamv1.WorkloadIdentityPoolProvider{
				Name:               providerResource,
				DisplayName:        deploy.WorkloadProviderID,
				Description:        poolDescription,
				State:              state,
				Disabled:           false,
				AttributeMapping:   attributeMap,
				AttributeCondition: condition,
				Oidc: &iamv1.Oidc{
					IssuerUri: deploy.GithubIssuerURL,
				},
			},
		); err != nil {
			return errors.Wrapf(err, "failed to update identity provider '%s' for workload identity pool '%s'",
				deploy.WorkloadProviderID, deploy.WorkloadPoolID)
		}
		log.Printf("Workload identity pool '%s' identity provider '%s' was updated",
			deploy.WorkloadPoolID, deploy.WorkloadProviderID)
	}
	return nil
}

// Allows the repository-scoped federated principal to impersonate the
// deployer service account. Trust is restricted to the one configured
// repository through the provider's attribute condition and the principal
// set below.
func (p *provisioner) EnsureFederatedAccess(ctx context.Context, log *log.Logger) error {
	projectNum, err := p.gcpClient.ProjectNumberFromId(ctx, p.manifest.ProjectID)
	if err != nil {
		return errors.Wrap(err, "failed to get project number from id")
	}

	saResource := gcp.FmtSaResourceId(deploy.ServiceAccountID, p.manifest.ProjectID)
	accessPolicy, err := p.gcpClient.GetServiceAccountAccessPolicy(ctx, saResource)
	if err != nil {
		return errors.Wrapf(err, "failed to determine access policy of service account '%s'",
			deploy.ServiceAccountID)
	}

	principal := gcp.PolicyMember(p.manifest.FederatedPrincipal(projectNum))
	if accessPolicy.HasRole(principal, workloadIdentityUserRole) {
		return nil
	}

	accessPolicy.AddRole(principal, workloadIdentityUserRole)
	if err := p.gcpClient.SetServiceAccountAccessPolicy(ctx, accessPolicy); err != nil {
		return errors.Wrapf(err, "failed to attach federated access on service account '%s'",
			deploy.ServiceAccountID)
	}
	log.Printf("Federated access granted to '%s' for repository '%s'",
		gcp.ExtractEmail(saResource), p.manifest.GithubRepo)
	return nil
}

// Mints a long-lived key for the deployer service account and writes it to
// targetDir. The caller is expected to warn the operator: the key grants
// standing access until deleted.
func (p *provisioner) MintServiceAccountKey(
	ctx context.Context,
	log *log.Logger,
	targetDir string,
) (string, error) {
	key, err := p.gcpClient.CreateServiceAccountKey(ctx, &adminpb.CreateServiceAccountKeyRequest{
		Name:           gcp.FmtSaResourceId(deploy.ServiceAccountID, p.manifest.ProjectID),
		PrivateKeyType: adminpb.ServiceAccountPrivateKeyType_TYPE_GOOGLE_CREDENTIALS_FILE,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create key for service account '%s'", deploy.ServiceAccountID)
	}

	keyPath := filepath.Join(targetDir, deploy.KeyFileName)
	if err := os.WriteFile(keyPath, key.PrivateKeyData, 0600); err != nil {
		return "", errors.Wrapf(err, "failed to write key file '%s'", keyPath)
	}
	log.Printf("Service account key written to '%s'", keyPath)
	return keyPath, nil
}

func (p *provisioner) bindRolesToPrincipal(
	ctx context.Context,
	log *log.Logger,
	principal string,
	roles []string,
) error {
	modified, err := p.ensurePolicyBindingsForProject(ctx, roles, principal)
	if err != nil {
		return errors.Errorf("failed to bind roles to principal %s: %s", principal, err)
	}
	if modified {
		log.Printf("Bound roles to principal '%s'", principal)
	}
	return nil
}
