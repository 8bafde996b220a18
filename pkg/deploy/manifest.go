// Package deploy defines the desired-state manifest for a bybit-mcp
// deployment. The manifest is a pure description of the Google Cloud
// resources a deployment needs; pkg/provision reconciles it against the
// observed cloud state.
package deploy

import (
	"fmt"
	"regexp"
)

// Variant selects the credential posture of the deployment.
type Variant string

const (
	// VariantKey provisions a long-lived service account key for CI. The
	// key must be deleted by the operator once registered.
	VariantKey Variant = "key"

	// VariantWif provisions a workload identity pool and GitHub OIDC
	// provider so CI exchanges short-lived federated credentials instead
	// of holding a key.
	VariantWif Variant = "wif"
)

const (
	DefaultRegion = "us-central1"

	RegistryRepoID     = "bybit-mcp"
	ServiceAccountID   = "bybit-mcp-deployer"
	WorkloadPoolID     = "github-pool"
	WorkloadProviderID = "github-provider"

	GithubIssuerURL = "https://token.actions.githubusercontent.com"

	KeyFileName = "deployer-key.json"
)

// Project-level roles granted to the deployer service account.
var baseProjectRoles = []string{
	"roles/run.admin",
	"roles/artifactregistry.writer",
	"roles/iam.serviceAccountUser",
}

// Roles granted on each individual secret in the wif variant, replacing
// the project-wide secret accessor grant of the key variant.
var SecretRoles = []string{
	"roles/secretmanager.secretAccessor",
	"roles/secretmanager.secretVersionManager",
}

var baseSecretIDs = []string{
	"bybit-api-key",
	"bybit-api-secret",
	"mcp-auth-token",
}

var baseServices = []string{
	"run.googleapis.com",
	"artifactregistry.googleapis.com",
	"secretmanager.googleapis.com",
	"iam.googleapis.com",
	"iamcredentials.googleapis.com",
	"cloudresourcemanager.googleapis.com",
	"cloudbuild.googleapis.com",
}

var (
	projectIDRE  = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	githubRepoRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// Manifest is the declarative description of one deployment. Values are
// fixed at construction; all resource names and identifiers derive from
// the project ID, region and variant.
type Manifest struct {
	ProjectID  string
	Region     string
	Variant    Variant
	GithubRepo string
}

// NewManifest validates the inputs and builds a manifest. The github
// repository is required for the wif variant and must be of the form
// "owner/repo"; it is rejected for the key variant.
func NewManifest(projectID, region string, variant Variant, githubRepo string) (*Manifest, error) {
	if !projectIDRE.MatchString(projectID) {
		return nil, fmt.Errorf("invalid project ID '%s': must be 6 to 30 lowercase "+
			"letters, digits or hyphens, starting with a letter", projectID)
	}
	if region == "" {
		region = DefaultRegion
	}
	switch variant {
	case VariantKey:
		if githubRepo != "" {
			return nil, fmt.Errorf("a github repository only applies to the wif variant")
		}
	case VariantWif:
		if !githubRepoRE.MatchString(githubRepo) {
			return nil, fmt.Errorf("invalid github repository '%s': expected the form "+
				"OWNER/REPO", githubRepo)
		}
	default:
		return nil, fmt.Errorf("unknown variant '%s'", variant)
	}
	return &Manifest{
		ProjectID:  projectID,
		Region:     region,
		Variant:    variant,
		GithubRepo: githubRepo,
	}, nil
}

// Services returns the APIs that must be enabled on the project.
func (m *Manifest) Services() []string {
	services := append([]string{}, baseServices...)
	if m.Variant == VariantWif {
		services = append(services, "sts.googleapis.com")
	}
	return services
}

// ProjectRoles returns the project-level roles granted to the deployer
// service account. The key variant grants secret access project-wide; the
// wif variant narrows it to per-secret bindings instead.
func (m *Manifest) ProjectRoles() []string {
	roles := append([]string{}, baseProjectRoles...)
	if m.Variant == VariantKey {
		roles = append(roles, "roles/secretmanager.secretAccessor")
	}
	return roles
}

// SecretIDs returns the names of the secrets created for the deployment.
func (m *Manifest) SecretIDs() []string {
	secrets := append([]string{}, baseSecretIDs...)
	if m.Variant == VariantWif {
		secrets = append(secrets, "oauth-secret")
	}
	return secrets
}

func (m *Manifest) ProjectResource() string {
	return fmt.Sprintf("projects/%s", m.ProjectID)
}

func (m *Manifest) RegistryParent() string {
	return fmt.Sprintf("projects/%s/locations/%s", m.ProjectID, m.Region)
}

func (m *Manifest) RegistryResource() string {
	return fmt.Sprintf("%s/repositories/%s", m.RegistryParent(), RegistryRepoID)
}

func (m *Manifest) ServiceAccountEmail() string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", ServiceAccountID, m.ProjectID)
}

func (m *Manifest) ServiceAccountResource() string {
	return fmt.Sprintf("projects/%s/serviceAccounts/%s", m.ProjectID, m.ServiceAccountEmail())
}

func (m *Manifest) ServiceAccountMember() string {
	return fmt.Sprintf("serviceAccount:%s", m.ServiceAccountEmail())
}

func (m *Manifest) SecretResource(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", m.ProjectID, secretID)
}

func (m *Manifest) PoolParent() string {
	return fmt.Sprintf("projects/%s/locations/global", m.ProjectID)
}

func (m *Manifest) PoolResource() string {
	return fmt.Sprintf("%s/workloadIdentityPools/%s", m.PoolParent(), WorkloadPoolID)
}

func (m *Manifest) ProviderResource() string {
	return fmt.Sprintf("%s/providers/%s", m.PoolResource(), WorkloadProviderID)
}

// FederatedProviderResource is the provider name in the project-number form
// expected by CI federation settings.
func (m *Manifest) FederatedProviderResource(projectNumber int64) string {
	return fmt.Sprintf(
		"projects/%d/locations/global/workloadIdentityPools/%s/providers/%s",
		projectNumber, WorkloadPoolID, WorkloadProviderID,
	)
}

// AttributeCondition restricts the OIDC provider to tokens minted for the
// configured source repository.
func (m *Manifest) AttributeCondition() string {
	return fmt.Sprintf(`assertion.repository == "%s"`, m.GithubRepo)
}

// AttributeMapping maps GitHub OIDC token claims onto Google attributes.
func (m *Manifest) AttributeMapping() map[string]string {
	return map[string]string{
		"google.subject":       "assertion.sub",
		"attribute.repository": "assertion.repository",
	}
}

// FederatedPrincipal returns the principal set that is allowed to
// impersonate the deployer service account. It is scoped to the configured
// repository through the provider's repository attribute.
func (m *Manifest) FederatedPrincipal(projectNumber int64) string {
	return fmt.Sprintf(
		"principalSet://iam.googleapis.com/projects/%d/locations/global/workloadIdentityPools/%s/attribute.repository/%s",
		projectNumber, WorkloadPoolID, m.GithubRepo,
	)
}
