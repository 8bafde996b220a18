package provision

import (
	"context"
	"fmt"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/iam/admin/apiv1/adminpb"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2/apierror"
	artifactregistry "google.golang.org/api/artifactregistry/v1"
	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/googleapi"
	iamv1 "google.golang.org/api/iam/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bybit-mcp/mcp-deploy/pkg/gcp"
)

func grpcNotFound() error {
	apiErr, _ := apierror.FromError(status.Error(codes.NotFound, "not found"))
	return apiErr
}

func grpcAlreadyExists() error {
	apiErr, _ := apierror.FromError(status.Error(codes.AlreadyExists, "already exists"))
	return apiErr
}

func httpNotFound() error {
	return &googleapi.Error{Code: 404, Message: "Requested entity was not found"}
}

// fakeGcpClient holds provisioned state in maps keyed by resource name and
// records the name of every mutating call, so tests can assert that a
// second run against fully provisioned state mutates nothing.
type fakeGcpClient struct {
	projects        map[string]*cloudresourcemanager.Project
	repositories    map[string]*artifactregistry.Repository
	serviceAccounts map[string]*adminpb.ServiceAccount
	secrets         map[string]*secretmanagerpb.Secret
	pools           map[string]*iamv1.WorkloadIdentityPool
	providers       map[string]*iamv1.WorkloadIdentityPoolProvider
	projectPolicy   *cloudresourcemanager.Policy
	saPolicies      map[string]*iam.Policy
	secretPolicies  map[string]*iam.Policy
	enabledServices []string

	mutations []string
}

var _ gcp.GcpClient = (*fakeGcpClient)(nil)

func newFakeGcpClient() *fakeGcpClient {
	return &fakeGcpClient{
		projects:        map[string]*cloudresourcemanager.Project{},
		repositories:    map[string]*artifactregistry.Repository{},
		serviceAccounts: map[string]*adminpb.ServiceAccount{},
		secrets:         map[string]*secretmanagerpb.Secret{},
		pools:           map[string]*iamv1.WorkloadIdentityPool{},
		providers:       map[string]*iamv1.WorkloadIdentityPoolProvider{},
		projectPolicy:   &cloudresourcemanager.Policy{},
		saPolicies:      map[string]*iam.Policy{},
		secretPolicies:  map[string]*iam.Policy{},
	}
}

func (f *fakeGcpClient) record(name string) {
	f.mutations = append(f.mutations, name)
}

func (f *fakeGcpClient) BatchEnableServices(ctx context.Context, projectId string, serviceIds []string) error {
	f.record("BatchEnableServices")
	f.enabledServices = append(f.enabledServices, serviceIds...)
	return nil
}

//nolint:lll
func (f *fakeGcpClient) CreateArtifactRepository(ctx context.Context, parent, repoId string, repo *artifactregistry.Repository) (*artifactregistry.Operation, error) {
	name := fmt.Sprintf("%s/repositories/%s", parent, repoId)
	if _, ok := f.repositories[name]; ok {
		return nil, httpAlreadyExists()
	}
	f.record("CreateArtifactRepository")
	repo.Name = name
	f.repositories[name] = repo
	return &artifactregistry.Operation{Done: true}, nil
}

func httpAlreadyExists() error {
	return &googleapi.Error{Code: 409, Message: "the repository already exists"}
}

func (f *fakeGcpClient) CreateProject(ctx context.Context, project *cloudresourcemanager.Project) error {
	if _, ok := f.projects[project.ProjectId]; ok {
		return httpAlreadyExists()
	}
	f.record("CreateProject")
	f.projects[project.ProjectId] = project
	return nil
}

//nolint:lll
func (f *fakeGcpClient) CreateSecret(ctx context.Context, request *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	name := fmt.Sprintf("%s/secrets/%s", request.Parent, request.SecretId)
	if _, ok := f.secrets[name]; ok {
		return nil, grpcAlreadyExists()
	}
	f.record("CreateSecret")
	secret := request.Secret
	secret.Name = name
	f.secrets[name] = secret
	return secret, nil
}

//nolint:lll
func (f *fakeGcpClient) CreateServiceAccount(ctx context.Context, request *adminpb.CreateServiceAccountRequest) (*adminpb.ServiceAccount, error) {
	projectId := request.Name[len("projects/"):]
	name := gcp.FmtSaResourceId(request.AccountId, projectId)
	if _, ok := f.serviceAccounts[name]; ok {
		return nil, grpcAlreadyExists()
	}
	f.record("CreateServiceAccount")
	sa := &adminpb.ServiceAccount{
		Name:        name,
		DisplayName: request.ServiceAccount.DisplayName,
		Description: request.ServiceAccount.Description,
	}
	f.serviceAccounts[name] = sa
	return sa, nil
}

//nolint:lll
func (f *fakeGcpClient) CreateServiceAccountKey(ctx context.Context, request *adminpb.CreateServiceAccountKeyRequest) (*adminpb.ServiceAccountKey, error) {
	if _, ok := f.serviceAccounts[request.Name]; !ok {
		return nil, grpcNotFound()
	}
	f.record("CreateServiceAccountKey")
	return &adminpb.ServiceAccountKey{
		Name:           request.Name + "/keys/fake",
		PrivateKeyData: []byte(`{"type":"service_account"}`),
	}, nil
}

//nolint:lll
func (f *fakeGcpClient) CreateWorkloadIdentityPool(ctx context.Context, parent, poolID string, pool *iamv1.WorkloadIdentityPool) (*iamv1.Operation, error) {
	name := fmt.Sprintf("%s/workloadIdentityPools/%s", parent, poolID)
	if _, ok := f.pools[name]; ok {
		return nil, httpAlreadyExists()
	}
	f.record("CreateWorkloadIdentityPool")
	f.pools[name] = pool
	return &iamv1.Operation{Done: true}, nil
}

//nolint:lll
func (f *fakeGcpClient) CreateWorkloadIdentityProvider(ctx context.Context, parent, providerID string, provider *iamv1.WorkloadIdentityPoolProvider) (*iamv1.Operation, error) {
	name := fmt.Sprintf("%s/providers/%s", parent, providerID)
	if _, ok := f.providers[name]; ok {
		return nil, httpAlreadyExists()
	}
	f.record("CreateWorkloadIdentityProvider")
	f.providers[name] = provider
	return &iamv1.Operation{Done: true}, nil
}

func (f *fakeGcpClient) EnableServiceAccount(ctx context.Context, accountId, projectId string) error {
	f.record("EnableServiceAccount")
	name := gcp.FmtSaResourceId(accountId, projectId)
	sa, ok := f.serviceAccounts[name]
	if !ok {
		return grpcNotFound()
	}
	sa.Disabled = false
	return nil
}

func (f *fakeGcpClient) GetArtifactRepository(ctx context.Context, resource string) (*artifactregistry.Repository, error) {
	repo, ok := f.repositories[resource]
	if !ok {
		return nil, httpNotFound()
	}
	return repo, nil
}

func (f *fakeGcpClient) GetProject(ctx context.Context, projectId string) (*cloudresourcemanager.Project, error) {
	project, ok := f.projects[projectId]
	if !ok {
		return nil, httpNotFound()
	}
	return project, nil
}

//nolint:lll
func (f *fakeGcpClient) GetProjectIamPolicy(ctx context.Context, projectName string, request *cloudresourcemanager.GetIamPolicyRequest) (*cloudresourcemanager.Policy, error) {
	return f.projectPolicy, nil
}

func (f *fakeGcpClient) GetSecret(ctx context.Context, resource string) (*secretmanagerpb.Secret, error) {
	secret, ok := f.secrets[resource]
	if !ok {
		return nil, grpcNotFound()
	}
	return secret, nil
}

func (f *fakeGcpClient) GetSecretAccessPolicy(ctx context.Context, resource string) (gcp.Policy, error) {
	iamPolicy, ok := f.secretPolicies[resource]
	if !ok {
		iamPolicy = &iam.Policy{}
		f.secretPolicies[resource] = iamPolicy
	}
	return gcp.NewPolicy(iamPolicy, resource), nil
}

//nolint:lll
func (f *fakeGcpClient) GetServiceAccount(ctx context.Context, request *adminpb.GetServiceAccountRequest) (*adminpb.ServiceAccount, error) {
	sa, ok := f.serviceAccounts[request.Name]
	if !ok {
		return nil, grpcNotFound()
	}
	return sa, nil
}

func (f *fakeGcpClient) GetServiceAccountAccessPolicy(ctx context.Context, saResourceId string) (gcp.Policy, error) {
	iamPolicy, ok := f.saPolicies[saResourceId]
	if !ok {
		iamPolicy = &iam.Policy{}
		f.saPolicies[saResourceId] = iamPolicy
	}
	return gcp.NewPolicy(iamPolicy, saResourceId), nil
}

func (f *fakeGcpClient) GetWorkloadIdentityPool(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPool, error) {
	pool, ok := f.pools[resource]
	if !ok {
		return nil, httpNotFound()
	}
	return pool, nil
}

//nolint:lll
func (f *fakeGcpClient) GetWorkloadIdentityProvider(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPoolProvider, error) {
	provider, ok := f.providers[resource]
	if !ok {
		return nil, httpNotFound()
	}
	return provider, nil
}

func (f *fakeGcpClient) ProjectNumberFromId(ctx context.Context, projectId string) (int64, error) {
	project, ok := f.projects[projectId]
	if !ok {
		return 0, httpNotFound()
	}
	return project.ProjectNumber, nil
}

//nolint:lll
func (f *fakeGcpClient) SetProjectIamPolicy(ctx context.Context, projectName string, request *cloudresourcemanager.SetIamPolicyRequest) (*cloudresourcemanager.Policy, error) {
	f.record("SetProjectIamPolicy")
	f.projectPolicy = request.Policy
	return f.projectPolicy, nil
}

func (f *fakeGcpClient) SetSecretAccessPolicy(ctx context.Context, accessPolicy gcp.Policy) error {
	f.record("SetSecretAccessPolicy")
	f.secretPolicies[accessPolicy.ResourceId()] = accessPolicy.IamPolicy()
	return nil
}

func (f *fakeGcpClient) SetServiceAccountAccessPolicy(ctx context.Context, accessPolicy gcp.Policy) error {
	f.record("SetServiceAccountAccessPolicy")
	f.saPolicies[accessPolicy.ResourceId()] = accessPolicy.IamPolicy()
	return nil
}

//nolint:lll
func (f *fakeGcpClient) UndeleteWorkloadIdentityPool(ctx context.Context, resource string, request *iamv1.UndeleteWorkloadIdentityPoolRequest) (*iamv1.Operation, error) {
	f.record("UndeleteWorkloadIdentityPool")
	pool, ok := f.pools[resource]
	if !ok {
		return nil, httpNotFound()
	}
	pool.State = "ACTIVE"
	return &iamv1.Operation{Done: true}, nil
}

func (f *fakeGcpClient) UpdateWorkloadIdentityProvider(ctx context.Context, provider *iamv1.WorkloadIdentityPoolProvider) error {
	f.record("UpdateWorkloadIdentityProvider")
	f.providers[provider.Name] = provider
	return nil
}
