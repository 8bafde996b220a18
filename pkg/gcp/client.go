package gcp

import (
	"context"
	"fmt"
	"time"

	iamadmin "cloud.google.com/go/iam/admin/apiv1"
	"cloud.google.com/go/iam/admin/apiv1/adminpb"
	"cloud.google.com/go/iam/apiv1/iampb"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	artifactregistry "google.golang.org/api/artifactregistry/v1"
	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"
	iamv1 "google.golang.org/api/iam/v1"
	serviceusage "google.golang.org/api/serviceusage/v1"
)

const (
	operationPollInterval = 2 * time.Second
	operationPollTimeout  = 5 * time.Minute
)

type GcpClient interface {
	BatchEnableServices(ctx context.Context, projectId string, serviceIds []string) error
	CreateArtifactRepository(ctx context.Context, parent, repoId string, repo *artifactregistry.Repository) (*artifactregistry.Operation, error) //nolint:lll
	CreateProject(ctx context.Context, project *cloudresourcemanager.Project) error
	CreateSecret(ctx context.Context, request *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
	CreateServiceAccount(ctx context.Context, request *adminpb.CreateServiceAccountRequest) (*adminpb.ServiceAccount, error)                               //nolint:lll
	CreateServiceAccountKey(ctx context.Context, request *adminpb.CreateServiceAccountKeyRequest) (*adminpb.ServiceAccountKey, error)                     //nolint:lll
	CreateWorkloadIdentityPool(ctx context.Context, parent, poolID string, pool *iamv1.WorkloadIdentityPool) (*iamv1.Operation, error)                     //nolint:lll
	CreateWorkloadIdentityProvider(ctx context.Context, parent, providerID string, provider *iamv1.WorkloadIdentityPoolProvider) (*iamv1.Operation, error) //nolint:lll
	EnableServiceAccount(ctx context.Context, accountId, projectId string) error
	GetArtifactRepository(ctx context.Context, resource string) (*artifactregistry.Repository, error)
	GetProject(ctx context.Context, projectId string) (*cloudresourcemanager.Project, error)
	GetProjectIamPolicy(ctx context.Context, projectName string, request *cloudresourcemanager.GetIamPolicyRequest) (*cloudresourcemanager.Policy, error) //nolint:lll
	GetSecret(ctx context.Context, resource string) (*secretmanagerpb.Secret, error)
	GetSecretAccessPolicy(ctx context.Context, resource string) (Policy, error)
	GetServiceAccount(ctx context.Context, request *adminpb.GetServiceAccountRequest) (*adminpb.ServiceAccount, error)
	GetServiceAccountAccessPolicy(ctx context.Context, saResourceId string) (Policy, error)
	GetWorkloadIdentityPool(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPool, error)             //nolint:lll
	GetWorkloadIdentityProvider(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPoolProvider, error) //nolint:lll
	ProjectNumberFromId(ctx context.Context, projectId string) (int64, error)
	SetProjectIamPolicy(ctx context.Context, projectName string, request *cloudresourcemanager.SetIamPolicyRequest) (*cloudresourcemanager.Policy, error) //nolint:lll
	SetSecretAccessPolicy(ctx context.Context, policy Policy) error
	SetServiceAccountAccessPolicy(ctx context.Context, policy Policy) error
	UndeleteWorkloadIdentityPool(ctx context.Context, resource string, request *iamv1.UndeleteWorkloadIdentityPoolRequest) (*iamv1.Operation, error) //nolint:lll
	UpdateWorkloadIdentityProvider(ctx context.Context, provider *iamv1.WorkloadIdentityPoolProvider) error
}

type gcpClient struct {
	iamClient            *iamadmin.IamClient
	oldIamClient         *iamv1.Service
	cloudResourceManager *cloudresourcemanager.Service
	serviceUsage         *serviceusage.Service
	artifactRegistry     *artifactregistry.Service
	secretManager        *secretmanager.Client
}

func NewGcpClient(ctx context.Context) (GcpClient, error) {
	iamClient, err := iamadmin.NewIamClient(ctx)
	if err != nil {
		return nil, err
	}
	cloudResourceManager, err := cloudresourcemanager.NewService(ctx)
	if err != nil {
		return nil, err
	}
	serviceUsage, err := serviceusage.NewService(ctx)
	if err != nil {
		return nil, err
	}
	artifactRegistry, err := artifactregistry.NewService(ctx)
	if err != nil {
		return nil, err
	}
	secretManager, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	// The new iam client doesn't support workload identity federation operations.
	oldIamClient, err := iamv1.NewService(ctx)
	if err != nil {
		return nil, err
	}

	return &gcpClient{
		iamClient:            iamClient,
		oldIamClient:         oldIamClient,
		cloudResourceManager: cloudResourceManager,
		serviceUsage:         serviceUsage,
		artifactRegistry:     artifactRegistry,
		secretManager:        secretManager,
	}, nil
}

func (c *gcpClient) BatchEnableServices(ctx context.Context, projectId string, serviceIds []string) error {
	op, err := c.serviceUsage.Services.BatchEnable(
		fmt.Sprintf("projects/%s", projectId),
		&serviceusage.BatchEnableServicesRequest{ServiceIds: serviceIds},
	).Context(ctx).Do()
	if err != nil {
		return err
	}
	return c.waitForServiceUsageOperation(ctx, op)
}

//nolint:lll
func (c *gcpClient) CreateArtifactRepository(ctx context.Context, parent, repoId string, repo *artifactregistry.Repository) (*artifactregistry.Operation, error) {
	return c.artifactRegistry.Projects.Locations.Repositories.Create(parent, repo).RepositoryId(repoId).Context(ctx).Do()
}

func (c *gcpClient) CreateProject(ctx context.Context, project *cloudresourcemanager.Project) error {
	op, err := c.cloudResourceManager.Projects.Create(project).Context(ctx).Do()
	if err != nil {
		return err
	}
	return c.waitForResourceManagerOperation(ctx, op)
}

//nolint:lll
func (c *gcpClient) CreateSecret(ctx context.Context, request *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return c.secretManager.CreateSecret(ctx, request)
}

func (c *gcpClient) CreateServiceAccount(
	ctx context.Context,
	request *adminpb.CreateServiceAccountRequest,
) (*adminpb.ServiceAccount, error) {
	svcAcct, err := c.iamClient.CreateServiceAccount(ctx, request)
	return svcAcct, err
}

func (c *gcpClient) CreateServiceAccountKey(
	ctx context.Context,
	request *adminpb.CreateServiceAccountKeyRequest,
) (*adminpb.ServiceAccountKey, error) {
	return c.iamClient.CreateServiceAccountKey(ctx, request)
}

//nolint:lll
func (c *gcpClient) CreateWorkloadIdentityPool(ctx context.Context, parent, poolID string, pool *iamv1.WorkloadIdentityPool) (*iamv1.Operation, error) {
	return c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Create(parent, pool).WorkloadIdentityPoolId(poolID).Context(ctx).Do()
}

//nolint:lll
func (c *gcpClient) CreateWorkloadIdentityProvider(ctx context.Context, parent, providerID string, provider *iamv1.WorkloadIdentityPoolProvider) (*iamv1.Operation, error) {
	return c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Providers.Create(parent, provider).WorkloadIdentityPoolProviderId(providerID).Context(ctx).Do()
}

func (c *gcpClient) EnableServiceAccount(ctx context.Context, accountId, projectId string) error {
	return c.iamClient.EnableServiceAccount(ctx, &adminpb.EnableServiceAccountRequest{
		Name: FmtSaResourceId(accountId, projectId),
	})
}

func (c *gcpClient) GetArtifactRepository(ctx context.Context, resource string) (*artifactregistry.Repository, error) {
	return c.artifactRegistry.Projects.Locations.Repositories.Get(resource).Context(ctx).Do()
}

func (c *gcpClient) GetProject(ctx context.Context, projectId string) (*cloudresourcemanager.Project, error) {
	return c.cloudResourceManager.Projects.Get(projectId).Context(ctx).Do()
}

//nolint:lll
func (c *gcpClient) GetProjectIamPolicy(
	ctx context.Context,
	projectName string,
	request *cloudresourcemanager.GetIamPolicyRequest,
) (*cloudresourcemanager.Policy, error) {
	return c.cloudResourceManager.Projects.GetIamPolicy(projectName, request).Context(ctx).Do()
}

func (c *gcpClient) GetSecret(ctx context.Context, resource string) (*secretmanagerpb.Secret, error) {
	return c.secretManager.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: resource,
	})
}

func (c *gcpClient) GetSecretAccessPolicy(ctx context.Context, resource string) (Policy, error) {
	iamPolicy, err := c.secretManager.IAM(resource).Policy(ctx)
	if err != nil {
		return nil, err
	}
	return &policy{policy: iamPolicy, resourceId: resource}, nil
}

func (c *gcpClient) GetServiceAccount(
	ctx context.Context,
	request *adminpb.GetServiceAccountRequest,
) (*adminpb.ServiceAccount, error) {
	return c.iamClient.GetServiceAccount(ctx, request)
}

func (c *gcpClient) GetServiceAccountAccessPolicy(ctx context.Context, saResourceId string) (Policy, error) {
	iamPolicy, err := c.iamClient.GetIamPolicy(ctx, &iampb.GetIamPolicyRequest{
		Resource: saResourceId,
	})
	if err != nil {
		return nil, c.fmtApiError(err)
	}
	return &policy{policy: iamPolicy, resourceId: saResourceId}, nil
}

//nolint:lll
func (c *gcpClient) GetWorkloadIdentityPool(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPool, error) {
	return c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Get(resource).Context(ctx).Do()
}

//nolint:lll
func (c *gcpClient) GetWorkloadIdentityProvider(ctx context.Context, resource string) (*iamv1.WorkloadIdentityPoolProvider, error) {
	return c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Providers.Get(resource).Context(ctx).Do()
}

func (c *gcpClient) ProjectNumberFromId(ctx context.Context, projectId string) (int64, error) {
	project, err := c.cloudResourceManager.Projects.Get(projectId).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return project.ProjectNumber, nil
}

//nolint:lll
func (c *gcpClient) SetProjectIamPolicy(ctx context.Context, projectName string, request *cloudresourcemanager.SetIamPolicyRequest) (*cloudresourcemanager.Policy, error) {
	return c.cloudResourceManager.Projects.SetIamPolicy(projectName, request).Context(ctx).Do()
}

func (c *gcpClient) SetSecretAccessPolicy(ctx context.Context, accessPolicy Policy) error {
	return c.secretManager.IAM(accessPolicy.ResourceId()).SetPolicy(ctx, accessPolicy.IamPolicy())
}

func (c *gcpClient) SetServiceAccountAccessPolicy(ctx context.Context, accessPolicy Policy) error {
	_, err := c.iamClient.SetIamPolicy(ctx, &iamadmin.SetIamPolicyRequest{
		Resource: accessPolicy.ResourceId(),
		Policy:   accessPolicy.IamPolicy(),
	})
	if err != nil {
		return c.fmtApiError(err)
	}
	return nil
}

//nolint:lll
func (c *gcpClient) UndeleteWorkloadIdentityPool(ctx context.Context, resource string, request *iamv1.UndeleteWorkloadIdentityPoolRequest) (*iamv1.Operation, error) {
	return c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Undelete(resource, request).Context(ctx).Do()
}

func (c *gcpClient) UpdateWorkloadIdentityProvider(
	ctx context.Context,
	provider *iamv1.WorkloadIdentityPoolProvider,
) error {
	_, err := c.oldIamClient.Projects.Locations.WorkloadIdentityPools.Providers.
		Patch(provider.Name, provider).
		UpdateMask("attributeCondition,attributeMapping,description,disabled,displayName,oidc").
		Context(ctx).Do()
	return err
}

func (c *gcpClient) waitForResourceManagerOperation(ctx context.Context, op *cloudresourcemanager.Operation) error {
	deadline := time.Now().Add(operationPollTimeout)
	for !op.Done {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for operation '%s'", op.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollInterval):
		}
		var err error
		op, err = c.cloudResourceManager.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return err
		}
	}
	if op.Error != nil {
		return fmt.Errorf("operation '%s' failed: %s", op.Name, op.Error.Message)
	}
	return nil
}

func (c *gcpClient) waitForServiceUsageOperation(ctx context.Context, op *serviceusage.Operation) error {
	deadline := time.Now().Add(operationPollTimeout)
	for !op.Done {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for operation '%s'", op.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollInterval):
		}
		var err error
		op, err = c.serviceUsage.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return err
		}
	}
	if op.Error != nil {
		return fmt.Errorf("operation '%s' failed: %s", op.Name, op.Error.Message)
	}
	return nil
}
