package provision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"

	"github.com/bybit-mcp/mcp-deploy/pkg/utils"
)

// ensurePolicyBindingsForProject ensures that given roles and member, the
// appropriate binding is added to the project. Roles are predefined and take
// the format roles/{role_id}. Return value indicates whether a modification
// occurred.
func (p *provisioner) ensurePolicyBindingsForProject(
	ctx context.Context,
	roles []string,
	member string,
) (bool, error) {
	needPolicyUpdate := false

	projectPolicy, err := p.gcpClient.GetProjectIamPolicy(
		ctx,
		p.manifest.ProjectID,
		&cloudresourcemanager.GetIamPolicyRequest{},
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to fetch policy for project")
	}

	for _, definedRole := range roles {
		modified := p.addPolicyBindingForProject(projectPolicy, definedRole, member)
		if modified {
			needPolicyUpdate = true
		}
	}

	if needPolicyUpdate {
		return true, p.setProjectIamPolicy(ctx, projectPolicy)
	}

	// If we made it this far there were no updates needed
	return false, nil
}

// This method modifies cloud resources.
func (p *provisioner) setProjectIamPolicy(
	ctx context.Context,
	projectPolicy *cloudresourcemanager.Policy,
) error {
	_, err := p.gcpClient.SetProjectIamPolicy(
		ctx,
		p.manifest.ProjectID,
		&cloudresourcemanager.SetIamPolicyRequest{
			Policy: projectPolicy,
		})
	if err != nil {
		return fmt.Errorf("error setting project policy: %v", err)
	}
	return nil
}

func (p *provisioner) addPolicyBindingForProject(
	projectPolicy *cloudresourcemanager.Policy,
	roleName string,
	memberName string,
) bool {
	for i, binding := range projectPolicy.Bindings {
		if binding.Role == roleName {
			return p.addMemberToBindingForProject(memberName, projectPolicy.Bindings[i])
		}
	}

	// if we didn't find an existing binding entry, then make one
	p.createMemberRoleBindingForProject(projectPolicy, roleName, memberName)

	return true
}

// adds member to existing binding. returns bool indicating if an entry was made
func (p *provisioner) addMemberToBindingForProject(
	memberName string,
	binding *cloudresourcemanager.Binding,
) bool {
	if utils.Contains(binding.Members, memberName) {
		return false
	}

	binding.Members = append(binding.Members, memberName)
	return true
}

func (p *provisioner) createMemberRoleBindingForProject(
	projectPolicy *cloudresourcemanager.Policy,
	roleName string,
	memberName string,
) {
	projectPolicy.Bindings = append(projectPolicy.Bindings, &cloudresourcemanager.Binding{
		Members: []string{memberName},
		Role:    roleName,
	})
}
