package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// DirectoryRoleResolver resolves client roles from the departments and roles tables.
type DirectoryRoleResolver struct {
	departments repository.DepartmentRepository
	roles       repository.RoleRepository
}

// NewDirectoryRoleResolver builds the resolver.
func NewDirectoryRoleResolver(departments repository.DepartmentRepository, roles repository.RoleRepository) *DirectoryRoleResolver {
	return &DirectoryRoleResolver{departments: departments, roles: roles}
}

// ResolveClientRole returns the active department named department and its client role.
// Anything missing is a configuration error.
func (r *DirectoryRoleResolver) ResolveClientRole(ctx context.Context, department string) (*domain.ClientRole, error) {
	name := strings.TrimSpace(department)
	if name == "" {
		return nil, apperrors.NewConfigurationMissing("no department configured for qualified leads", nil)
	}

	dept, err := r.departments.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewConfigurationMissing("department is not configured",
				map[string]any{"department": name})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewConfigurationMissing("department is inactive",
			map[string]any{"department": dept.Name})
	}

	roleName := domain.ClientRoleName(dept.Name)
	role, err := r.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewConfigurationMissing("client role is not configured",
				map[string]any{"department": dept.Name, "role": roleName})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !role.IsClientRole {
		return nil, apperrors.NewConfigurationMissing("role is not a client role",
			map[string]any{"department": dept.Name, "role": roleName})
	}

	return &domain.ClientRole{Department: dept, Role: role}, nil
}
