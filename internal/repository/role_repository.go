package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-service/internal/domain"
)

// RoleRepository reads roles. They are seeded by migrations.
type RoleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository builds the repository.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

const roleColumns = `id, name, department_id, is_client_role, privileged, permissions, created_at, updated_at`

func (r *roleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id=$1`
	return scanRole(r.pool.QueryRow(ctx, query, id))
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name=$1`
	return scanRole(r.pool.QueryRow(ctx, query, name))
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		permissions []string
	)
	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DepartmentID,
		&role.IsClientRole,
		&role.Privileged,
		&permissions,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	role.Permissions = make([]domain.Permission, 0, len(permissions))
	for _, perm := range permissions {
		role.Permissions = append(role.Permissions, domain.Permission(perm))
	}
	return &role, nil
}
