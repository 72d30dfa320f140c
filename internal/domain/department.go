package domain

import (
	"strings"
	"time"
)

// Department represents a high-level organizational unit.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission names a resource:action grant carried by a role.
type Permission string

const (
	PermissionLeadsRead     Permission = "leads:read"
	PermissionLeadsCreate   Permission = "leads:create"
	PermissionLeadsUpdate   Permission = "leads:update"
	PermissionLeadsDelete   Permission = "leads:delete"
	PermissionLeadsQualify  Permission = "leads:qualify"
	PermissionClientsRead   Permission = "clients:read"
	PermissionClientsManage Permission = "clients:manage"
	PermissionAll           Permission = "*"
)

// Role is a named grant set. Privileged roles see every record regardless of owner.
type Role struct {
	ID           string
	Name         string
	DepartmentID *string
	IsClientRole bool
	Privileged   bool
	Permissions  []Permission
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Allows reports whether the role grants perm, honoring "*" and "resource:*".
func (r *Role) Allows(perm Permission) bool {
	if r == nil {
		return false
	}
	resource, _, _ := strings.Cut(string(perm), ":")
	for _, granted := range r.Permissions {
		switch granted {
		case PermissionAll, perm, Permission(resource + ":*"):
			return true
		}
	}
	return false
}

// ClientRoleName derives the client role for a department, e.g. "Sales Ops" -> "client_sales_ops".
func ClientRoleName(department string) string {
	name := strings.ToLower(strings.TrimSpace(department))
	name = strings.Join(strings.Fields(name), "_")
	return "client_" + name
}

// ClientRole is a resolved department plus the role new clients of that department receive.
type ClientRole struct {
	Department *Department
	Role       *Role
}
