package auth

import "github.com/spec-kit/crm-service/internal/domain"

// Resource names a protected collection.
type Resource string

const (
	ResourceLeads   Resource = "leads"
	ResourceClients Resource = "clients"
)

// Action names an operation on a resource.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionQualify Action = "qualify"
	ActionManage  Action = "manage"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Scope   domain.Scope
}

// RoleAccessFilter authorizes callers from their role's permission list. Privileged roles
// see everything; everyone else is confined to records they created.
type RoleAccessFilter struct{}

// NewRoleAccessFilter returns the default filter.
func NewRoleAccessFilter() RoleAccessFilter {
	return RoleAccessFilter{}
}

// Authorize decides whether caller may perform action on resource and under which scope.
func (RoleAccessFilter) Authorize(caller *Principal, resource Resource, action Action) Decision {
	if caller == nil || caller.User == nil || caller.User.IsClient {
		return Decision{}
	}
	if !caller.Role.Allows(domain.Permission(string(resource) + ":" + string(action))) {
		return Decision{}
	}
	if caller.Privileged() {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: true, Scope: domain.OwnedBy(caller.User.ID)}
}
