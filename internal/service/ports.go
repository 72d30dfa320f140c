package service

import (
	"context"
	"errors"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// AccessFilter decides whether a caller may act on a resource and under which scope.
type AccessFilter interface {
	Authorize(caller *auth.Principal, resource auth.Resource, action auth.Action) auth.Decision
}

// RoleResolver maps a department name to the role given to its new clients.
type RoleResolver interface {
	ResolveClientRole(ctx context.Context, department string) (*domain.ClientRole, error)
}

// CredentialIssuer produces one-time passwords for new accounts.
type CredentialIssuer interface {
	IssueOneTimePassword() (auth.OneTimeCredential, error)
}

// CacheInvalidator retires cached views by intent.
type CacheInvalidator interface {
	InvalidateLead(ctx context.Context, leadID string) error
	InvalidateLeadListings(ctx context.Context) error
	InvalidateClient(ctx context.Context, clientID string) error
	InvalidateClientListings(ctx context.Context) error
}

func authorize(filter AccessFilter, caller *auth.Principal, resource auth.Resource, action auth.Action) (domain.Scope, error) {
	if caller == nil || caller.User == nil {
		return domain.Scope{}, apperrors.NewUnauthorized("authentication required")
	}
	decision := filter.Authorize(caller, resource, action)
	if !decision.Allowed {
		return domain.Scope{}, apperrors.NewForbidden("insufficient permissions")
	}
	return decision.Scope, nil
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return apperrors.NewInternalError(err)
}
