package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/cache"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// ClientService exposes client accounts created by qualification.
type ClientService struct {
	users       repository.UserRepository
	access      AccessFilter
	cache       *cache.Cache
	invalidator CacheInvalidator
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// ClientDependencies bundles collaborators for the client service.
type ClientDependencies struct {
	UserRepo    repository.UserRepository
	Access      AccessFilter
	Cache       *cache.Cache
	Invalidator CacheInvalidator
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// ClientListFilter describes client listing parameters.
type ClientListFilter struct {
	ClientStatus *domain.ClientStatus
	Search       string
	Limit        int
	Offset       int
}

// NewClientService constructs the service.
func NewClientService(deps ClientDependencies) *ClientService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	invalidator := deps.Invalidator
	if invalidator == nil {
		invalidator = deps.Cache
	}
	return &ClientService{
		users:       deps.UserRepo,
		access:      deps.Access,
		cache:       deps.Cache,
		invalidator: invalidator,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// List returns client accounts visible to caller, without credentials.
func (s *ClientService) List(ctx context.Context, caller *auth.Principal, filter ClientListFilter) ([]domain.User, error) {
	scope, err := authorize(s.access, caller, auth.ResourceClients, auth.ActionRead)
	if err != nil {
		return nil, err
	}

	repoFilter := repository.ClientFilter{
		CreatedBy:    scope.OwnerID,
		ClientStatus: filter.ClientStatus,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		repoFilter.Search = &search
	}

	key, err := s.cache.ListKey(ctx, cache.NamespaceClients, repoFilter)
	if err != nil {
		s.logger.Warn("cache key lookup failed", zap.String("namespace", string(cache.NamespaceClients)), zap.Error(err))
		key = ""
	}
	clients, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]domain.User, error) {
		users, err := s.users.ListClients(ctx, repoFilter)
		if err != nil {
			return nil, err
		}
		for i := range users {
			users[i] = *users[i].Sanitized()
		}
		return users, nil
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return clients, nil
}

// Get returns one client account visible to caller.
func (s *ClientService) Get(ctx context.Context, caller *auth.Principal, clientID string) (*domain.User, error) {
	scope, err := authorize(s.access, caller, auth.ResourceClients, auth.ActionRead)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.EntityKey(ctx, cache.NamespaceClients, clientID)
	if err != nil {
		s.logger.Warn("cache key lookup failed", zap.String("client_id", clientID), zap.Error(err))
		key = ""
	}
	client, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*domain.User, error) {
		user, err := s.users.GetByID(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if !user.IsClient {
			return nil, repository.ErrNotFound
		}
		return user.Sanitized(), nil
	})
	if err != nil {
		return nil, notFoundOr(err, "client", clientID)
	}
	if !scope.Permits(client.Metadata.CreatedBy) {
		return nil, apperrors.NewNotFound("client", map[string]any{"id": clientID})
	}
	return client, nil
}

// RevealTemporaryPassword returns the one-time password of a client and removes it, so it
// can be disclosed at most once.
func (s *ClientService) RevealTemporaryPassword(ctx context.Context, caller *auth.Principal, clientID string) (string, error) {
	if _, err := authorize(s.access, caller, auth.ResourceClients, auth.ActionManage); err != nil {
		return "", err
	}
	if !caller.Privileged() {
		return "", apperrors.NewForbidden("only privileged roles may reveal temporary passwords")
	}

	password, err := s.users.ConsumeTemporaryPassword(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.NewNotFound("temporary password", map[string]any{"client_id": clientID})
		}
		return "", apperrors.NewInternalError(err)
	}

	invalidate(ctx, s.invalidator, s.logger, s.metrics, invalidationPlan{clientID: clientID})
	s.logger.Info("temporary password revealed",
		zap.String("client_id", clientID),
		zap.String("actor_id", caller.ID()))
	return password, nil
}
