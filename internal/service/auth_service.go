package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/config"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// AuthService coordinates login and credential changes.
type AuthService struct {
	users      repository.UserRepository
	roles      repository.RoleRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	cache      CacheInvalidator
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	RoleRepo repository.RoleRepository
	Cache    CacheInvalidator
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// LoginResult is a successful login.
type LoginResult struct {
	User      *domain.User
	Role      *domain.Role
	Token     string
	ExpiresAt time.Time
}

// StaffAccountInput describes an employee account created by operators.
type StaffAccountInput struct {
	Name     string
	Email    string
	Password string
	RoleName string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		roles:      deps.RoleRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Login authenticates an account by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.Status.CanAuthenticate() {
		return nil, apperrors.NewUnauthorized("account disabled")
	}

	role, err := s.loadRole(ctx, user)
	if err != nil {
		return nil, err
	}
	roleName := ""
	if role != nil {
		roleName = role.Name
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, roleName, user.IsClient)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.Bool("client", user.IsClient))
	return &LoginResult{User: user.Sanitized(), Role: role, Token: token, ExpiresAt: exp}, nil
}

// Me reloads the caller's account.
func (s *AuthService) Me(ctx context.Context, caller *auth.Principal) (*domain.User, *domain.Role, error) {
	if caller == nil || caller.User == nil {
		return nil, nil, apperrors.NewUnauthorized("authentication required")
	}
	user, err := s.users.GetByID(ctx, caller.ID())
	if err != nil {
		return nil, nil, notFoundOr(err, "account", caller.ID())
	}
	return user.Sanitized(), caller.Role, nil
}

// ChangePassword verifies the current password before storing the new hash. Accounts still
// pending verification become active and lose their temporary password.
func (s *AuthService) ChangePassword(ctx context.Context, caller *auth.Principal, currentPassword, newPassword string) error {
	if caller == nil || caller.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := auth.CheckPasswordPolicy(newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(),
			map[string]any{"field": "new_password", "min_length": auth.MinPasswordLength})
	}

	user, err := s.users.GetByID(ctx, caller.ID())
	if err != nil {
		return notFoundOr(err, "account", caller.ID())
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	user.Metadata.TemporaryPassword = ""
	if user.Status == domain.AccountStatusPendingVerification {
		user.Status = domain.AccountStatusActive
	}
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}
	if user.IsClient {
		invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{clientID: user.ID, clientListings: true})
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID), zap.String("status", string(user.Status)))
	return nil
}

// CreateStaffAccount creates an employee account with the named role.
func (s *AuthService) CreateStaffAccount(ctx context.Context, input StaffAccountInput) (*domain.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	if err := auth.CheckPasswordPolicy(input.Password); err != nil {
		return nil, apperrors.NewValidationError(err.Error(),
			map[string]any{"field": "password", "min_length": auth.MinPasswordLength})
	}

	role, err := s.roles.GetByName(ctx, input.RoleName)
	if err != nil {
		return nil, notFoundOr(err, "role", input.RoleName)
	}
	if role.IsClientRole {
		return nil, apperrors.NewValidationError("client roles are assigned by qualification",
			map[string]any{"role": role.Name})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		RoleID:       &role.ID,
		DepartmentID: role.DepartmentID,
		Status:       domain.AccountStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user.Sanitized(), nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) loadRole(ctx context.Context, user *domain.User) (*domain.Role, error) {
	if user.RoleID == nil {
		return nil, nil
	}
	role, err := s.roles.GetByID(ctx, *user.RoleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewInternalError(err)
	}
	return role, nil
}
