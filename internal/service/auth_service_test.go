package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/config"
	"github.com/spec-kit/crm-service/internal/domain"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

func newAuthService(f *fixture) *AuthService {
	return newCachedAuthService(f, nil)
}

func newCachedAuthService(f *fixture, c CacheInvalidator) *AuthService {
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}}
	return NewAuthService(cfg, AuthDependencies{
		UserRepo: f.store.Users(),
		RoleRepo: f.store.Roles(),
		Cache:    c,
		Metrics:  f.metrics,
	})
}

func TestCreateStaffAccountAndLogin(t *testing.T) {
	f := newFixture(t)
	svc := newAuthService(f)
	ctx := context.Background()

	user, err := svc.CreateStaffAccount(ctx, StaffAccountInput{Name: "New Agent", Email: "New@CRM.test", Password: "s3cret-pass", RoleName: "sales_agent"})
	require.NoError(t, err)
	assert.Equal(t, "new@crm.test", user.Email)
	assert.Empty(t, user.PasswordHash)

	result, err := svc.Login(ctx, "new@crm.test", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "sales_agent", result.Role.Name)

	claims, err := svc.TokenManager().ParseToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.False(t, claims.IsClient)

	_, err = svc.Login(ctx, "new@crm.test", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = svc.Login(ctx, "nobody@crm.test", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = svc.CreateStaffAccount(ctx, StaffAccountInput{Name: "Dup", Email: "new@crm.test", Password: "another-pass", RoleName: "sales_agent"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	_, err = svc.CreateStaffAccount(ctx, StaffAccountInput{Name: "C", Email: "c@crm.test", Password: "another-pass", RoleName: "client_sales"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestQualifiedClientActivatesOnPasswordChange(t *testing.T) {
	f := newFixture(t)
	svc := newAuthService(f)
	ctx := context.Background()
	qualified := qualifyFor(t, f, f.agent, "activate@x.com")

	login, err := svc.Login(ctx, "activate@x.com", qualified.Client.OneTimePassword)
	require.NoError(t, err)
	assert.True(t, login.User.IsClient)
	assert.Equal(t, domain.AccountStatusPendingVerification, login.User.Status)

	caller := &auth.Principal{User: login.User, Role: login.Role}
	err = svc.ChangePassword(ctx, caller, "wrong", "new-password-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	err = svc.ChangePassword(ctx, caller, qualified.Client.OneTimePassword, "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, svc.ChangePassword(ctx, caller, qualified.Client.OneTimePassword, "new-password-1"))
	stored := f.store.User(login.User.ID)
	assert.Equal(t, domain.AccountStatusActive, stored.Status)
	assert.Empty(t, stored.Metadata.TemporaryPassword)

	_, err = svc.Login(ctx, "activate@x.com", "new-password-1")
	require.NoError(t, err)
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	f := newFixture(t)
	svc := newAuthService(f)
	hash, err := auth.HashPassword("password-1", bcrypt.MinCost)
	require.NoError(t, err)
	f.store.SeedUser(domain.User{Name: "S", Email: "s@crm.test", PasswordHash: hash, Status: domain.AccountStatusSuspended})

	_, err = svc.Login(context.Background(), "s@crm.test", "password-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestPasswordChangeInvalidatesClientViews(t *testing.T) {
	f := newFixture(t)
	svc := newCachedAuthService(f, f.cache)
	ctx := context.Background()
	qualified := qualifyFor(t, f, f.agent, "views@x.com")
	clientID := qualified.Client.User.ID
	f.cache.AssertNotCalled(t, "InvalidateClient", clientID)

	caller := &auth.Principal{User: f.store.User(clientID)}
	require.NoError(t, svc.ChangePassword(ctx, caller, qualified.Client.OneTimePassword, "new-password-1"))

	f.cache.AssertCalled(t, "InvalidateClient", clientID)
	f.cache.AssertNumberOfCalls(t, "InvalidateClientListings", 2)
}

func TestActivatedClientIsNotServedStale(t *testing.T) {
	f := newFixture(t)
	c := newRedisCache(t)
	svc := newCachedAuthService(f, c)
	clients := NewClientService(ClientDependencies{
		UserRepo: f.store.Users(),
		Access:   auth.NewRoleAccessFilter(),
		Cache:    c,
		Metrics:  f.metrics,
	})
	ctx := context.Background()
	qualified := qualifyFor(t, f, f.agent, "stale-client@x.com")
	clientID := qualified.Client.User.ID

	before, err := clients.Get(ctx, f.agent, clientID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusPendingVerification, before.Status)
	listed, err := clients.List(ctx, f.agent, ClientListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	caller := &auth.Principal{User: f.store.User(clientID)}
	require.NoError(t, svc.ChangePassword(ctx, caller, qualified.Client.OneTimePassword, "new-password-1"))

	after, err := clients.Get(ctx, f.agent, clientID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, after.Status)
	listed, err = clients.List(ctx, f.agent, ClientListFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, listed[0].Status)
}
