package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/domain"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

func newClientService(f *fixture) *ClientService {
	return NewClientService(ClientDependencies{
		UserRepo:    f.store.Users(),
		Access:      auth.NewRoleAccessFilter(),
		Invalidator: f.cache,
		Metrics:     f.metrics,
	})
}

func qualifyFor(t *testing.T, f *fixture, owner *auth.Principal, email string) *QualificationResult {
	t.Helper()
	lead := f.seedLead(owner, email, domain.LeadStatusActive)
	result, err := f.svc.Qualify(context.Background(), owner, lead.ID, QualifyInput{})
	require.NoError(t, err)
	return result
}

func TestClientListIsScopedAndSanitized(t *testing.T) {
	f := newFixture(t)
	svc := newClientService(f)
	ctx := context.Background()
	qualifyFor(t, f, f.agent, "c1@x.com")
	qualifyFor(t, f, f.otherAgent, "c2@x.com")

	mine, err := svc.List(ctx, f.agent, ClientListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1@x.com", mine[0].Email)
	assert.Empty(t, mine[0].PasswordHash)
	assert.Empty(t, mine[0].Metadata.TemporaryPassword)

	all, err := svc.List(ctx, f.manager, ClientListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "includes the seeded client account")

	qualified := domain.ClientStatusQualified
	filtered, err := svc.List(ctx, f.manager, ClientListFilter{ClientStatus: &qualified, Search: "c2"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c2@x.com", filtered[0].Email)
}

func TestClientGet(t *testing.T) {
	f := newFixture(t)
	svc := newClientService(f)
	ctx := context.Background()
	result := qualifyFor(t, f, f.agent, "get@x.com")
	clientID := result.Client.User.ID

	client, err := svc.Get(ctx, f.agent, clientID)
	require.NoError(t, err)
	assert.Equal(t, "get@x.com", client.Email)
	assert.Empty(t, client.PasswordHash)

	_, err = svc.Get(ctx, f.otherAgent, clientID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.Get(ctx, f.manager, f.agent.ID())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "employees are not clients")
}

func TestRevealTemporaryPasswordOnlyOnce(t *testing.T) {
	f := newFixture(t)
	svc := newClientService(f)
	ctx := context.Background()
	result := qualifyFor(t, f, f.agent, "otp@x.com")
	clientID := result.Client.User.ID

	_, err := svc.RevealTemporaryPassword(ctx, f.agent, clientID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	password, err := svc.RevealTemporaryPassword(ctx, f.manager, clientID)
	require.NoError(t, err)
	assert.Equal(t, result.Client.OneTimePassword, password)
	f.cache.AssertCalled(t, "InvalidateClient", clientID)

	_, err = svc.RevealTemporaryPassword(ctx, f.manager, clientID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Empty(t, f.store.User(clientID).Metadata.TemporaryPassword)
}
