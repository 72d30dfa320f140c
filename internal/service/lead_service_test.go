package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/cache"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

func newLeadService(t *testing.T, f *fixture, c *cache.Cache) *LeadService {
	t.Helper()
	return NewLeadService(LeadDependencies{
		LeadRepo:    f.store.Leads(),
		UserRepo:    f.store.Users(),
		HistoryRepo: f.store.History(),
		Access:      auth.NewRoleAccessFilter(),
		Cache:       c,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		PhoneRegion: "US",
	})
}

func newRedisCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, "svc", time.Minute, nil)
}

func TestLeadCreateNormalizesInput(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, nil)

	details, err := svc.Create(context.Background(), f.agent, LeadInput{
		Name:    "  Ada Lovelace ",
		Email:   " Ada@Example.com ",
		Phone:   "(650) 253-0000",
		Company: "Analytical Engines",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", details.Lead.Name)
	assert.Equal(t, "ada@example.com", details.Lead.Email)
	assert.Equal(t, "+16502530000", details.Lead.Phone)
	assert.Equal(t, domain.LeadStatusActive, details.Lead.Status)
	assert.Equal(t, f.agent.ID(), details.Lead.CreatedBy)
	require.NotNil(t, details.Owner)
	assert.Len(t, f.recorder.ofType(events.EventLeadCreated), 1)
}

func TestLeadCreateValidation(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, f.agent, LeadInput{Name: "No Email"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Create(ctx, f.agent, LeadInput{Name: "Q", Email: "q@x.com", Status: "qualified"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	created, err := svc.Create(ctx, f.agent, LeadInput{Name: "I", Email: "i@x.com", Status: "Inactive"})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusInactive, created.Lead.Status)

	_, err = svc.Create(ctx, f.agent, LeadInput{Name: "Dup", Email: "I@X.COM"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = svc.Create(ctx, f.client, LeadInput{Name: "C", Email: "c@x.com"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestLeadListIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, nil)
	ctx := context.Background()
	f.seedLead(f.agent, "mine@x.com", domain.LeadStatusActive)
	f.seedLead(f.agent, "mine2@x.com", domain.LeadStatusInactive)
	f.seedLead(f.otherAgent, "theirs@x.com", domain.LeadStatusActive)

	mine, err := svc.List(ctx, f.agent, LeadListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	active, err := svc.List(ctx, f.agent, LeadListFilter{Statuses: []domain.LeadStatus{domain.LeadStatusActive}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "mine@x.com", active[0].Email)

	all, err := svc.List(ctx, f.manager, LeadListFilter{Search: "x.com"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLeadGetIsReadThroughAndInvalidatedByWrites(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, newRedisCache(t))
	ctx := context.Background()
	lead := f.seedLead(f.agent, "cached@x.com", domain.LeadStatusActive)

	first, err := svc.Get(ctx, f.agent, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lead cached@x.com", first.Lead.Name)
	reads := f.store.Calls("leads.GetByID")

	_, err = svc.Get(ctx, f.agent, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, reads, f.store.Calls("leads.GetByID"), "second read is served from cache")

	_, err = svc.Update(ctx, f.agent, lead.ID, LeadInput{Name: "Renamed", Email: "cached@x.com"})
	require.NoError(t, err)

	after, err := svc.Get(ctx, f.agent, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", after.Lead.Name)
}

func TestLeadGetChecksScopeOnCachedEntries(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, newRedisCache(t))
	ctx := context.Background()
	lead := f.seedLead(f.agent, "private@x.com", domain.LeadStatusActive)

	_, err := svc.Get(ctx, f.manager, lead.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, f.otherAgent, lead.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestQualificationInvalidatesCachedLeadViews(t *testing.T) {
	f := newFixture(t)
	c := newRedisCache(t)
	leads := newLeadService(t, f, c)
	f.svc.cache = c
	ctx := context.Background()
	lead := f.seedLead(f.agent, "stale@x.com", domain.LeadStatusActive)

	before, err := leads.Get(ctx, f.agent, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusActive, before.Lead.Status)
	listed, err := leads.List(ctx, f.agent, LeadListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = f.svc.Qualify(ctx, f.agent, lead.ID, QualifyInput{})
	require.NoError(t, err)

	after, err := leads.Get(ctx, f.agent, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusQualified, after.Lead.Status)
	require.NotNil(t, after.Client)

	listed, err = leads.List(ctx, f.agent, LeadListFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusQualified, listed[0].Status)
}

func TestLeadUpdateNeverChangesStatus(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, nil)
	lead := f.seedLead(f.agent, "u@x.com", domain.LeadStatusActive)

	_, err := svc.Update(context.Background(), f.agent, lead.ID, LeadInput{Name: "U", Email: "u@x.com", Status: "qualified"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Equal(t, domain.LeadStatusActive, f.store.Lead(lead.ID).Status)
}

func TestLeadDeleteAndHistory(t *testing.T) {
	f := newFixture(t)
	svc := newLeadService(t, f, nil)
	ctx := context.Background()
	lead := f.seedLead(f.agent, "h@x.com", domain.LeadStatusActive)

	_, err := f.svc.ChangeStatus(ctx, f.agent, lead.ID, StatusChangeInput{Status: "inactive"})
	require.NoError(t, err)
	history, err := svc.History(ctx, f.agent, lead.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].Reason)

	err = svc.Delete(ctx, f.agent, lead.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "agents lack leads:delete")

	require.NoError(t, svc.Delete(ctx, f.manager, lead.ID))
	_, err = svc.Get(ctx, f.manager, lead.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = svc.History(ctx, f.manager, lead.ID, 10, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
