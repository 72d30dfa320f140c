package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-service/internal/domain"
)

func TestReconcileLinksOrphansOnlyWhenApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewReconciliationService(ReconciliationDependencies{
		LeadRepo:    f.store.Leads(),
		UserRepo:    f.store.Users(),
		HistoryRepo: f.store.History(),
		Cache:       f.cache,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
	})

	f.store.FailMarkQualified = errors.New("connection reset")
	linkable := f.seedLead(f.agent, "orphan1@x.com", domain.LeadStatusActive)
	_, err := f.svc.Qualify(ctx, f.agent, linkable.ID, QualifyInput{})
	require.Error(t, err)
	closed := f.seedLead(f.agent, "orphan2@x.com", domain.LeadStatusActive)
	_, err = f.svc.Qualify(ctx, f.agent, closed.ID, QualifyInput{})
	require.Error(t, err)
	f.store.FailMarkQualified = nil

	_, err = f.svc.Unqualify(ctx, f.agent, closed.ID, "lost")
	require.NoError(t, err)

	dry, err := svc.Reconcile(ctx, false, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Count(OrphanLinkable))
	assert.Equal(t, 1, dry.Count(OrphanUnlinkable))
	assert.Nil(t, f.store.Lead(linkable.ID).ClientID, "a dry run changes nothing")

	applied, err := svc.Reconcile(ctx, true, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Count(OrphanLinked))
	assert.Equal(t, 1, applied.Count(OrphanUnlinkable))

	lead := f.store.Lead(linkable.ID)
	assert.Equal(t, domain.LeadStatusQualified, lead.Status)
	clients := f.store.ClientsForLead(linkable.ID)
	require.Len(t, clients, 1)
	assert.Equal(t, clients[0].ID, *lead.ClientID)
	f.cache.AssertCalled(t, "InvalidateLead", linkable.ID)

	assert.Equal(t, domain.LeadStatusUnqualified, f.store.Lead(closed.ID).Status)
	assert.Nil(t, f.store.Lead(closed.ID).ClientID)

	again, err := svc.Reconcile(ctx, true, 50)
	require.NoError(t, err)
	assert.Zero(t, again.Count(OrphanLinked))
}
