package service

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/testutil"
)

type cacheMock struct {
	mock.Mock
}

func (m *cacheMock) InvalidateLead(_ context.Context, leadID string) error {
	return m.Called(leadID).Error(0)
}

func (m *cacheMock) InvalidateLeadListings(_ context.Context) error {
	return m.Called().Error(0)
}

func (m *cacheMock) InvalidateClient(_ context.Context, clientID string) error {
	return m.Called(clientID).Error(0)
}

func (m *cacheMock) InvalidateClientListings(_ context.Context) error {
	return m.Called().Error(0)
}

func newCacheMock() *cacheMock {
	m := &cacheMock{}
	m.On("InvalidateLead", mock.Anything).Return(nil).Maybe()
	m.On("InvalidateLeadListings").Return(nil).Maybe()
	m.On("InvalidateClient", mock.Anything).Return(nil).Maybe()
	m.On("InvalidateClientListings").Return(nil).Maybe()
	return m
}

func (m *cacheMock) assertNothingInvalidated(t *testing.T) {
	t.Helper()
	m.AssertNotCalled(t, "InvalidateLead", mock.Anything)
	m.AssertNotCalled(t, "InvalidateLeadListings")
	m.AssertNotCalled(t, "InvalidateClient", mock.Anything)
	m.AssertNotCalled(t, "InvalidateClientListings")
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []events.Event{}
	for _, event := range r.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

type fixture struct {
	store      *testutil.Store
	cache      *cacheMock
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	recorder   *eventRecorder
	sales      *domain.Department
	clientRole *domain.Role
	agent      *auth.Principal
	otherAgent *auth.Principal
	manager    *auth.Principal
	client     *auth.Principal
	svc        *QualificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()

	sales := store.SeedDepartment("Sales")
	store.SeedDepartment("Support")
	clientRole := store.SeedRole(domain.Role{Name: "client_sales", DepartmentID: &sales.ID, IsClientRole: true})
	agentRole := store.SeedRole(domain.Role{
		Name: "sales_agent",
		Permissions: []domain.Permission{
			domain.PermissionLeadsRead,
			domain.PermissionLeadsCreate,
			domain.PermissionLeadsUpdate,
			domain.PermissionLeadsQualify,
			domain.PermissionClientsRead,
		},
	})
	managerRole := store.SeedRole(domain.Role{
		Name:        "sales_manager",
		Privileged:  true,
		Permissions: []domain.Permission{"leads:*", "clients:*"},
	})

	principal := func(name, email string, role *domain.Role, isClient bool) *auth.Principal {
		user := store.SeedUser(domain.User{Name: name, Email: email, RoleID: &role.ID, IsClient: isClient})
		return &auth.Principal{User: user, Role: role}
	}

	recorder := &eventRecorder{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	events.SubscribeAll(dispatcher, recorder.handle)

	f := &fixture{
		store:      store,
		cache:      newCacheMock(),
		metrics:    observability.NewMetrics("crm_test"),
		dispatcher: dispatcher,
		recorder:   recorder,
		sales:      sales,
		clientRole: clientRole,
		agent:      principal("Agent Smith", "agent@crm.test", agentRole, false),
		otherAgent: principal("Agent Jones", "jones@crm.test", agentRole, false),
		manager:    principal("Manager", "manager@crm.test", managerRole, false),
		client:     principal("Existing Client", "existing@client.test", clientRole, true),
	}
	f.svc = NewQualificationService(QualificationDependencies{
		LeadRepo:          store.Leads(),
		UserRepo:          store.Users(),
		HistoryRepo:       store.History(),
		Access:            auth.NewRoleAccessFilter(),
		Roles:             NewDirectoryRoleResolver(store.Departments(), store.Roles()),
		Credentials:       auth.NewOneTimePasswordIssuer(16, bcrypt.MinCost),
		Cache:             f.cache,
		Dispatcher:        dispatcher,
		Metrics:           f.metrics,
		DefaultDepartment: "Sales",
	})
	return f
}

func (f *fixture) seedLead(owner *auth.Principal, email string, status domain.LeadStatus) *domain.Lead {
	return f.store.SeedLead(domain.Lead{
		Name:      "Lead " + email,
		Email:     email,
		Status:    status,
		CreatedBy: owner.ID(),
	})
}

func (f *fixture) scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
