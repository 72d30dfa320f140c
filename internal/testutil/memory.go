// Package testutil provides in-memory repositories for service and handler tests. They honor
// the same conditional-update and unique-index semantics as the Postgres implementations.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/repository"
)

// Store holds every table behind a single mutex.
type Store struct {
	mu          sync.Mutex
	seq         int
	leads       map[string]*domain.Lead
	users       map[string]*domain.User
	departments map[string]*domain.Department
	roles       map[string]*domain.Role
	history     []domain.LeadStatusChange
	calls       map[string]int

	// Hooks run outside the lock before the named write, letting tests interleave writers
	// or force failures.
	BeforeMarkQualified   func(leadID string)
	FailMarkQualified     error
	FailClientAnnotation  error
	FailHistory           error
	FailUserCreate        error
	BeforeMarkUnqualified func(leadID string)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		leads:       map[string]*domain.Lead{},
		users:       map[string]*domain.User{},
		departments: map[string]*domain.Department{},
		roles:       map[string]*domain.Role{},
		calls:       map[string]int{},
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *Store) count(name string) {
	s.calls[name]++
}

// Calls reports how many times a repository method ran, e.g. "users.GetByID".
func (s *Store) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Leads returns the lead repository view.
func (s *Store) Leads() *LeadStore { return &LeadStore{s} }

// Users returns the user repository view.
func (s *Store) Users() *UserStore { return &UserStore{s} }

// Departments returns the department repository view.
func (s *Store) Departments() *DepartmentStore { return &DepartmentStore{s} }

// Roles returns the role repository view.
func (s *Store) Roles() *RoleStore { return &RoleStore{s} }

// History returns the status history repository view.
func (s *Store) History() *HistoryStore { return &HistoryStore{s} }

// SeedDepartment inserts an active department.
func (s *Store) SeedDepartment(name string) *domain.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept := &domain.Department{ID: s.nextID("dept"), Name: name, IsActive: true, CreatedAt: time.Now().UTC()}
	s.departments[dept.ID] = dept
	clone := *dept
	return &clone
}

// SeedRole inserts role, assigning an id when empty.
func (s *Store) SeedRole(role domain.Role) *domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = s.nextID("role")
	}
	s.roles[role.ID] = &role
	clone := role
	return &clone
}

// SeedUser inserts user without uniqueness checks.
func (s *Store) SeedUser(user domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = s.nextID("user")
	}
	if user.Status == "" {
		user.Status = domain.AccountStatusActive
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = &user
	clone := user
	return &clone
}

// SeedLead inserts lead without uniqueness checks.
func (s *Store) SeedLead(lead domain.Lead) *domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == "" {
		lead.ID = s.nextID("lead")
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusActive
	}
	lead.CreatedAt = time.Now().UTC()
	lead.UpdatedAt = lead.CreatedAt
	s.leads[lead.ID] = &lead
	clone := lead
	return &clone
}

// Lead returns a copy of the stored lead regardless of soft deletion.
func (s *Store) Lead(id string) *domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil
	}
	clone := *lead
	return &clone
}

// User returns a copy of the stored user.
func (s *Store) User(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	clone := *user
	return &clone
}

// ClientsForLead returns every client account whose lead_id is leadID.
func (s *Store) ClientsForLead(leadID string) []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []domain.User{}
	for _, user := range s.users {
		if user.IsClient && user.LeadID != nil && *user.LeadID == leadID {
			result = append(result, *user)
		}
	}
	return result
}

// DeleteUser removes a user row, simulating a dangling reference.
func (s *Store) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// HistoryFor returns the audit rows of a lead.
func (s *Store) HistoryFor(leadID string) []domain.LeadStatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []domain.LeadStatusChange{}
	for _, entry := range s.history {
		if entry.LeadID == leadID {
			result = append(result, entry)
		}
	}
	return result
}

// LeadStore implements repository.LeadRepository.
type LeadStore struct{ s *Store }

var _ repository.LeadRepository = (*LeadStore)(nil)

func (r *LeadStore) visible(id string, scope domain.Scope) (*domain.Lead, bool) {
	lead, ok := r.s.leads[id]
	if !ok || lead.DeletedAt != nil || !scope.Permits(lead.CreatedBy) {
		return nil, false
	}
	return lead, true
}

func (r *LeadStore) emailTaken(email, exceptID string) bool {
	for _, lead := range r.s.leads {
		if lead.ID != exceptID && strings.EqualFold(lead.Email, email) {
			return true
		}
	}
	return false
}

func (r *LeadStore) Create(_ context.Context, lead *domain.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.Create")
	if r.emailTaken(lead.Email, "") {
		return &repository.DuplicateError{Constraint: "leads_email_lower_idx"}
	}
	lead.ID = r.s.nextID("lead")
	lead.CreatedAt = time.Now().UTC()
	lead.UpdatedAt = lead.CreatedAt
	stored := *lead
	r.s.leads[lead.ID] = &stored
	return nil
}

func (r *LeadStore) GetByID(_ context.Context, id string, scope domain.Scope) (*domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.GetByID")
	lead, ok := r.visible(id, scope)
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *lead
	return &clone, nil
}

func (r *LeadStore) List(_ context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.List")

	statuses := map[domain.LeadStatus]bool{}
	for _, status := range filter.Statuses {
		statuses[status] = true
	}
	search := ""
	if filter.Search != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.Search))
	}

	result := []domain.Lead{}
	for _, lead := range r.s.leads {
		if lead.DeletedAt != nil {
			continue
		}
		if filter.OwnerID != nil && lead.CreatedBy != *filter.OwnerID {
			continue
		}
		if len(statuses) > 0 && !statuses[lead.Status] {
			continue
		}
		if search != "" && !containsAny(search, lead.Name, lead.Email, lead.Company) {
			continue
		}
		result = append(result, *lead)
	}
	sort.Slice(result, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case repository.LeadSortName:
			less = result[i].Name < result[j].Name
		case repository.LeadSortUpdatedAt:
			less = result[i].UpdatedAt.Before(result[j].UpdatedAt)
		default:
			less = result[i].ID < result[j].ID
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (r *LeadStore) UpdateDetails(_ context.Context, lead *domain.Lead, scope domain.Scope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.UpdateDetails")
	stored, ok := r.visible(lead.ID, scope)
	if !ok {
		return repository.ErrNotFound
	}
	if r.emailTaken(lead.Email, lead.ID) {
		return &repository.DuplicateError{Constraint: "leads_email_lower_idx"}
	}
	stored.Name = lead.Name
	stored.Email = lead.Email
	stored.Phone = lead.Phone
	stored.Company = lead.Company
	stored.Source = lead.Source
	stored.Notes = lead.Notes
	stored.UpdatedAt = time.Now().UTC()
	lead.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *LeadStore) SoftDelete(_ context.Context, id string, scope domain.Scope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.SoftDelete")
	stored, ok := r.visible(id, scope)
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	stored.DeletedAt = &now
	stored.UpdatedAt = now
	return nil
}

// guarded applies mutate when the lead is live and still in from.
func (r *LeadStore) guarded(id string, from domain.LeadStatus, requireNoClient bool, mutate func(*domain.Lead)) (*domain.Lead, error) {
	stored, ok := r.s.leads[id]
	if !ok || stored.DeletedAt != nil || stored.Status != from {
		return nil, repository.ErrPreconditionFailed
	}
	if requireNoClient && stored.HasClient() {
		return nil, repository.ErrPreconditionFailed
	}
	mutate(stored)
	stored.UpdatedAt = time.Now().UTC()
	clone := *stored
	return &clone, nil
}

func (r *LeadStore) SetStatus(_ context.Context, id string, from, to domain.LeadStatus) (*domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.SetStatus")
	return r.guarded(id, from, false, func(l *domain.Lead) { l.Status = to })
}

func (r *LeadStore) MarkQualified(_ context.Context, id string, from domain.LeadStatus, clientID, qualifiedBy string, at time.Time) (*domain.Lead, error) {
	if hook := r.s.BeforeMarkQualified; hook != nil {
		hook(id)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.MarkQualified")
	if r.s.FailMarkQualified != nil {
		return nil, r.s.FailMarkQualified
	}
	for _, lead := range r.s.leads {
		if lead.ClientID != nil && *lead.ClientID == clientID {
			return nil, &repository.DuplicateError{Constraint: "leads_client_id_key"}
		}
	}
	return r.guarded(id, from, true, func(l *domain.Lead) {
		l.Status = domain.LeadStatusQualified
		l.ClientID = &clientID
		l.QualifiedBy = &qualifiedBy
		l.QualifiedAt = &at
	})
}

func (r *LeadStore) MarkUnqualified(_ context.Context, id string, from domain.LeadStatus, reason string, at time.Time) (*domain.Lead, error) {
	if hook := r.s.BeforeMarkUnqualified; hook != nil {
		hook(id)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("leads.MarkUnqualified")
	return r.guarded(id, from, false, func(l *domain.Lead) {
		l.Status = domain.LeadStatusUnqualified
		l.UnqualifiedReason = &reason
		l.UnqualifiedAt = &at
	})
}

// UserStore implements repository.UserRepository.
type UserStore struct{ s *Store }

var _ repository.UserRepository = (*UserStore)(nil)

func (r *UserStore) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.Create")
	if r.s.FailUserCreate != nil {
		return r.s.FailUserCreate
	}
	for _, existing := range r.s.users {
		if strings.EqualFold(strings.TrimSpace(existing.Email), strings.TrimSpace(user.Email)) {
			return &repository.DuplicateError{Constraint: "users_email_lower_idx"}
		}
		if user.LeadID != nil && existing.LeadID != nil && *existing.LeadID == *user.LeadID {
			return &repository.DuplicateError{Constraint: "users_lead_id_key"}
		}
	}
	user.ID = r.s.nextID("user")
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

func (r *UserStore) Update(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.Update")
	stored, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = user.Name
	stored.PasswordHash = user.PasswordHash
	stored.Status = user.Status
	stored.Metadata = user.Metadata
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.GetByID")
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.GetByEmail")
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserStore) ListClients(_ context.Context, filter repository.ClientFilter) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.ListClients")
	search := ""
	if filter.Search != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.Search))
	}
	result := []domain.User{}
	for _, user := range r.s.users {
		if !user.IsClient {
			continue
		}
		if filter.CreatedBy != nil && user.Metadata.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.ClientStatus != nil && (user.ClientStatus == nil || *user.ClientStatus != *filter.ClientStatus) {
			continue
		}
		if search != "" && !containsAny(search, user.Name, user.Email) {
			continue
		}
		result = append(result, *user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return page(result, filter.Limit, filter.Offset), nil
}

func (r *UserStore) MarkClientUnqualified(_ context.Context, id, reason string, at time.Time) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.MarkClientUnqualified")
	if r.s.FailClientAnnotation != nil {
		return nil, r.s.FailClientAnnotation
	}
	user, ok := r.s.users[id]
	if !ok || !user.IsClient {
		return nil, repository.ErrNotFound
	}
	status := domain.ClientStatusUnqualified
	user.ClientStatus = &status
	user.ClientUnqualifiedAt = &at
	user.ClientUnqualifiedReason = &reason
	user.UpdatedAt = time.Now().UTC()
	clone := *user
	return &clone, nil
}

func (r *UserStore) ConsumeTemporaryPassword(_ context.Context, id string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.ConsumeTemporaryPassword")
	user, ok := r.s.users[id]
	if !ok || user.Metadata.TemporaryPassword == "" {
		return "", repository.ErrNotFound
	}
	password := user.Metadata.TemporaryPassword
	user.Metadata.TemporaryPassword = ""
	return password, nil
}

func (r *UserStore) ListOrphanedClients(_ context.Context, limit int) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.count("users.ListOrphanedClients")
	linked := map[string]bool{}
	for _, lead := range r.s.leads {
		if lead.ClientID != nil {
			linked[*lead.ClientID] = true
		}
	}
	result := []domain.User{}
	for _, user := range r.s.users {
		if user.IsClient && user.LeadID != nil && !linked[user.ID] {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return page(result, limit, 0), nil
}

// DepartmentStore implements repository.DepartmentRepository.
type DepartmentStore struct{ s *Store }

var _ repository.DepartmentRepository = (*DepartmentStore)(nil)

func (r *DepartmentStore) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dept, ok := r.s.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *dept
	return &clone, nil
}

func (r *DepartmentStore) GetByName(_ context.Context, name string) (*domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, dept := range r.s.departments {
		if strings.EqualFold(dept.Name, strings.TrimSpace(name)) {
			clone := *dept
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *DepartmentStore) ListActive(_ context.Context) ([]domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []domain.Department{}
	for _, dept := range r.s.departments {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// RoleStore implements repository.RoleRepository.
type RoleStore struct{ s *Store }

var _ repository.RoleRepository = (*RoleStore)(nil)

func (r *RoleStore) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (r *RoleStore) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			clone := *role
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

// HistoryStore implements repository.LeadHistoryRepository.
type HistoryStore struct{ s *Store }

var _ repository.LeadHistoryRepository = (*HistoryStore)(nil)

func (r *HistoryStore) Create(_ context.Context, entry *domain.LeadStatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailHistory != nil {
		return r.s.FailHistory
	}
	entry.ID = r.s.nextID("hist")
	entry.CreatedAt = time.Now().UTC()
	r.s.history = append(r.s.history, *entry)
	return nil
}

func (r *HistoryStore) ListByLead(_ context.Context, leadID string, limit, offset int) ([]domain.LeadStatusChange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []domain.LeadStatusChange{}
	for _, entry := range r.s.history {
		if entry.LeadID == leadID {
			result = append(result, entry)
		}
	}
	return page(result, limit, offset), nil
}

func containsAny(needle string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
