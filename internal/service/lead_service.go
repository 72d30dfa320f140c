package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/cache"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
	"github.com/spec-kit/crm-service/pkg/util/phoneutil"
)

// LeadService manages lead records outside of status changes.
type LeadService struct {
	leads       repository.LeadRepository
	users       repository.UserRepository
	history     repository.LeadHistoryRepository
	access      AccessFilter
	cache       *cache.Cache
	invalidator CacheInvalidator
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	phoneRegion string
}

// LeadDependencies bundles collaborators for the lead service.
type LeadDependencies struct {
	LeadRepo    repository.LeadRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.LeadHistoryRepository
	Access      AccessFilter
	Cache       *cache.Cache
	Invalidator CacheInvalidator
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	PhoneRegion string
}

// LeadInput describes lead creation and update payloads.
type LeadInput struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Source  string
	Notes   string
	Status  string
}

// LeadListFilter describes listing parameters from callers.
type LeadListFilter struct {
	Statuses []domain.LeadStatus
	Search   string
	SortBy   repository.LeadSortField
	SortDesc bool
	Limit    int
	Offset   int
}

// NewLeadService constructs the service. Without an explicit invalidator the read cache
// invalidates itself.
func NewLeadService(deps LeadDependencies) *LeadService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	invalidator := deps.Invalidator
	if invalidator == nil {
		invalidator = deps.Cache
	}
	return &LeadService{
		leads:       deps.LeadRepo,
		users:       deps.UserRepo,
		history:     deps.HistoryRepo,
		access:      deps.Access,
		cache:       deps.Cache,
		invalidator: invalidator,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		phoneRegion: deps.PhoneRegion,
	}
}

// Create stores a new lead owned by caller.
func (s *LeadService) Create(ctx context.Context, caller *auth.Principal, input LeadInput) (*LeadDetails, error) {
	if _, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionCreate); err != nil {
		return nil, err
	}

	status := domain.LeadStatusActive
	if strings.TrimSpace(input.Status) != "" {
		parsed, err := domain.ParseLeadStatus(input.Status)
		if err != nil || (parsed != domain.LeadStatusActive && parsed != domain.LeadStatusInactive) {
			return nil, apperrors.NewValidationError("new leads must be active or inactive",
				map[string]any{"status": input.Status})
		}
		status = parsed
	}

	lead := &domain.Lead{Status: status, CreatedBy: caller.ID()}
	if err := s.apply(lead, input); err != nil {
		return nil, err
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, s.writeError(err, lead.Email)
	}

	invalidate(ctx, s.invalidator, s.logger, s.metrics, invalidationPlan{leadListings: true})
	s.publish(ctx, events.Event{
		Type:    events.EventLeadCreated,
		LeadID:  lead.ID,
		ActorID: caller.ID(),
		Payload: events.LeadCreatedPayload{Email: lead.Email, Status: lead.Status, OwnerID: lead.CreatedBy},
	})
	s.logger.Info("lead created", zap.String("lead_id", lead.ID), zap.String("actor_id", caller.ID()))

	return populateLead(ctx, s.users, s.logger, lead), nil
}

// Get returns a lead visible to caller. Cached entries are shared across callers, so the
// scope is checked after the read.
func (s *LeadService) Get(ctx context.Context, caller *auth.Principal, leadID string) (*LeadDetails, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionRead)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.EntityKey(ctx, cache.NamespaceLeads, leadID)
	if err != nil {
		s.logger.Warn("cache key lookup failed", zap.String("lead_id", leadID), zap.Error(err))
		key = ""
	}
	details, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*LeadDetails, error) {
		lead, err := s.leads.GetByID(ctx, leadID, domain.Scope{})
		if err != nil {
			return nil, err
		}
		return populateLead(ctx, s.users, s.logger, lead), nil
	})
	if err != nil {
		return nil, notFoundOr(err, "lead", leadID)
	}
	if !scope.Permits(details.Lead.CreatedBy) {
		return nil, apperrors.NewNotFound("lead", map[string]any{"id": leadID})
	}
	return details, nil
}

// List returns leads visible to caller.
func (s *LeadService) List(ctx context.Context, caller *auth.Principal, filter LeadListFilter) ([]domain.Lead, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionRead)
	if err != nil {
		return nil, err
	}

	repoFilter := repository.LeadFilter{
		OwnerID:  scope.OwnerID,
		Statuses: filter.Statuses,
		SortBy:   filter.SortBy,
		SortDesc: filter.SortDesc,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		repoFilter.Search = &search
	}

	key, err := s.cache.ListKey(ctx, cache.NamespaceLeads, repoFilter)
	if err != nil {
		s.logger.Warn("cache key lookup failed", zap.String("namespace", string(cache.NamespaceLeads)), zap.Error(err))
		key = ""
	}
	leads, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]domain.Lead, error) {
		return s.leads.List(ctx, repoFilter)
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return leads, nil
}

// Update rewrites descriptive fields. Status, owner and links are never touched here.
func (s *LeadService) Update(ctx context.Context, caller *auth.Principal, leadID string, input LeadInput) (*LeadDetails, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionUpdate)
	if err != nil {
		return nil, err
	}
	lead, err := s.leads.GetByID(ctx, leadID, scope)
	if err != nil {
		return nil, notFoundOr(err, "lead", leadID)
	}
	if strings.TrimSpace(input.Status) != "" {
		return nil, apperrors.NewValidationError("status changes go through the status endpoint",
			map[string]any{"field": "status"})
	}
	if err := s.apply(lead, input); err != nil {
		return nil, err
	}
	if err := s.leads.UpdateDetails(ctx, lead, scope); err != nil {
		return nil, s.writeError(err, lead.Email)
	}

	invalidate(ctx, s.invalidator, s.logger, s.metrics, invalidationPlan{leadID: lead.ID, leadListings: true})
	s.logger.Info("lead updated", zap.String("lead_id", lead.ID), zap.String("actor_id", caller.ID()))
	return populateLead(ctx, s.users, s.logger, lead), nil
}

// Delete soft-deletes a lead.
func (s *LeadService) Delete(ctx context.Context, caller *auth.Principal, leadID string) error {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.leads.SoftDelete(ctx, leadID, scope); err != nil {
		return notFoundOr(err, "lead", leadID)
	}
	invalidate(ctx, s.invalidator, s.logger, s.metrics, invalidationPlan{leadID: leadID, leadListings: true})
	s.logger.Info("lead deleted", zap.String("lead_id", leadID), zap.String("actor_id", caller.ID()))
	return nil
}

// History returns the status audit trail of a lead visible to caller.
func (s *LeadService) History(ctx context.Context, caller *auth.Principal, leadID string, limit, offset int) ([]domain.LeadStatusChange, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionRead)
	if err != nil {
		return nil, err
	}
	if _, err := s.leads.GetByID(ctx, leadID, scope); err != nil {
		return nil, notFoundOr(err, "lead", leadID)
	}
	entries, err := s.history.ListByLead(ctx, leadID, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

func (s *LeadService) apply(lead *domain.Lead, input LeadInput) error {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return apperrors.NewValidationError("name and email are required", nil)
	}
	lead.Name = name
	lead.Email = email
	lead.Phone = phoneutil.NormalizeE164(input.Phone, s.phoneRegion)
	lead.Company = strings.TrimSpace(input.Company)
	lead.Source = strings.TrimSpace(input.Source)
	lead.Notes = strings.TrimSpace(input.Notes)
	return nil
}

func (s *LeadService) writeError(err error, email string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("a lead with this email already exists", map[string]any{"email": email})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("lead", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func (s *LeadService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
