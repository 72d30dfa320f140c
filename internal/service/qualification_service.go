package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/repository"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

const clientSourceQualification = "lead_qualification"

// orphanGracePeriod bounds how long an unlinked client may belong to a qualification that is
// still in flight. Older unlinked clients are treated as orphans even when unmarked.
const orphanGracePeriod = 2 * time.Minute

// QualificationService moves leads through their status lifecycle. Qualification creates the
// client account first and links it with a conditional lead update, which is the commit
// point of the sequence.
type QualificationService struct {
	leads             repository.LeadRepository
	users             repository.UserRepository
	history           repository.LeadHistoryRepository
	access            AccessFilter
	roles             RoleResolver
	credentials       CredentialIssuer
	cache             CacheInvalidator
	dispatcher        events.Dispatcher
	metrics           *observability.Metrics
	logger            *zap.Logger
	defaultDepartment string
	now               func() time.Time
}

// QualificationDependencies bundles collaborators for the qualification service.
type QualificationDependencies struct {
	LeadRepo          repository.LeadRepository
	UserRepo          repository.UserRepository
	HistoryRepo       repository.LeadHistoryRepository
	Access            AccessFilter
	Roles             RoleResolver
	Credentials       CredentialIssuer
	Cache             CacheInvalidator
	Dispatcher        events.Dispatcher
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	DefaultDepartment string
}

// QualifyInput carries optional qualification parameters.
type QualifyInput struct {
	Department string
}

// StatusChangeInput is a request to move a lead to Status.
type StatusChangeInput struct {
	Status     string
	Reason     string
	Department string
}

// NewQualificationService constructs the service.
func NewQualificationService(deps QualificationDependencies) *QualificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualificationService{
		leads:             deps.LeadRepo,
		users:             deps.UserRepo,
		history:           deps.HistoryRepo,
		access:            deps.Access,
		roles:             deps.Roles,
		credentials:       deps.Credentials,
		cache:             deps.Cache,
		dispatcher:        deps.Dispatcher,
		metrics:           deps.Metrics,
		logger:            logger,
		defaultDepartment: deps.DefaultDepartment,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// ChangeStatus dispatches a status change to the matching workflow.
func (s *QualificationService) ChangeStatus(ctx context.Context, caller *auth.Principal, leadID string, input StatusChangeInput) (*QualificationResult, error) {
	target, err := domain.ParseLeadStatus(input.Status)
	if err != nil {
		return nil, apperrors.NewValidationError("unknown lead status", map[string]any{"status": input.Status})
	}

	switch target {
	case domain.LeadStatusQualified:
		return s.Qualify(ctx, caller, leadID, QualifyInput{Department: input.Department})
	case domain.LeadStatusUnqualified:
		return s.Unqualify(ctx, caller, leadID, input.Reason)
	}

	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionUpdate)
	if err != nil {
		return nil, err
	}
	lead, err := s.loadLead(ctx, leadID, scope)
	if err != nil {
		return nil, err
	}
	if transition := lead.CanTransitionTo(target); !transition.Allowed {
		return nil, s.denied(lead, transition)
	}

	updated, err := s.leads.SetStatus(ctx, lead.ID, lead.Status, target)
	if err != nil {
		return nil, s.lostRace(ctx, lead, target, err)
	}

	invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{leadID: lead.ID, leadListings: true})
	s.recordHistory(ctx, caller.ID(), lead.Status, updated, optional(input.Reason))
	s.publish(ctx, events.Event{
		Type:    events.EventLeadStatusChanged,
		LeadID:  lead.ID,
		ActorID: caller.ID(),
		Payload: events.LeadStatusChangedPayload{OldStatus: lead.Status, NewStatus: target, OwnerID: lead.CreatedBy},
	})
	s.metrics.RecordTransition(string(lead.Status), string(target), "ok")
	s.logger.Info("lead status changed",
		zap.String("lead_id", lead.ID),
		zap.String("from", string(lead.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", caller.ID()))

	return &QualificationResult{Lead: populateLead(ctx, s.users, s.logger, updated)}, nil
}

// Qualify promotes a lead into a client account.
func (s *QualificationService) Qualify(ctx context.Context, caller *auth.Principal, leadID string, input QualifyInput) (*QualificationResult, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionQualify)
	if err != nil {
		return nil, err
	}
	lead, err := s.loadLead(ctx, leadID, scope)
	if err != nil {
		return nil, err
	}
	if transition := lead.CanTransitionTo(domain.LeadStatusQualified); !transition.Allowed {
		return nil, s.denied(lead, transition)
	}
	if lead.HasClient() {
		return nil, apperrors.NewAlreadyLinked(map[string]any{"lead_id": lead.ID, "client_id": *lead.ClientID})
	}
	if err := s.ensureEmailAvailable(ctx, lead); err != nil {
		return nil, err
	}

	department := strings.TrimSpace(input.Department)
	if department == "" {
		department = s.defaultDepartment
	}
	clientRole, err := s.roles.ResolveClientRole(ctx, department)
	if err != nil {
		return nil, err
	}

	credential, err := s.credentials.IssueOneTimePassword()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	clientStatus := domain.ClientStatusQualified
	leadRef := lead.ID
	client := &domain.User{
		Name:         lead.Name,
		Email:        strings.TrimSpace(lead.Email),
		PasswordHash: credential.Hash,
		RoleID:       &clientRole.Role.ID,
		DepartmentID: &clientRole.Department.ID,
		IsClient:     true,
		LeadID:       &leadRef,
		Status:       domain.AccountStatusPendingVerification,
		ClientStatus: &clientStatus,
		Metadata: domain.UserMetadata{
			CreatedBy:         caller.ID(),
			TemporaryPassword: credential.Plaintext,
			Source:            clientSourceQualification,
		},
	}
	if err := s.users.Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, s.classifyDuplicate(ctx, lead, err)
		}
		return nil, apperrors.NewInternalError(err)
	}

	from := lead.Status
	qualified, err := s.leads.MarkQualified(ctx, lead.ID, from, client.ID, caller.ID(), s.now())
	if errors.Is(err, repository.ErrPreconditionFailed) {
		qualified, from, err = s.relink(ctx, lead, client.ID, caller.ID(), err)
	}
	if err != nil {
		return nil, s.orphaned(ctx, caller, lead, client, err)
	}

	invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{
		leadID:         lead.ID,
		leadListings:   true,
		clientListings: true,
	})
	s.recordHistory(ctx, caller.ID(), from, qualified, nil)
	s.publish(ctx, events.Event{
		Type:    events.EventLeadQualified,
		LeadID:  lead.ID,
		ActorID: caller.ID(),
		Payload: events.LeadQualifiedPayload{
			OldStatus:   from,
			ClientID:    client.ID,
			ClientEmail: client.Email,
			Department:  clientRole.Department.Name,
			OwnerID:     lead.CreatedBy,
		},
	})
	s.metrics.RecordTransition(string(from), string(domain.LeadStatusQualified), "ok")
	s.logger.Info("lead qualified",
		zap.String("lead_id", lead.ID),
		zap.String("client_id", client.ID),
		zap.String("department", clientRole.Department.Name),
		zap.String("actor_id", caller.ID()))

	return &QualificationResult{
		Lead:   populateLead(ctx, s.users, s.logger, qualified),
		Client: &ClientAccount{User: client.Sanitized(), OneTimePassword: credential.Plaintext},
	}, nil
}

// relink re-reads a lead whose guarded update matched no row. When the lead moved to another
// status that may still be qualified and has no client, the update is retried once from there.
func (s *QualificationService) relink(ctx context.Context, lead *domain.Lead, clientID, actorID string, cause error) (*domain.Lead, domain.LeadStatus, error) {
	current, err := s.leads.GetByID(ctx, lead.ID, domain.Scope{})
	if err != nil {
		return nil, lead.Status, cause
	}
	if current.HasClient() || !current.CanTransitionTo(domain.LeadStatusQualified).Allowed {
		return nil, lead.Status, cause
	}
	s.logger.Info("lead status moved during qualification, retrying link",
		zap.String("lead_id", lead.ID),
		zap.String("expected_status", string(lead.Status)),
		zap.String("current_status", string(current.Status)))
	qualified, err := s.leads.MarkQualified(ctx, lead.ID, current.Status, clientID, actorID, s.now())
	if err != nil {
		return nil, current.Status, err
	}
	return qualified, current.Status, nil
}

// Unqualify moves a lead to its terminal status and annotates any linked client.
func (s *QualificationService) Unqualify(ctx context.Context, caller *auth.Principal, leadID, reason string) (*QualificationResult, error) {
	scope, err := authorize(s.access, caller, auth.ResourceLeads, auth.ActionQualify)
	if err != nil {
		return nil, err
	}
	lead, err := s.loadLead(ctx, leadID, scope)
	if err != nil {
		return nil, err
	}
	if transition := lead.CanTransitionTo(domain.LeadStatusUnqualified); !transition.Allowed {
		return nil, s.denied(lead, transition)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("a reason is required to unqualify a lead",
			map[string]any{"field": "reason"})
	}

	at := s.now()
	updated, err := s.leads.MarkUnqualified(ctx, lead.ID, lead.Status, reason, at)
	if err != nil {
		return nil, s.lostRace(ctx, lead, domain.LeadStatusUnqualified, err)
	}

	result := &QualificationResult{}
	annotated := ""
	if updated.HasClient() {
		var warning string
		annotated, warning = s.annotateClient(ctx, updated, reason, at)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{
		leadID:         lead.ID,
		leadListings:   true,
		clientID:       annotated,
		clientListings: annotated != "",
	})
	s.recordHistory(ctx, caller.ID(), lead.Status, updated, &reason)
	s.publish(ctx, events.Event{
		Type:    events.EventLeadUnqualified,
		LeadID:  lead.ID,
		ActorID: caller.ID(),
		Payload: events.LeadUnqualifiedPayload{
			OldStatus:       lead.Status,
			Reason:          reason,
			ClientID:        updated.ClientID,
			ClientAnnotated: annotated != "",
			OwnerID:         lead.CreatedBy,
		},
	})
	s.metrics.RecordTransition(string(lead.Status), string(domain.LeadStatusUnqualified), "ok")
	s.logger.Info("lead unqualified",
		zap.String("lead_id", lead.ID),
		zap.Bool("client_annotated", annotated != ""),
		zap.String("actor_id", caller.ID()))

	result.Lead = populateLead(ctx, s.users, s.logger, updated)
	return result, nil
}

// annotateClient marks the lead's client as unqualified. It returns the annotated client id,
// or a warning when the cascade could not be applied.
func (s *QualificationService) annotateClient(ctx context.Context, lead *domain.Lead, reason string, at time.Time) (string, string) {
	clientID := *lead.ClientID
	fields := []zap.Field{zap.String("lead_id", lead.ID), zap.String("client_id", clientID)}

	client, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		s.metrics.RecordCascadeFailure()
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("linked client not found during unqualification", fields...)
			return "", "linked client account " + clientID + " was not found; it was not annotated"
		}
		s.logger.Error("linked client could not be loaded during unqualification", append(fields, zap.Error(err))...)
		return "", "linked client account " + clientID + " could not be loaded; it was not annotated"
	}
	if !client.IsClient {
		s.metrics.RecordCascadeFailure()
		s.logger.Warn("lead references an account that is not a client", fields...)
		return "", "linked account " + clientID + " is not a client account; it was not annotated"
	}

	if _, err := s.users.MarkClientUnqualified(ctx, client.ID, reason, at); err != nil {
		s.metrics.RecordCascadeFailure()
		s.logger.Error("client annotation failed during unqualification", append(fields, zap.Error(err))...)
		return "", "linked client account " + clientID + " could not be annotated"
	}
	return client.ID, ""
}

func (s *QualificationService) loadLead(ctx context.Context, leadID string, scope domain.Scope) (*domain.Lead, error) {
	lead, err := s.leads.GetByID(ctx, leadID, scope)
	if err != nil {
		return nil, notFoundOr(err, "lead", leadID)
	}
	return lead, nil
}

func (s *QualificationService) denied(lead *domain.Lead, transition domain.Transition) error {
	s.metrics.RecordTransition(string(transition.From), string(transition.To), "denied")
	return apperrors.NewIllegalTransition(transition.Reason, map[string]any{
		"lead_id": lead.ID,
		"from":    transition.From,
		"to":      transition.To,
	})
}

// ensureEmailAvailable rejects qualification when the lead's email already belongs to a
// directory account.
func (s *QualificationService) ensureEmailAvailable(ctx context.Context, lead *domain.Lead) error {
	existing, err := s.users.GetByEmail(ctx, lead.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return s.accountConflict(lead, existing)
}

// classifyDuplicate explains a unique violation on client insert. A client already carrying
// this lead's id means a concurrent qualification won.
func (s *QualificationService) classifyDuplicate(ctx context.Context, lead *domain.Lead, cause error) error {
	var dup *repository.DuplicateError
	if errors.As(cause, &dup) && strings.Contains(dup.Constraint, "lead_id") {
		return apperrors.NewAlreadyLinked(map[string]any{"lead_id": lead.ID})
	}
	existing, err := s.users.GetByEmail(ctx, lead.Email)
	if err != nil {
		return apperrors.NewDuplicateAccount(map[string]any{"email": lead.Email})
	}
	return s.accountConflict(lead, existing)
}

// accountConflict classifies an existing account that holds the lead's email. A client created
// for this lead is either the result of a concurrent qualification or an orphan left by an
// earlier attempt whose link failed.
func (s *QualificationService) accountConflict(lead *domain.Lead, existing *domain.User) error {
	if existing.IsClient && existing.LeadID != nil && *existing.LeadID == lead.ID {
		if lead.HasClient() || !s.isOrphan(existing) {
			return apperrors.NewAlreadyLinked(map[string]any{"lead_id": lead.ID, "client_id": existing.ID})
		}
		return apperrors.NewConflict("a client account for this lead exists but was never linked; reconcile orphaned clients", map[string]any{
			"lead_id":   lead.ID,
			"client_id": existing.ID,
			"orphaned":  true,
		})
	}
	return apperrors.NewDuplicateAccount(map[string]any{"email": lead.Email, "is_client": existing.IsClient})
}

func (s *QualificationService) isOrphan(client *domain.User) bool {
	if client.Metadata.LinkFailedAt != nil {
		return true
	}
	return !client.CreatedAt.IsZero() && s.now().Sub(client.CreatedAt) > orphanGracePeriod
}

// lostRace explains a conditional update that matched no row by re-reading the lead.
func (s *QualificationService) lostRace(ctx context.Context, lead *domain.Lead, target domain.LeadStatus, cause error) error {
	if !errors.Is(cause, repository.ErrPreconditionFailed) {
		return apperrors.NewInternalError(cause)
	}
	s.metrics.RecordTransition(string(lead.Status), string(target), "conflict")

	current, err := s.leads.GetByID(ctx, lead.ID, domain.Scope{})
	if err != nil {
		return notFoundOr(err, "lead", lead.ID)
	}
	if target == domain.LeadStatusQualified && current.HasClient() {
		return apperrors.NewAlreadyLinked(map[string]any{"lead_id": lead.ID, "client_id": *current.ClientID})
	}
	if transition := current.CanTransitionTo(target); !transition.Allowed {
		return apperrors.NewIllegalTransition(transition.Reason, map[string]any{
			"lead_id": lead.ID,
			"from":    transition.From,
			"to":      transition.To,
		})
	}
	return apperrors.NewConflict("lead was modified concurrently", map[string]any{
		"lead_id":         lead.ID,
		"expected_status": lead.Status,
		"current_status":  current.Status,
	})
}

// orphaned reports a client that was created but never linked. The account is left in place
// for reconciliation.
func (s *QualificationService) orphaned(ctx context.Context, caller *auth.Principal, lead *domain.Lead, client *domain.User, cause error) error {
	classified := cause
	if errors.Is(cause, repository.ErrPreconditionFailed) {
		classified = s.lostRace(ctx, lead, domain.LeadStatusQualified, cause)
	} else {
		s.metrics.RecordTransition(string(lead.Status), string(domain.LeadStatusQualified), "partial_failure")
	}

	s.logger.Error("client account created but lead link failed",
		zap.String("lead_id", lead.ID),
		zap.String("client_id", client.ID),
		zap.Error(cause))
	s.markOrphan(ctx, client)
	s.metrics.RecordOrphanedClient()

	invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{clientID: client.ID, clientListings: true})
	s.publish(ctx, events.Event{
		Type:    events.EventClientOrphaned,
		LeadID:  lead.ID,
		ActorID: caller.ID(),
		Payload: events.ClientOrphanedPayload{ClientID: client.ID, Cause: cause.Error()},
	})

	details := map[string]any{"lead_id": lead.ID, "client_id": client.ID}
	if domainErr := apperrors.ToDomainError(classified); domainErr.Code != apperrors.CodeInternal {
		details["cause"] = domainErr.Code
	}
	return apperrors.NewPartialFailure("client account was created but the lead could not be linked", details, classified)
}

// markOrphan stamps the unlinked client so a retried qualification can tell it apart from one
// still in flight.
func (s *QualificationService) markOrphan(ctx context.Context, client *domain.User) {
	at := s.now()
	client.Metadata.LinkFailedAt = &at
	if err := s.users.Update(ctx, client); err != nil {
		s.logger.Warn("failed to mark orphaned client", zap.String("client_id", client.ID), zap.Error(err))
	}
}

func (s *QualificationService) recordHistory(ctx context.Context, actorID string, from domain.LeadStatus, lead *domain.Lead, reason *string) {
	if s.history == nil {
		return
	}
	entry := &domain.LeadStatusChange{
		LeadID:    lead.ID,
		ChangedBy: actorID,
		OldStatus: from,
		NewStatus: lead.Status,
		Reason:    reason,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record lead status history", zap.String("lead_id", lead.ID), zap.Error(err))
	}
}

func (s *QualificationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
