package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/repository"
)

// Orphan outcomes.
const (
	OrphanLinkable   = "linkable"
	OrphanLinked     = "linked"
	OrphanUnlinkable = "unlinkable"
	OrphanFailed     = "failed"
)

const reconciledReason = "linked orphaned client during reconciliation"

// OrphanOutcome describes what reconciliation did with one orphaned client.
type OrphanOutcome struct {
	ClientID string
	LeadID   string
	Outcome  string
	Detail   string
}

// ReconciliationReport summarizes a reconciliation run.
type ReconciliationReport struct {
	Applied bool
	Orphans []OrphanOutcome
}

// Count returns how many orphans ended with outcome.
func (r *ReconciliationReport) Count(outcome string) int {
	n := 0
	for _, orphan := range r.Orphans {
		if orphan.Outcome == outcome {
			n++
		}
	}
	return n
}

// ReconciliationService finds client accounts left behind by failed qualifications and links
// them back to their lead when the lead can still be qualified.
type ReconciliationService struct {
	leads      repository.LeadRepository
	users      repository.UserRepository
	history    repository.LeadHistoryRepository
	cache      CacheInvalidator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ReconciliationDependencies bundles collaborators for reconciliation.
type ReconciliationDependencies struct {
	LeadRepo    repository.LeadRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.LeadHistoryRepository
	Cache       CacheInvalidator
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		leads:      deps.LeadRepo,
		users:      deps.UserRepo,
		history:    deps.HistoryRepo,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile inspects up to limit orphaned clients. With apply set, linkable orphans are
// linked through the same conditional update qualification uses.
func (s *ReconciliationService) Reconcile(ctx context.Context, apply bool, limit int) (*ReconciliationReport, error) {
	orphans, err := s.users.ListOrphanedClients(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{Applied: apply, Orphans: make([]OrphanOutcome, 0, len(orphans))}
	for i := range orphans {
		outcome := s.reconcileOne(ctx, &orphans[i], apply)
		report.Orphans = append(report.Orphans, outcome)
		s.logger.Info("orphaned client inspected",
			zap.String("client_id", outcome.ClientID),
			zap.String("lead_id", outcome.LeadID),
			zap.String("outcome", outcome.Outcome),
			zap.String("detail", outcome.Detail))
	}
	return report, nil
}

func (s *ReconciliationService) reconcileOne(ctx context.Context, client *domain.User, apply bool) OrphanOutcome {
	outcome := OrphanOutcome{ClientID: client.ID, LeadID: *client.LeadID}

	lead, err := s.leads.GetByID(ctx, *client.LeadID, domain.Scope{})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			outcome.Outcome, outcome.Detail = OrphanUnlinkable, "lead not found"
			return outcome
		}
		outcome.Outcome, outcome.Detail = OrphanFailed, err.Error()
		return outcome
	}
	if lead.HasClient() {
		outcome.Outcome, outcome.Detail = OrphanUnlinkable, "lead is linked to client "+*lead.ClientID
		return outcome
	}
	if transition := lead.CanTransitionTo(domain.LeadStatusQualified); !transition.Allowed {
		outcome.Outcome, outcome.Detail = OrphanUnlinkable, transition.Reason
		return outcome
	}
	if !apply {
		outcome.Outcome, outcome.Detail = OrphanLinkable, "lead is "+string(lead.Status)
		return outcome
	}

	qualifiedBy := client.Metadata.CreatedBy
	if qualifiedBy == "" {
		qualifiedBy = lead.CreatedBy
	}
	linked, err := s.leads.MarkQualified(ctx, lead.ID, lead.Status, client.ID, qualifiedBy, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			outcome.Outcome, outcome.Detail = OrphanUnlinkable, "lead changed during reconciliation"
			return outcome
		}
		outcome.Outcome, outcome.Detail = OrphanFailed, err.Error()
		return outcome
	}

	invalidate(ctx, s.cache, s.logger, s.metrics, invalidationPlan{
		leadID:         lead.ID,
		leadListings:   true,
		clientID:       client.ID,
		clientListings: true,
	})
	if s.history != nil {
		reason := reconciledReason
		entry := &domain.LeadStatusChange{
			LeadID:    lead.ID,
			ChangedBy: qualifiedBy,
			OldStatus: lead.Status,
			NewStatus: linked.Status,
			Reason:    &reason,
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record lead status history", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:    events.EventLeadQualified,
			LeadID:  lead.ID,
			ActorID: qualifiedBy,
			Payload: events.LeadQualifiedPayload{
				OldStatus:   lead.Status,
				ClientID:    client.ID,
				ClientEmail: client.Email,
				OwnerID:     lead.CreatedBy,
			},
		})
	}
	s.metrics.RecordTransition(string(lead.Status), string(domain.LeadStatusQualified), "reconciled")

	outcome.Outcome, outcome.Detail = OrphanLinked, "lead qualified"
	return outcome
}
