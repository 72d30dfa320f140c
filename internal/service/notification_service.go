package service

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/notify"
	"github.com/spec-kit/crm-service/internal/repository"
)

var (
	qualifiedTemplate = template.Must(template.New("qualified").Parse(
		`Hello {{.OwnerName}},

Your lead {{.LeadName}} <{{.LeadEmail}}> was qualified and is now a client{{if .Department}} of the {{.Department}} department{{end}}.
The client account {{.ClientEmail}} is pending verification.
`))
	unqualifiedTemplate = template.Must(template.New("unqualified").Parse(
		`Hello {{.OwnerName}},

Your lead {{.LeadName}} <{{.LeadEmail}}> was marked unqualified.
Reason: {{.Reason}}
`))
)

// NotificationService emails lead owners about qualification outcomes.
type NotificationService struct {
	dispatcher events.Dispatcher
	leads      repository.LeadRepository
	users      repository.UserRepository
	mailer     notify.Mailer
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for notifications.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	LeadRepo   repository.LeadRepository
	UserRepo   repository.UserRepository
	Mailer     notify.Mailer
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		leads:      deps.LeadRepo,
		users:      deps.UserRepo,
		mailer:     deps.Mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to the qualification outcomes and returns the event types it
// listens to. Nothing is registered without a dispatcher and a mailer.
func (n *NotificationService) RegisterHandlers() []events.EventType {
	if n.dispatcher == nil || n.mailer == nil {
		return nil
	}
	handlers := map[events.EventType]events.EventHandler{
		events.EventLeadQualified:   n.handleLeadQualified,
		events.EventLeadUnqualified: n.handleLeadUnqualified,
	}
	subscribed := make([]events.EventType, 0, len(handlers))
	for _, eventType := range events.AllEventTypes {
		if handler, ok := handlers[eventType]; ok {
			n.dispatcher.Subscribe(eventType, handler)
			subscribed = append(subscribed, eventType)
		}
	}
	return subscribed
}

func (n *NotificationService) handleLeadQualified(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LeadQualifiedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.notifyOwner(ctx, event, payload.OwnerID, "Lead qualified", qualifiedTemplate, map[string]string{
		"Department":  payload.Department,
		"ClientEmail": payload.ClientEmail,
	})
}

func (n *NotificationService) handleLeadUnqualified(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LeadUnqualifiedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.notifyOwner(ctx, event, payload.OwnerID, "Lead unqualified", unqualifiedTemplate, map[string]string{
		"Reason": payload.Reason,
	})
}

func (n *NotificationService) notifyOwner(ctx context.Context, event events.Event, ownerID, subject string, tmpl *template.Template, data map[string]string) error {
	owner, err := n.users.GetByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load lead owner %s: %w", ownerID, err)
	}
	lead, err := n.leads.GetByID(ctx, event.LeadID, domain.Scope{})
	if err != nil {
		return fmt.Errorf("load lead %s: %w", event.LeadID, err)
	}

	data["OwnerName"] = owner.Name
	data["LeadName"] = lead.Name
	data["LeadEmail"] = lead.Email

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s notification: %w", event.Type, err)
	}
	if err := n.mailer.Send(ctx, notify.Message{To: owner.Email, Subject: subject + ": " + lead.Name, Body: body.String()}); err != nil {
		return err
	}
	n.logger.Debug("owner notified",
		zap.String("event_type", string(event.Type)),
		zap.String("lead_id", event.LeadID),
		zap.String("owner_id", ownerID))
	return nil
}
