package events

import (
	"time"

	"github.com/spec-kit/crm-service/internal/domain"
)

// EventType enumerates supported event identifiers. Values double as AMQP routing keys.
type EventType string

const (
	EventLeadCreated       EventType = "lead.created"
	EventLeadStatusChanged EventType = "lead.status_changed"
	EventLeadQualified     EventType = "lead.qualified"
	EventLeadUnqualified   EventType = "lead.unqualified"
	EventClientOrphaned    EventType = "client.orphaned"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventLeadCreated,
	EventLeadStatusChanged,
	EventLeadQualified,
	EventLeadUnqualified,
	EventClientOrphaned,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	LeadID    string    `json:"lead_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// LeadCreatedPayload payload.
type LeadCreatedPayload struct {
	Email   string            `json:"email"`
	Status  domain.LeadStatus `json:"status"`
	OwnerID string            `json:"owner_id"`
}

// LeadStatusChangedPayload payload.
type LeadStatusChangedPayload struct {
	OldStatus domain.LeadStatus `json:"old_status"`
	NewStatus domain.LeadStatus `json:"new_status"`
	OwnerID   string            `json:"owner_id"`
}

// LeadQualifiedPayload payload. It never carries credentials.
type LeadQualifiedPayload struct {
	OldStatus   domain.LeadStatus `json:"old_status"`
	ClientID    string            `json:"client_id"`
	ClientEmail string            `json:"client_email"`
	Department  string            `json:"department"`
	OwnerID     string            `json:"owner_id"`
}

// LeadUnqualifiedPayload payload.
type LeadUnqualifiedPayload struct {
	OldStatus       domain.LeadStatus `json:"old_status"`
	Reason          string            `json:"reason"`
	ClientID        *string           `json:"client_id,omitempty"`
	ClientAnnotated bool              `json:"client_annotated"`
	OwnerID         string            `json:"owner_id"`
}

// ClientOrphanedPayload payload.
type ClientOrphanedPayload struct {
	ClientID string `json:"client_id"`
	Cause    string `json:"cause"`
}
