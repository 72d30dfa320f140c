package dto

import (
	"time"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/service"
)

// CreateLeadRequest payload for new leads.
type CreateLeadRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Phone   string `json:"phone" validate:"max=40"`
	Company string `json:"company" validate:"max=200"`
	Source  string `json:"source" validate:"max=100"`
	Notes   string `json:"notes" validate:"max=5000"`
	Status  string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateLeadRequest payload for descriptive lead fields. Status is accepted only so it
// can be rejected with a pointer to the status endpoint.
type UpdateLeadRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Phone   string `json:"phone" validate:"max=40"`
	Company string `json:"company" validate:"max=200"`
	Source  string `json:"source" validate:"max=100"`
	Notes   string `json:"notes" validate:"max=5000"`
	Status  string `json:"status"`
}

// StatusChangeRequest payload for PATCH /leads/:id/status.
type StatusChangeRequest struct {
	Status     string `json:"status" validate:"required"`
	Reason     string `json:"reason" validate:"max=2000"`
	Department string `json:"department" validate:"max=100"`
}

// UserSummaryResponse is a referenced account.
type UserSummaryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LeadResponse is the lead representation.
type LeadResponse struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Email             string               `json:"email"`
	Phone             string               `json:"phone,omitempty"`
	Company           string               `json:"company,omitempty"`
	Source            string               `json:"source,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	Status            domain.LeadStatus    `json:"status"`
	CreatedBy         string               `json:"created_by"`
	ClientID          *string              `json:"client_id,omitempty"`
	QualifiedAt       *time.Time           `json:"qualified_at,omitempty"`
	UnqualifiedReason *string              `json:"unqualified_reason,omitempty"`
	UnqualifiedAt     *time.Time           `json:"unqualified_at,omitempty"`
	Owner             *UserSummaryResponse `json:"owner,omitempty"`
	QualifiedBy       *UserSummaryResponse `json:"qualified_by,omitempty"`
	Client            *UserSummaryResponse `json:"client,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// StatusChangeResponse is returned by every status change.
type StatusChangeResponse struct {
	Lead     LeadResponse           `json:"lead"`
	Client   *ClientAccountResponse `json:"client,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
}

// LeadHistoryResponse is one status audit entry.
type LeadHistoryResponse struct {
	ID        string            `json:"id"`
	ChangedBy string            `json:"changed_by"`
	OldStatus domain.LeadStatus `json:"old_status"`
	NewStatus domain.LeadStatus `json:"new_status"`
	Reason    *string           `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewLeadResponse maps a bare lead.
func NewLeadResponse(lead *domain.Lead) LeadResponse {
	return LeadResponse{
		ID:                lead.ID,
		Name:              lead.Name,
		Email:             lead.Email,
		Phone:             lead.Phone,
		Company:           lead.Company,
		Source:            lead.Source,
		Notes:             lead.Notes,
		Status:            lead.Status,
		CreatedBy:         lead.CreatedBy,
		ClientID:          lead.ClientID,
		QualifiedAt:       lead.QualifiedAt,
		UnqualifiedReason: lead.UnqualifiedReason,
		UnqualifiedAt:     lead.UnqualifiedAt,
		CreatedAt:         lead.CreatedAt,
		UpdatedAt:         lead.UpdatedAt,
	}
}

// NewLeadDetailsResponse maps a lead with its resolved references.
func NewLeadDetailsResponse(details *service.LeadDetails) LeadResponse {
	resp := NewLeadResponse(&details.Lead)
	resp.Owner = userSummary(details.Owner)
	resp.QualifiedBy = userSummary(details.QualifiedBy)
	resp.Client = userSummary(details.Client)
	return resp
}

// NewStatusChangeResponse maps a qualification result.
func NewStatusChangeResponse(result *service.QualificationResult) StatusChangeResponse {
	resp := StatusChangeResponse{
		Lead:     NewLeadDetailsResponse(result.Lead),
		Warnings: result.Warnings,
	}
	if result.Client != nil && result.Client.User != nil {
		account := ClientAccountResponse{
			ClientResponse:  NewClientResponse(result.Client.User),
			OneTimePassword: result.Client.OneTimePassword,
		}
		resp.Client = &account
	}
	return resp
}

// NewLeadHistoryResponse maps an audit entry.
func NewLeadHistoryResponse(entry *domain.LeadStatusChange) LeadHistoryResponse {
	return LeadHistoryResponse{
		ID:        entry.ID,
		ChangedBy: entry.ChangedBy,
		OldStatus: entry.OldStatus,
		NewStatus: entry.NewStatus,
		Reason:    entry.Reason,
		CreatedAt: entry.CreatedAt,
	}
}

func userSummary(summary *service.UserSummary) *UserSummaryResponse {
	if summary == nil {
		return nil
	}
	return &UserSummaryResponse{ID: summary.ID, Name: summary.Name, Email: summary.Email}
}
