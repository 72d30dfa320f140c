package dto

import (
	"time"

	"github.com/spec-kit/crm-service/internal/domain"
)

// ClientResponse is the client account representation. Credentials never appear here.
type ClientResponse struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Email             string               `json:"email"`
	Status            domain.AccountStatus `json:"status"`
	LeadID            *string              `json:"lead_id,omitempty"`
	DepartmentID      *string              `json:"department_id,omitempty"`
	ClientStatus      *domain.ClientStatus `json:"client_status,omitempty"`
	UnqualifiedReason *string              `json:"unqualified_reason,omitempty"`
	UnqualifiedAt     *time.Time           `json:"unqualified_at,omitempty"`
	CreatedBy         string               `json:"created_by,omitempty"`
	Source            string               `json:"source,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// ClientAccountResponse is a freshly created client with its one-time password.
type ClientAccountResponse struct {
	ClientResponse
	OneTimePassword string `json:"one_time_password,omitempty"`
}

// TemporaryPasswordResponse carries a revealed temporary password.
type TemporaryPasswordResponse struct {
	ClientID          string `json:"client_id"`
	TemporaryPassword string `json:"temporary_password"`
}

// NewClientResponse maps a client account.
func NewClientResponse(user *domain.User) ClientResponse {
	return ClientResponse{
		ID:                user.ID,
		Name:              user.Name,
		Email:             user.Email,
		Status:            user.Status,
		LeadID:            user.LeadID,
		DepartmentID:      user.DepartmentID,
		ClientStatus:      user.ClientStatus,
		UnqualifiedReason: user.ClientUnqualifiedReason,
		UnqualifiedAt:     user.ClientUnqualifiedAt,
		CreatedBy:         user.Metadata.CreatedBy,
		Source:            user.Metadata.Source,
		CreatedAt:         user.CreatedAt,
	}
}
