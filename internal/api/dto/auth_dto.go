package dto

import (
	"time"

	"github.com/spec-kit/crm-service/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest payload for password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountResponse describes the authenticated account.
type AccountResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	Status       domain.AccountStatus `json:"status"`
	IsClient     bool                 `json:"is_client"`
	Role         string               `json:"role,omitempty"`
	Permissions  []domain.Permission  `json:"permissions,omitempty"`
	DepartmentID *string              `json:"department_id,omitempty"`
}

// NewAccountResponse maps an account and its role.
func NewAccountResponse(user *domain.User, role *domain.Role) AccountResponse {
	resp := AccountResponse{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Status:       user.Status,
		IsClient:     user.IsClient,
		DepartmentID: user.DepartmentID,
	}
	if role != nil {
		resp.Role = role.Name
		resp.Permissions = role.Permissions
	}
	return resp
}
