package domain

import "time"

// AccountStatus is the directory account lifecycle, independent of lead status.
type AccountStatus string

const (
	AccountStatusActive              AccountStatus = "active"
	AccountStatusInactive            AccountStatus = "inactive"
	AccountStatusSuspended           AccountStatus = "suspended"
	AccountStatusPendingVerification AccountStatus = "pending_verification"
)

// CanAuthenticate reports whether an account in this status may log in.
func (s AccountStatus) CanAuthenticate() bool {
	return s == AccountStatusActive || s == AccountStatusPendingVerification
}

// ClientStatus annotates a client account with the outcome of its source lead.
type ClientStatus string

const (
	ClientStatusQualified   ClientStatus = "qualified"
	ClientStatusUnqualified ClientStatus = "unqualified"
)

// UserMetadata is stored as jsonb alongside the account.
type UserMetadata struct {
	CreatedBy         string `json:"created_by,omitempty"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
	Source            string `json:"source,omitempty"`

	// LinkFailedAt is set on a client whose lead could not be linked to it.
	LinkFailedAt *time.Time `json:"link_failed_at,omitempty"`
}

// User is a directory account. Employees and clients share this record; IsClient and
// the role reference tell them apart.
type User struct {
	ID                      string
	Name                    string
	Email                   string
	PasswordHash            string
	RoleID                  *string
	DepartmentID            *string
	IsClient                bool
	LeadID                  *string
	Status                  AccountStatus
	ClientStatus            *ClientStatus
	ClientUnqualifiedAt     *time.Time
	ClientUnqualifiedReason *string
	Metadata                UserMetadata
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Sanitized returns a copy without credential material.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	clone.Metadata.TemporaryPassword = ""
	return &clone
}
