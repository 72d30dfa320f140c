package domain

import (
	"fmt"
	"strings"
	"time"
)

// LeadStatus is the closed set of lead lifecycle states.
type LeadStatus string

const (
	LeadStatusActive      LeadStatus = "active"
	LeadStatusInactive    LeadStatus = "inactive"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusUnqualified LeadStatus = "unqualified"
)

// LeadStatuses lists every status in display order.
var LeadStatuses = []LeadStatus{
	LeadStatusActive,
	LeadStatusInactive,
	LeadStatusQualified,
	LeadStatusUnqualified,
}

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusActive:      {LeadStatusInactive, LeadStatusQualified, LeadStatusUnqualified},
	LeadStatusInactive:    {LeadStatusActive, LeadStatusQualified, LeadStatusUnqualified},
	LeadStatusQualified:   {LeadStatusUnqualified},
	LeadStatusUnqualified: {},
}

// ParseLeadStatus converts raw input into a LeadStatus.
func ParseLeadStatus(raw string) (LeadStatus, error) {
	status := LeadStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown lead status %q", raw)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s LeadStatus) Valid() bool {
	_, ok := leadTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s LeadStatus) IsTerminal() bool {
	return s.Valid() && len(leadTransitions[s]) == 0
}

// Transition is the outcome of asking the state machine about a move.
type Transition struct {
	From    LeadStatus
	To      LeadStatus
	Allowed bool
	Reason  string
}

// Error lets a denied Transition be returned as an error value.
func (t Transition) Error() string {
	return t.Reason
}

// CanTransitionTo evaluates a move from s to target. It has no side effects.
func (s LeadStatus) CanTransitionTo(target LeadStatus) Transition {
	result := Transition{From: s, To: target}
	switch {
	case !s.Valid():
		result.Reason = fmt.Sprintf("current status %q is not a known lead status", s)
	case !target.Valid():
		result.Reason = fmt.Sprintf("target status %q is not a known lead status", target)
	case s.IsTerminal():
		result.Reason = fmt.Sprintf("lead is %s, which is a terminal status", s)
	case s == target:
		result.Reason = fmt.Sprintf("lead is already %s", s)
	case s == LeadStatusQualified:
		result.Reason = fmt.Sprintf("a qualified lead can only move to %s", LeadStatusUnqualified)
	default:
		for _, candidate := range leadTransitions[s] {
			if candidate == target {
				result.Allowed = true
				return result
			}
		}
		result.Reason = fmt.Sprintf("transition from %s to %s is not allowed", s, target)
	}
	return result
}

// Lead is a sales prospect tracked through qualification.
type Lead struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	Company           string
	Source            string
	Notes             string
	Status            LeadStatus
	CreatedBy         string
	ClientID          *string
	QualifiedBy       *string
	QualifiedAt       *time.Time
	UnqualifiedReason *string
	UnqualifiedAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// CanTransitionTo evaluates a move of this lead's current status.
func (l *Lead) CanTransitionTo(target LeadStatus) Transition {
	return l.Status.CanTransitionTo(target)
}

// HasClient reports whether the lead is linked to a directory account.
func (l *Lead) HasClient() bool {
	return l.ClientID != nil && *l.ClientID != ""
}

// LeadStatusChange is an audit entry for a lead status move.
type LeadStatusChange struct {
	ID        string
	LeadID    string
	ChangedBy string
	OldStatus LeadStatus
	NewStatus LeadStatus
	Reason    *string
	CreatedAt time.Time
}
