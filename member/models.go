// Package member defines the membership lifecycle state machine.
//
// A membership links an identity-provider account to an organization.
// Records are never deleted. Removal transitions the record to inactive
// so the audit trail survives; a reinvited account gets a fresh record.
package member

import (
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// Role is the permission level of a member inside its organization.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Status is the lifecycle state of a membership.
//
// Transitions: pending → active (invitation accepted),
// pending → inactive (invitation revoked),
// active → inactive (member removed). Nothing leaves inactive.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusInactive
	case StatusActive:
		return next == StatusInactive
	default:
		return false
	}
}

// Membership is one account's (or invited email's) relationship to an
// organization. Pending invitations for unknown identities carry only
// the email; AccountID is filled in at acceptance.
type Membership struct {
	types.Entity
	ID             id.MembershipID   `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	AccountID      id.AccountID      `json:"account_id,omitzero"`
	Email          string            `json:"email"`
	Role           Role              `json:"role"`
	Status         Status            `json:"status"`
	InvitedBy      id.AccountID      `json:"invited_by,omitzero"`
	ActivatedAt    *time.Time        `json:"activated_at,omitempty"`
	DeactivatedAt  *time.Time        `json:"deactivated_at,omitempty"`
}

// IsActive reports whether the membership currently occupies a seat.
func (m *Membership) IsActive() bool {
	return m.Status == StatusActive
}

// IsAdmin reports whether the member holds the admin role.
func (m *Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}
