package member

import (
	"context"

	"github.com/xraph/roster/id"
)

type Store interface {
	// Create inserts a new membership. Uniqueness contract: at most one
	// active membership per (organization, account) and at most one
	// pending membership per (organization, email). Violations surface
	// as conflict errors, never as silent overwrites.
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, memberID id.MembershipID) (*Membership, error)
	// GetActive returns the active membership for an account in an
	// organization, if one exists.
	GetActive(ctx context.Context, orgID id.OrganizationID, accountID id.AccountID) (*Membership, error)
	// GetPendingByEmail returns the pending invitation for an email in an
	// organization, if one exists.
	GetPendingByEmail(ctx context.Context, orgID id.OrganizationID, email string) (*Membership, error)
	// HasActiveElsewhere reports whether the account holds an active
	// membership in any organization other than the one given.
	HasActiveElsewhere(ctx context.Context, accountID id.AccountID, excludeOrg id.OrganizationID) (bool, error)
	List(ctx context.Context, orgID id.OrganizationID, opts ListOpts) ([]*Membership, error)
	// Transition moves a membership from one status to another as a single
	// conditional update. Returns a conflict error when the record is no
	// longer in the expected from status.
	Transition(ctx context.Context, memberID id.MembershipID, from, to Status) error
	// BindAccount attaches an account to a pending email-only invitation.
	BindAccount(ctx context.Context, memberID id.MembershipID, accountID id.AccountID) error
}

type ListOpts struct {
	Status Status
	Role   Role
	Limit  int
	Offset int
}
