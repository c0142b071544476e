package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/types"
)

// requireAdmin resolves the actor's active membership and verifies the
// admin role.
func (r *Roster) requireAdmin(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID) (*member.Membership, error) {
	actor, err := r.store.GetActiveMembership(ctx, orgID, actorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAdminRequired
		}
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	return actor, nil
}

// InviteMember invites an email address into an organization. Only
// admins may invite.
//
// When the identity provider knows the address, the seat is reserved
// and the membership activates immediately. Unknown addresses get a
// pending invitation that occupies no seat until accepted.
func (r *Roster) InviteMember(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID, email string, role member.Role) (*member.Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ValidationError{Field: "email", Message: "required"}
	}
	if !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role"}
	}

	if _, err := r.requireAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	account, lookupErr := r.lookupIdentity(ctx, email)
	if lookupErr != nil {
		return nil, lookupErr
	}

	now := time.Now().UTC()
	m := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		InvitedBy:      actorID,
	}

	if account == nil {
		// Unknown identity: park a pending invitation, no seat held.
		m.Status = member.StatusPending
		if err := r.store.CreateMembership(ctx, m); err != nil {
			return nil, err
		}

		r.logger.Info("invitation issued",
			"org_id", orgID,
			"email", email,
			"role", role,
		)
		r.plugins.EmitMemberInvited(ctx, m)
		return m, nil
	}

	if err := r.store.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}

	// Seat first, membership second. The conditional increment is the
	// arbiter when two invites race for the last seat.
	if err := r.store.IncrementUsedSeats(ctx, lic.ID); err != nil {
		if IsCapacity(err) {
			r.plugins.EmitSeatLimitExceeded(ctx, orgID.String(), lic.TotalSeats, lic.UsedSeats)
		}
		return nil, err
	}

	m.AccountID = account.ID
	m.Status = member.StatusActive
	m.ActivatedAt = &now

	if err := r.store.CreateMembership(ctx, m); err != nil {
		// Release the reservation; the owner seat keeps the floor at 1.
		if relErr := r.store.DecrementUsedSeats(ctx, lic.ID, 1); relErr != nil {
			r.logger.Error("seat release after membership conflict failed",
				"org_id", orgID,
				"license_id", lic.ID,
				"error", relErr,
			)
		}
		return nil, err
	}

	r.logger.Info("member added",
		"org_id", orgID,
		"account_id", account.ID,
		"role", role,
	)
	r.plugins.EmitMemberInvited(ctx, m)
	return m, nil
}

// AcceptInvitation converts a pending invitation into an active
// membership, reserving the seat at acceptance time.
func (r *Roster) AcceptInvitation(ctx context.Context, orgID id.OrganizationID, accountID id.AccountID, email string) (*member.Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	m, err := r.store.GetPendingMembershipByEmail(ctx, orgID, email)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.GetActiveMembership(ctx, orgID, accountID); err == nil {
		return nil, ErrAlreadyMember
	} else if !IsNotFound(err) {
		return nil, err
	}

	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := r.store.IncrementUsedSeats(ctx, lic.ID); err != nil {
		if IsCapacity(err) {
			r.plugins.EmitSeatLimitExceeded(ctx, orgID.String(), lic.TotalSeats, lic.UsedSeats)
		}
		return nil, err
	}

	// Bind the account while the membership is still pending, then
	// activate. The reserved seat is released if either write loses.
	if err := r.store.BindMembershipAccount(ctx, m.ID, accountID); err != nil {
		if relErr := r.store.DecrementUsedSeats(ctx, lic.ID, 1); relErr != nil {
			r.logger.Error("seat release after bind failure failed",
				"org_id", orgID,
				"license_id", lic.ID,
				"error", relErr,
			)
		}
		return nil, err
	}

	if err := r.store.TransitionMembership(ctx, m.ID, member.StatusPending, member.StatusActive); err != nil {
		// Someone else accepted or revoked concurrently.
		if relErr := r.store.DecrementUsedSeats(ctx, lic.ID, 1); relErr != nil {
			r.logger.Error("seat release after transition conflict failed",
				"org_id", orgID,
				"license_id", lic.ID,
				"error", relErr,
			)
		}
		return nil, err
	}

	accepted, err := r.store.GetMembership(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("invitation accepted",
		"org_id", orgID,
		"account_id", accountID,
	)
	r.plugins.EmitMemberAccepted(ctx, accepted)
	return accepted, nil
}

// RemoveMember deactivates a membership. Pending invitations are
// revoked without touching the seat count; active members release
// their seat. The organization owner can never be removed.
func (r *Roster) RemoveMember(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID, memberID id.MembershipID) error {
	if _, err := r.requireAdmin(ctx, orgID, actorID); err != nil {
		return err
	}

	target, err := r.store.GetMembership(ctx, memberID)
	if err != nil {
		return err
	}
	if target.OrganizationID != orgID {
		return ErrMembershipNotFound
	}

	o, err := r.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if !target.AccountID.IsNil() && target.AccountID == o.OwnerAccountID {
		return ErrCannotRemoveOwner
	}

	switch target.Status {
	case member.StatusPending:
		if err := r.store.TransitionMembership(ctx, memberID, member.StatusPending, member.StatusInactive); err != nil {
			return err
		}
	case member.StatusActive:
		if err := r.store.TransitionMembership(ctx, memberID, member.StatusActive, member.StatusInactive); err != nil {
			return err
		}

		lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if err := r.store.DecrementUsedSeats(ctx, lic.ID, 1); err != nil {
			return err
		}
	default:
		return ErrMembershipInactive
	}

	r.logger.Info("member removed",
		"org_id", orgID,
		"membership_id", memberID,
		"was", target.Status,
	)
	r.plugins.EmitMemberRemoved(ctx, target)
	return nil
}

// Members lists an organization's memberships.
func (r *Roster) Members(ctx context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error) {
	return r.store.ListMemberships(ctx, orgID, opts)
}

// lookupIdentity asks the identity provider for an account, bounded by
// the provider timeout. (nil, nil) means the email is unknown and the
// invitation should be parked as pending.
func (r *Roster) lookupIdentity(ctx context.Context, email string) (*identity.Account, error) {
	if r.identity == nil {
		return nil, nil //nolint:nilnil // no provider configured: treat every email as unknown
	}

	lookupCtx, cancel := r.providerContext(ctx)
	defer cancel()

	account, err := r.identity.LookupByEmail(lookupCtx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownEmail) {
			return nil, nil //nolint:nilnil // unknown email is a normal outcome
		}
		if lookupCtx.Err() != nil {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}
	return account, nil
}
