package roster

import (
	"context"
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/types"
)

// OnFirstLogin provisions a trial organization for an account that has
// none. The account record, the organization, its owner membership, and
// a trial license all come into existence together; the owner occupies
// the first seat immediately.
//
// Idempotent: a repeat call for the same account returns the existing
// organization unchanged.
func (r *Roster) OnFirstLogin(ctx context.Context, account *identity.Account) (*org.Organization, error) {
	if account == nil || account.ID.IsNil() || account.Email == "" {
		return nil, ErrInvalidInput
	}

	if err := r.store.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}

	if existing, err := r.store.GetOrganizationByOwner(ctx, account.ID); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	trialEnd := now.Add(r.trialWindow)

	o := &org.Organization{
		Entity:         types.NewEntity(),
		ID:             id.NewOrganizationID(),
		Name:           account.Email,
		OwnerAccountID: account.ID,
		IsTrial:        true,
		TrialExpiresAt: &trialEnd,
	}
	owner := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: o.ID,
		AccountID:      account.ID,
		Email:          account.Email,
		Role:           member.RoleAdmin,
		Status:         member.StatusActive,
		ActivatedAt:    &now,
	}
	l := &license.License{
		Entity:         types.NewEntity(),
		ID:             id.NewLicenseID(),
		OrganizationID: o.ID,
		Tier:           license.TierTrial,
		TotalSeats:     r.trialSeats,
		UsedSeats:      1,
		ExpiresAt:      trialEnd,
	}

	if err := r.store.CreateOrganization(ctx, o, owner, l); err != nil {
		// A concurrent first login won the race; return its organization.
		if IsConflict(err) {
			return r.store.GetOrganizationByOwner(ctx, account.ID)
		}
		return nil, err
	}

	r.logger.Info("trial organization provisioned",
		"org_id", o.ID,
		"owner", account.ID,
		"trial_expires_at", trialEnd,
	)

	r.plugins.EmitOrganizationCreated(ctx, o)
	return o, nil
}

// CleanupExpiredTrials removes trial organizations whose trial lapsed
// more than the cleanup margin ago. An organization is only removed
// when its owner holds an active membership somewhere else, so nobody
// loses their only workspace. Returns the number removed.
func (r *Roster) CleanupExpiredTrials(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-r.cleanupMargin)

	expired, err := r.store.ListExpiredTrials(ctx, cutoff, org.ListOpts{Limit: limit})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, o := range expired {
		elsewhere, err := r.store.HasActiveMembershipElsewhere(ctx, o.OwnerAccountID, o.ID)
		if err != nil {
			return removed, err
		}
		if !elsewhere {
			continue
		}

		if err := r.store.DeleteTrialOrganization(ctx, o.ID); err != nil {
			r.logger.Warn("trial cleanup failed",
				"org_id", o.ID,
				"error", err,
			)
			continue
		}

		removed++
		r.logger.Info("expired trial removed", "org_id", o.ID)
		r.plugins.EmitTrialCleaned(ctx, o.ID.String())
	}

	return removed, nil
}

// Organization returns an organization by ID.
func (r *Roster) Organization(ctx context.Context, orgID id.OrganizationID) (*org.Organization, error) {
	return r.store.GetOrganization(ctx, orgID)
}
