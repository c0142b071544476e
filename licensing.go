package roster

import (
	"context"
	"time"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/renewal"
	"github.com/xraph/roster/types"
)

// Purchase initiates a paid subscription for an organization. The call
// only starts checkout with the billing provider; the local license is
// mutated when the purchase confirmation arrives as a billing event.
func (r *Roster) Purchase(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID, tier license.Tier, seats int) (*billing.SubscriptionResult, error) {
	if seats <= 0 {
		return nil, ErrInvalidSeatCount
	}
	if !tier.Valid() || tier == license.TierTrial {
		return nil, ErrUnknownLicenseTier
	}
	if r.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if _, err := r.requireAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}
	if _, err := r.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	price, err := r.perSeatPrice(tier)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := r.providerContext(ctx)
	defer cancel()

	result, err := r.provider.CreateSubscription(callCtx, billing.SubscriptionRequest{
		OrganizationID: orgID.String(),
		Tier:           tier,
		Seats:          seats,
		Amount:         price.Multiply(int64(seats)),
	})
	if err != nil {
		if callCtx.Err() != nil {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	r.logger.Info("purchase initiated",
		"org_id", orgID,
		"tier", tier,
		"seats", seats,
	)
	return result, nil
}

// AddSeats grows the license mid-term. The added seats are charged
// pro rata for the remaining days; the provider is told first, then the
// local total moves under the used-seats guard.
func (r *Roster) AddSeats(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID, added int) (*renewal.Quote, error) {
	if added <= 0 {
		return nil, ErrInvalidSeatCount
	}
	if r.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if _, err := r.requireAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if lic.StatusAt(time.Now().UTC()).Status == license.StatusExpired {
		return nil, ErrLicenseExpired
	}

	price, err := r.perSeatPrice(lic.Tier)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quote := renewal.QuoteSeatAddition(price, added, lic.ExpiresAt, now)
	newTotal := lic.TotalSeats + added

	callCtx, cancel := r.providerContext(ctx)
	defer cancel()

	if err := r.provider.UpdateSeatCount(callCtx, lic.ProviderSubRef, newTotal, quote.Amount); err != nil {
		if callCtx.Err() != nil {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	if err := r.store.SetTotalSeats(ctx, lic.ID, newTotal); err != nil {
		return nil, err
	}

	record := &renewal.Record{
		Entity:         types.NewEntity(),
		ID:             id.NewRenewalID(),
		OrganizationID: orgID,
		LicenseID:      lic.ID,
		Kind:           renewal.KindProrated,
		Seats:          added,
		Amount:         quote.Amount,
		PreviousExpiry: lic.ExpiresAt,
		NewExpiry:      lic.ExpiresAt,
		ProviderRef:    lic.ProviderSubRef,
	}
	if err := r.store.AppendRenewalRecord(ctx, record); err != nil {
		return nil, err
	}

	r.logger.Info("seats added",
		"org_id", orgID,
		"added", added,
		"new_total", newTotal,
		"proration", quote.Amount,
	)
	r.plugins.EmitLicenseRenewed(ctx, record)
	return &quote, nil
}

// PreviewRenewal prices a renewal without touching the provider or the
// license.
func (r *Roster) PreviewRenewal(ctx context.Context, orgID id.OrganizationID) (*renewal.Quote, error) {
	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	price, err := r.perSeatPrice(lic.Tier)
	if err != nil {
		return nil, err
	}

	quote := renewal.QuoteRenewal(price, lic.TotalSeats, lic.ExpiresAt, time.Now().UTC())
	return &quote, nil
}

// Renew charges a full-term renewal and applies it to the license.
// Where the new term starts depends on when the renewal happens:
// inside the pre-expiry window or during grace it extends the original
// expiry, otherwise it runs a year from today.
func (r *Roster) Renew(ctx context.Context, orgID id.OrganizationID, actorID id.AccountID) (*renewal.Quote, error) {
	if r.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if _, err := r.requireAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	price, err := r.perSeatPrice(lic.Tier)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quote := renewal.QuoteRenewal(price, lic.TotalSeats, lic.ExpiresAt, now)

	callCtx, cancel := r.providerContext(ctx)
	defer cancel()

	if _, err := r.provider.CreateSubscription(callCtx, billing.SubscriptionRequest{
		OrganizationID: orgID.String(),
		Tier:           lic.Tier,
		Seats:          lic.TotalSeats,
		Amount:         quote.Amount,
	}); err != nil {
		if callCtx.Err() != nil {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	if err := r.store.SetLicenseExpiry(ctx, lic.ID, quote.NewExpiry, now); err != nil {
		return nil, err
	}

	record := &renewal.Record{
		Entity:         types.NewEntity(),
		ID:             id.NewRenewalID(),
		OrganizationID: orgID,
		LicenseID:      lic.ID,
		Kind:           quote.Kind,
		Seats:          lic.TotalSeats,
		Amount:         quote.Amount,
		PreviousExpiry: lic.ExpiresAt,
		NewExpiry:      quote.NewExpiry,
		ProviderRef:    lic.ProviderSubRef,
	}
	if err := r.store.AppendRenewalRecord(ctx, record); err != nil {
		return nil, err
	}

	r.logger.Info("license renewed",
		"org_id", orgID,
		"kind", quote.Kind,
		"new_expiry", quote.NewExpiry,
	)
	r.plugins.EmitLicenseRenewed(ctx, record)
	return &quote, nil
}

// License returns an organization's license.
func (r *Roster) License(ctx context.Context, orgID id.OrganizationID) (*license.License, error) {
	return r.store.GetLicenseByOrganization(ctx, orgID)
}

// LicenseStatus derives the current license status and fires any due
// expiry warning. Warnings deduplicate per class per day, so polling
// this from a UI is safe.
func (r *Roster) LicenseStatus(ctx context.Context, orgID id.OrganizationID) (*license.StatusInfo, error) {
	lic, err := r.store.GetLicenseByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	info := lic.StatusAt(now)
	r.maybeWarn(ctx, lic, info, now)

	return &info, nil
}

// RenewalHistory lists an organization's renewal records.
func (r *Roster) RenewalHistory(ctx context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error) {
	return r.store.ListRenewalRecords(ctx, orgID, opts)
}

// maybeWarn claims the daily warning marker and emits the expiry
// warning hook when the claim wins.
func (r *Roster) maybeWarn(ctx context.Context, lic *license.License, info license.StatusInfo, now time.Time) {
	if info.Warning == "" {
		return
	}

	if err := r.store.MarkWarningSent(ctx, lic.ID, info.Warning, now); err != nil {
		// Lost the claim: already warned today.
		return
	}

	r.logger.Info("license expiry warning",
		"org_id", lic.OrganizationID,
		"class", info.Warning,
		"days_remaining", info.DaysRemaining,
	)
	r.plugins.EmitExpiryWarning(ctx, lic, info)
}

// expirySweeper periodically scans for licenses approaching expiry and
// fires their warnings, so notifications do not depend on anyone
// calling LicenseStatus.
func (r *Roster) expirySweeper(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweepExpiring(ctx)
		}
	}
}

func (r *Roster) sweepExpiring(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(31 * 24 * time.Hour)

	licenses, err := r.store.ListLicensesExpiringBefore(ctx, cutoff, 500)
	if err != nil {
		r.logger.Error("expiry sweep failed", "error", err)
		return
	}

	for _, lic := range licenses {
		r.maybeWarn(ctx, lic, lic.StatusAt(now), now)
	}

	r.logger.Debug("expiry sweep complete", "candidates", len(licenses))
}
