package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/renewal"
	"github.com/xraph/roster/types"
)

// HandleWebhook verifies a signed webhook envelope and processes the
// event inside. Only signature failures and malformed bodies are
// errors; an event that cannot be applied is dead-lettered and the
// delivery still acknowledged, so the provider stops redelivering it.
func (r *Roster) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	ev, err := billing.VerifyAndDecode(r.webhookSecret, body, signature)
	if err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			r.logger.Warn("webhook rejected: bad signature")
			return ErrSignatureInvalid
		}
		r.logger.Warn("webhook rejected: malformed body", "error", err)
		return fmt.Errorf("%w: %v", ErrEventMalformed, err)
	}

	r.plugins.EmitWebhookReceived(ctx, "roster", body)

	return r.ProcessEvent(ctx, ev, body)
}

// ProcessEvent applies a decoded billing event exactly once.
//
// The event ID is claimed first; a redelivered ID is a no-op. The
// mutation then runs under a bounded retry for transient failures.
// Events that fail permanently, or exhaust the retry budget, go to the
// dead-letter queue with the claim left in place so a later redelivery
// cannot half-apply them again.
func (r *Roster) ProcessEvent(ctx context.Context, ev *billing.Event, body []byte) error {
	if err := r.store.MarkEventProcessed(ctx, ev.ID); err != nil {
		if errors.Is(err, ErrEventAlreadyProcessed) {
			r.logger.Debug("billing event replayed, ignoring", "event_id", ev.ID)
			return nil
		}
		return err
	}

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		err := r.applyEvent(ctx, ev)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(r.maxEventRetries),
	)
	if err != nil {
		r.deadLetter(ctx, ev, body, err.Error(), attempts)
		return nil
	}

	r.logger.Info("billing event applied",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"org_id", ev.OrganizationID,
	)
	return nil
}

func (r *Roster) applyEvent(ctx context.Context, ev *billing.Event) error {
	switch ev.Kind {
	case billing.KindPurchaseConfirmed:
		return r.applyPurchaseConfirmed(ctx, ev)
	case billing.KindSeatsUpdated:
		return r.applySeatsUpdated(ctx, ev)
	default:
		return ErrEventUnknownKind
	}
}

// applyPurchaseConfirmed provisions or renews the license named by a
// confirmed purchase and converts the organization off trial.
func (r *Roster) applyPurchaseConfirmed(ctx context.Context, ev *billing.Event) error {
	p := ev.Purchase

	o, err := r.store.GetOrganization(ctx, ev.OrganizationID)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", ev.ID, err)
	}

	lic, err := r.store.GetLicenseByOrganization(ctx, ev.OrganizationID)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", ev.ID, err)
	}

	// The provider total can never undercut seats already handed out.
	if p.Seats < lic.UsedSeats {
		return fmt.Errorf("purchase %s: confirmed seats %d below used %d: %w",
			ev.ID, p.Seats, lic.UsedSeats, ErrSeatsBelowUsed)
	}

	kind := renewal.KindNewPurchase
	if !o.IsTrial {
		kind = renewal.ClassifyRenewal(lic.ExpiresAt, ev.OccurredAt)
	}
	previousExpiry := lic.ExpiresAt

	price, err := r.perSeatPrice(p.Tier)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", ev.ID, err)
	}

	lic.Tier = p.Tier
	lic.TotalSeats = p.Seats
	lic.ExpiresAt = p.ExpiresAt
	lic.PerSeatPrice = price
	lic.ProviderSubRef = p.ProviderSubRef
	renewedAt := ev.OccurredAt
	lic.LastRenewedAt = &renewedAt
	lic.Touch()

	if err := r.store.UpdateLicense(ctx, lic); err != nil {
		return fmt.Errorf("purchase %s: %w", ev.ID, err)
	}

	if o.IsTrial {
		o.IsTrial = false
		o.TrialExpiresAt = nil
		o.Touch()
		if err := r.store.UpdateOrganization(ctx, o); err != nil {
			return fmt.Errorf("purchase %s: %w", ev.ID, err)
		}
		r.logger.Info("trial converted", "org_id", o.ID)
		r.plugins.EmitTrialConverted(ctx, o)
	}

	record := &renewal.Record{
		Entity:         types.NewEntity(),
		ID:             id.NewRenewalID(),
		OrganizationID: ev.OrganizationID,
		LicenseID:      lic.ID,
		Kind:           kind,
		Seats:          p.Seats,
		Amount:         types.Money{Amount: p.AmountCents, Currency: p.Currency},
		PreviousExpiry: previousExpiry,
		NewExpiry:      p.ExpiresAt,
		ProviderRef:    p.ProviderSubRef,
		EventID:        ev.ID,
	}
	if err := r.store.AppendRenewalRecord(ctx, record); err != nil {
		return fmt.Errorf("purchase %s: %w", ev.ID, err)
	}

	r.plugins.EmitPurchaseConfirmed(ctx, ev)
	return nil
}

// applySeatsUpdated moves the seat total to the provider's
// authoritative figure. A figure below the seats already in use is a
// seat-sum mismatch and is never clamped; the event dead-letters for a
// human to resolve.
func (r *Roster) applySeatsUpdated(ctx context.Context, ev *billing.Event) error {
	lic, err := r.store.GetLicenseByOrganization(ctx, ev.OrganizationID)
	if err != nil {
		return fmt.Errorf("seats %s: %w", ev.ID, err)
	}

	if err := r.store.SetTotalSeats(ctx, lic.ID, ev.Seats.TotalSeats); err != nil {
		return fmt.Errorf("seats %s: %w", ev.ID, err)
	}

	r.plugins.EmitSeatsReconciled(ctx, ev)
	return nil
}

// deadLetter parks an unappliable event for operator review.
func (r *Roster) deadLetter(ctx context.Context, ev *billing.Event, body []byte, reason string, attempts int) {
	dl := &billing.DeadLetter{
		Entity:         types.NewEntity(),
		ID:             id.NewDeadLetterID(),
		EventID:        ev.ID,
		Kind:           ev.Kind,
		OrganizationID: ev.OrganizationID,
		Body:           body,
		Reason:         reason,
		Attempts:       attempts,
	}

	if err := r.store.CreateDeadLetter(ctx, dl); err != nil {
		r.logger.Error("dead-letter write failed",
			"event_id", ev.ID,
			"error", err,
		)
		return
	}

	r.logger.Warn("billing event dead-lettered",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"reason", reason,
		"attempts", attempts,
	)
	r.plugins.EmitEventDeadLettered(ctx, dl)
}

// DeadLetters lists parked billing events.
func (r *Roster) DeadLetters(ctx context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error) {
	return r.store.ListDeadLetters(ctx, opts)
}

// ReplayDeadLetter re-decodes a dead letter's preserved body and tries
// to apply it again, bypassing the processed-event claim that its
// original delivery already holds.
//
// The letter itself is the replay's idempotency claim: it is deleted
// before the event is applied, so two concurrent replays cannot both
// apply, and a resolved letter cannot be replayed again. A failed
// apply restores the letter.
func (r *Roster) ReplayDeadLetter(ctx context.Context, dl *billing.DeadLetter) error {
	ev, err := billing.DecodeEvent(dl.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEventMalformed, err)
	}

	if err := r.store.DeleteDeadLetter(ctx, dl.ID); err != nil {
		return err
	}

	if err := r.applyEvent(ctx, ev); err != nil {
		if restoreErr := r.store.CreateDeadLetter(ctx, dl); restoreErr != nil {
			r.logger.Error("dead-letter restore after failed replay failed",
				"event_id", ev.ID,
				"dead_letter_id", dl.ID,
				"error", restoreErr,
			)
		}
		return err
	}

	r.logger.Info("dead letter replayed",
		"event_id", ev.ID,
		"dead_letter_id", dl.ID,
	)
	return nil
}
