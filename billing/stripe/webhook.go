package stripe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/renewal"
)

// TranslateWebhook verifies a Stripe webhook delivery and maps it to a
// typed billing event. Deliveries Roster does not care about translate
// to (nil, nil) so the caller can acknowledge them without processing.
func (p *Provider) TranslateWebhook(payload []byte, sigHeader string) (*billing.Event, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, p.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrBadSignature, err)
	}

	switch ev.Type {
	case "checkout.session.completed":
		return translateCheckoutCompleted(&ev)
	case "customer.subscription.updated":
		return translateSubscriptionUpdated(&ev)
	default:
		return nil, nil
	}
}

func translateCheckoutCompleted(ev *stripe.Event) (*billing.Event, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: unmarshal checkout session: %w", err)
	}

	orgID, err := id.ParseOrganizationID(sess.Metadata["organization_id"])
	if err != nil {
		return nil, fmt.Errorf("stripe: session %s: %w", sess.ID, err)
	}

	seats, err := strconv.Atoi(sess.Metadata["seats"])
	if err != nil || seats <= 0 {
		return nil, fmt.Errorf("stripe: session %s has invalid seats metadata %q", sess.ID, sess.Metadata["seats"])
	}

	occurred := time.Unix(ev.Created, 0).UTC()

	var subRef string
	if sess.Subscription != nil {
		subRef = sess.Subscription.ID
	}

	return &billing.Event{
		ID:             ev.ID,
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     occurred,
		Purchase: &billing.PurchasePayload{
			Tier:           license.Tier(sess.Metadata["tier"]),
			Seats:          seats,
			AmountCents:    sess.AmountTotal,
			Currency:       string(sess.Currency),
			ProviderSubRef: subRef,
			ExpiresAt:      occurred.Add(renewal.Term),
		},
	}, nil
}

func translateSubscriptionUpdated(ev *stripe.Event) (*billing.Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("stripe: unmarshal subscription: %w", err)
	}

	orgID, err := id.ParseOrganizationID(sub.Metadata["organization_id"])
	if err != nil {
		return nil, fmt.Errorf("stripe: subscription %s: %w", sub.ID, err)
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription %s has no items", sub.ID)
	}

	return &billing.Event{
		ID:             ev.ID,
		Kind:           billing.KindSeatsUpdated,
		OrganizationID: orgID,
		OccurredAt:     time.Unix(ev.Created, 0).UTC(),
		Seats: &billing.SeatsPayload{
			TotalSeats:     int(sub.Items.Data[0].Quantity),
			ProviderSubRef: sub.ID,
		},
	}, nil
}
