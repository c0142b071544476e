// Package stripe implements the billing provider on Stripe.
//
// Checkout sessions carry the organization ID and tier in metadata so
// the webhook translation layer can rebuild a typed billing event from
// the provider callback.
package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/types"
)

// Config wires the provider to a Stripe account.
type Config struct {
	// SecretKey is the Stripe API secret key.
	SecretKey string
	// WebhookSecret is the endpoint signing secret for webhook
	// verification.
	WebhookSecret string
	// PriceIDs maps each license tier to its Stripe price.
	PriceIDs map[license.Tier]string
	// SuccessURL and CancelURL are the checkout redirect targets.
	SuccessURL string
	CancelURL  string
}

// Provider calls Stripe for purchases and seat changes.
type Provider struct {
	cfg Config
}

var _ billing.Provider = (*Provider)(nil)

// New creates a Stripe-backed billing provider.
func New(cfg Config) (*Provider, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: secret key required")
	}
	if len(cfg.PriceIDs) == 0 {
		return nil, fmt.Errorf("stripe: at least one tier price required")
	}

	stripe.Key = cfg.SecretKey

	return &Provider{cfg: cfg}, nil
}

func (p *Provider) priceFor(tier license.Tier) (string, error) {
	priceID, ok := p.cfg.PriceIDs[tier]
	if !ok {
		return "", fmt.Errorf("stripe: no price configured for tier %q", tier)
	}
	return priceID, nil
}

// CreateSubscription opens a checkout session for the requested seats.
// The returned CheckoutURL is where the customer completes payment;
// confirmation arrives via webhook.
func (p *Provider) CreateSubscription(ctx context.Context, req billing.SubscriptionRequest) (*billing.SubscriptionResult, error) {
	priceID, err := p.priceFor(req.Tier)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.OrganizationID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(int64(req.Seats)),
			},
		},
	}
	params.AddMetadata("organization_id", req.OrganizationID)
	params.AddMetadata("tier", string(req.Tier))
	params.AddMetadata("seats", fmt.Sprintf("%d", req.Seats))

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	result := &billing.SubscriptionResult{CheckoutURL: sess.URL}
	if sess.Subscription != nil {
		result.ProviderSubRef = sess.Subscription.ID
	}

	return result, nil
}

// UpdateSeatCount changes the quantity on the subscription's single
// seat line item. Stripe computes and invoices the proration; the
// proration argument is informational for parity with other providers.
func (p *Provider) UpdateSeatCount(ctx context.Context, providerSubRef string, seats int, _ types.Money) error {
	sub, err := subscription.Get(providerSubRef, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("stripe: get subscription %s: %w", providerSubRef, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("stripe: subscription %s has no items", providerSubRef)
	}

	_, err = subscription.Update(providerSubRef, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(sub.Items.Data[0].ID),
				Quantity: stripe.Int64(int64(seats)),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return fmt.Errorf("stripe: update subscription %s: %w", providerSubRef, err)
	}

	return nil
}

// PreviewPrice multiplies the tier's Stripe unit price by the seat
// count. No charge is created.
func (p *Provider) PreviewPrice(ctx context.Context, req billing.SubscriptionRequest) (types.Money, error) {
	priceID, err := p.priceFor(req.Tier)
	if err != nil {
		return types.Money{}, err
	}

	pr, err := price.Get(priceID, &stripe.PriceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return types.Money{}, fmt.Errorf("stripe: get price %s: %w", priceID, err)
	}

	return types.Money{
		Amount:   pr.UnitAmount * int64(req.Seats),
		Currency: string(pr.Currency),
	}, nil
}
