package billing

import (
	"context"

	"github.com/xraph/roster/license"
	"github.com/xraph/roster/types"
)

// SubscriptionRequest describes the subscription to create or price.
type SubscriptionRequest struct {
	OrganizationID string
	Tier           license.Tier
	Seats          int
	Amount         types.Money
}

// SubscriptionResult is the provider's acknowledgement of an initiated
// purchase. Confirmation arrives later as a webhook event; the local
// license is never mutated on the strength of this result alone.
type SubscriptionResult struct {
	ProviderSubRef string
	CheckoutURL    string
}

// Provider is the outbound surface to the payment provider.
// Implementations must be safe for concurrent use.
type Provider interface {
	// CreateSubscription initiates a purchase or renewal charge.
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)
	// UpdateSeatCount requests a seat-quantity change on an existing
	// subscription, charging any proration the provider computes.
	UpdateSeatCount(ctx context.Context, providerSubRef string, seats int, proration types.Money) error
	// PreviewPrice returns the provider's price for the request without
	// charging anything.
	PreviewPrice(ctx context.Context, req SubscriptionRequest) (types.Money, error)
}
