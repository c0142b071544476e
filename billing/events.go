// Package billing defines the billing-provider boundary: the typed
// event union reconciliation consumes, the signed webhook envelope,
// the outbound provider interface, and dead-letter records.
//
// Raw provider payloads never cross this package. Everything past the
// decoder is a typed event with a known kind.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/license"
)

// Kind discriminates the billing event union.
type Kind string

const (
	// KindPurchaseConfirmed reports a completed purchase: the provider
	// has charged the customer and the license should be provisioned
	// or renewed locally.
	KindPurchaseConfirmed Kind = "purchase_confirmed"
	// KindSeatsUpdated reports the authoritative seat total after a
	// seat-count change settled on the provider side.
	KindSeatsUpdated Kind = "seats_updated"
)

// Valid reports whether the kind is part of the known union.
func (k Kind) Valid() bool {
	return k == KindPurchaseConfirmed || k == KindSeatsUpdated
}

// Event is one decoded billing event. Exactly one payload field is set,
// matching Kind.
type Event struct {
	// ID is the provider-assigned event identifier and the permanent
	// deduplication key. Replays of the same ID are no-ops.
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	OccurredAt     time.Time         `json:"occurred_at"`

	Purchase *PurchasePayload `json:"purchase,omitempty"`
	Seats    *SeatsPayload    `json:"seats,omitempty"`
}

// PurchasePayload carries the terms of a confirmed purchase.
type PurchasePayload struct {
	Tier           license.Tier `json:"tier"`
	Seats          int          `json:"seats"`
	AmountCents    int64        `json:"amount_cents"`
	Currency       string       `json:"currency"`
	ProviderSubRef string       `json:"provider_sub_ref"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

// SeatsPayload carries the provider's authoritative seat total.
type SeatsPayload struct {
	TotalSeats     int    `json:"total_seats"`
	ProviderSubRef string `json:"provider_sub_ref"`
}

// DecodeEvent parses and validates a raw event body. Unknown kinds and
// kind/payload mismatches are rejected here, at the boundary.
func DecodeEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("billing: decode event: %w", err)
	}

	if ev.ID == "" {
		return nil, fmt.Errorf("billing: event missing id")
	}
	if ev.OrganizationID.IsNil() {
		return nil, fmt.Errorf("billing: event %s missing organization_id", ev.ID)
	}

	switch ev.Kind {
	case KindPurchaseConfirmed:
		if ev.Purchase == nil {
			return nil, fmt.Errorf("billing: event %s missing purchase payload", ev.ID)
		}
		if ev.Purchase.Seats <= 0 {
			return nil, fmt.Errorf("billing: event %s has non-positive seat count", ev.ID)
		}
	case KindSeatsUpdated:
		if ev.Seats == nil {
			return nil, fmt.Errorf("billing: event %s missing seats payload", ev.ID)
		}
		if ev.Seats.TotalSeats <= 0 {
			return nil, fmt.Errorf("billing: event %s has non-positive seat total", ev.ID)
		}
	default:
		return nil, fmt.Errorf("billing: event %s has unknown kind %q", ev.ID, ev.Kind)
	}

	return &ev, nil
}
