// Package renewal computes renewal and proration quotes.
//
// The calculator is pure: it takes the license state and a clock instant
// and returns a quote. Nothing here touches the store or the billing
// provider, which keeps every pricing rule testable in isolation.
package renewal

import (
	"time"

	"github.com/xraph/roster/types"
)

// Kind classifies how a renewal is priced and dated.
type Kind string

const (
	// KindStandard renews within the 30-day pre-expiry window. The new
	// term starts at the old expiry so the customer loses nothing.
	KindStandard Kind = "standard"
	// KindEarly renews with more than 30 days still remaining. The new
	// term starts today; remaining time is forfeited, not credited.
	KindEarly Kind = "early_renewal"
	// KindGrace renews up to 30 days after expiry. The new term is
	// backdated to the original expiry, so the lapsed days are paid for.
	KindGrace Kind = "grace_period"
	// KindNewPurchase applies once the grace window has passed. Priced
	// and dated like a brand new license starting today.
	KindNewPurchase Kind = "new_purchase"
	// KindProrated covers seats added mid-term, charged only for the
	// remainder of the current term.
	KindProrated Kind = "prorated"
)

const (
	termDays   = 365
	windowDays = 30
)

// Term is the length of one license term.
const Term = termDays * 24 * time.Hour

// Quote is a priced renewal proposal.
type Quote struct {
	Kind      Kind        `json:"kind"`
	Seats     int         `json:"seats"`
	Amount    types.Money `json:"amount"`
	TermStart time.Time   `json:"term_start"`
	NewExpiry time.Time   `json:"new_expiry"`
}

// ClassifyRenewal determines which renewal kind applies at the given
// instant relative to the license expiry.
func ClassifyRenewal(expiresAt, now time.Time) Kind {
	switch {
	case now.Before(expiresAt.Add(-windowDays * 24 * time.Hour)):
		return KindEarly
	case now.Before(expiresAt):
		return KindStandard
	case now.Before(expiresAt.Add(windowDays * 24 * time.Hour)):
		return KindGrace
	default:
		return KindNewPurchase
	}
}

// QuoteRenewal prices a full-term renewal of the given seat count.
// The kind, term start, and new expiry follow from where now falls
// relative to expiresAt.
func QuoteRenewal(perSeat types.Money, seats int, expiresAt, now time.Time) Quote {
	kind := ClassifyRenewal(expiresAt, now)

	var start time.Time
	switch kind {
	case KindStandard, KindGrace:
		start = expiresAt
	default:
		start = now
	}

	return Quote{
		Kind:      kind,
		Seats:     seats,
		Amount:    perSeat.Multiply(int64(seats)),
		TermStart: start,
		NewExpiry: start.Add(Term),
	}
}

// QuoteSeatAddition prices adding seats mid-term. Each added seat pays
// for the whole days remaining until expiry, out of a 365-day term,
// truncated toward zero:
//
//	amount = perSeat * remainingDays * addedSeats / 365
func QuoteSeatAddition(perSeat types.Money, addedSeats int, expiresAt, now time.Time) Quote {
	remaining := int64(expiresAt.Sub(now).Hours() / 24)
	if remaining < 0 {
		remaining = 0
	}

	return Quote{
		Kind:      KindProrated,
		Seats:     addedSeats,
		Amount:    perSeat.Multiply(int64(addedSeats)).ProrateDays(remaining, termDays),
		TermStart: now,
		NewExpiry: expiresAt,
	}
}
