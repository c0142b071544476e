package renewal

import (
	"testing"
	"time"

	"github.com/xraph/roster/types"
)

var perSeat = types.USD(20000) // $200.00/seat/year

func TestClassifyRenewal(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want Kind
	}{
		{"far before expiry", expires.Add(-120 * 24 * time.Hour), KindEarly},
		{"31 days before", expires.Add(-31 * 24 * time.Hour), KindEarly},
		{"29 days before", expires.Add(-29 * 24 * time.Hour), KindStandard},
		{"day before expiry", expires.Add(-24 * time.Hour), KindStandard},
		{"10 days after expiry", expires.Add(10 * 24 * time.Hour), KindGrace},
		{"29 days after expiry", expires.Add(29 * 24 * time.Hour), KindGrace},
		{"35 days after expiry", expires.Add(35 * 24 * time.Hour), KindNewPurchase},
		{"a year after expiry", expires.Add(365 * 24 * time.Hour), KindNewPurchase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRenewal(expires, tt.now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuoteRenewalStandard(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	now := expires.Add(-10 * 24 * time.Hour)

	q := QuoteRenewal(perSeat, 5, expires, now)

	if q.Kind != KindStandard {
		t.Errorf("Kind: got %s, want %s", q.Kind, KindStandard)
	}
	if !q.Amount.Equal(types.USD(100000)) {
		t.Errorf("Amount: got %v, want $1000.00", q.Amount)
	}
	// Term extends from the old expiry; no days lost.
	if !q.TermStart.Equal(expires) {
		t.Errorf("TermStart: got %v, want %v", q.TermStart, expires)
	}
	if !q.NewExpiry.Equal(expires.Add(Term)) {
		t.Errorf("NewExpiry: got %v, want %v", q.NewExpiry, expires.Add(Term))
	}
}

func TestQuoteRenewalEarly(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	now := expires.Add(-120 * 24 * time.Hour)

	q := QuoteRenewal(perSeat, 3, expires, now)

	if q.Kind != KindEarly {
		t.Errorf("Kind: got %s, want %s", q.Kind, KindEarly)
	}
	if !q.Amount.Equal(types.USD(60000)) {
		t.Errorf("Amount: got %v, want $600.00", q.Amount)
	}
	// Early renewal forfeits the remaining term: one year from today.
	if !q.NewExpiry.Equal(now.Add(Term)) {
		t.Errorf("NewExpiry: got %v, want %v", q.NewExpiry, now.Add(Term))
	}
}

func TestQuoteRenewalGrace(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	// Expired 10 days ago: renewal backdates to the original expiry,
	// leaving 355 days of the new term ahead.
	now := expires.Add(10 * 24 * time.Hour)

	q := QuoteRenewal(perSeat, 2, expires, now)

	if q.Kind != KindGrace {
		t.Errorf("Kind: got %s, want %s", q.Kind, KindGrace)
	}
	if !q.TermStart.Equal(expires) {
		t.Errorf("TermStart: got %v, want %v", q.TermStart, expires)
	}
	if !q.NewExpiry.Equal(expires.Add(Term)) {
		t.Errorf("NewExpiry: got %v, want %v", q.NewExpiry, expires.Add(Term))
	}
	if remaining := q.NewExpiry.Sub(now); remaining != 355*24*time.Hour {
		t.Errorf("remaining term: got %v, want 355 days", remaining)
	}
}

func TestQuoteRenewalAfterGrace(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	now := expires.Add(35 * 24 * time.Hour)

	q := QuoteRenewal(perSeat, 2, expires, now)

	if q.Kind != KindNewPurchase {
		t.Errorf("Kind: got %s, want %s", q.Kind, KindNewPurchase)
	}
	// Past grace: fresh term from today, nothing backdated.
	if !q.TermStart.Equal(now) {
		t.Errorf("TermStart: got %v, want %v", q.TermStart, now)
	}
	if !q.NewExpiry.Equal(now.Add(Term)) {
		t.Errorf("NewExpiry: got %v, want %v", q.NewExpiry, now.Add(Term))
	}
}

func TestQuoteSeatAddition(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		added     int
		remaining time.Duration
		want      types.Money
	}{
		// 20000 * 180 * 3 / 365 = 29589 cents.
		{"3 seats, 180 days left", 3, 180 * 24 * time.Hour, types.USD(29589)},
		// 20000 * 365 * 1 / 365 = full price.
		{"1 seat, full term left", 1, 365 * 24 * time.Hour, types.USD(20000)},
		// 20000 * 1 * 2 / 365 = 109 cents.
		{"2 seats, 1 day left", 2, 24 * time.Hour, types.USD(109)},
		{"1 seat, expired license", 1, -5 * 24 * time.Hour, types.USD(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expires := now.Add(tt.remaining)
			q := QuoteSeatAddition(perSeat, tt.added, expires, now)

			if q.Kind != KindProrated {
				t.Errorf("Kind: got %s, want %s", q.Kind, KindProrated)
			}
			if !q.Amount.Equal(tt.want) {
				t.Errorf("Amount: got %v, want %v", q.Amount, tt.want)
			}
			// Seat additions never move the expiry.
			if !q.NewExpiry.Equal(expires) {
				t.Errorf("NewExpiry: got %v, want %v", q.NewExpiry, expires)
			}
		})
	}
}
