package roster_test

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/store/memory"
	"github.com/xraph/roster/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		secret := []byte("whsec_demo")

		// Initialize Roster
		r := roster.New(store,
			roster.WithLogger(slog.Default()),
			roster.WithWebhookSecret(secret),
			roster.WithTrialConfig(14*24*time.Hour, 5),
		)

		// Start the engine
		ctx := context.Background()
		if err := r.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer r.Stop()

		// First login provisions a trial organization
		owner := &identity.Account{
			Entity: types.NewEntity(),
			ID:     id.NewAccountID(),
			Email:  "founder@example.com",
		}
		o, err := r.OnFirstLogin(ctx, owner)
		if err != nil {
			t.Fatal(err)
		}

		// A purchase confirmation arrives as a signed webhook
		body, _ := json.Marshal(billing.Event{
			ID:             "evt_docs_1",
			Kind:           billing.KindPurchaseConfirmed,
			OrganizationID: o.ID,
			OccurredAt:     time.Now().UTC(),
			Purchase: &billing.PurchasePayload{
				Tier:           license.TierStandard,
				Seats:          5,
				AmountCents:    100000,
				Currency:       "usd",
				ProviderSubRef: "sub_docs_1",
				ExpiresAt:      time.Now().UTC().Add(365 * 24 * time.Hour),
			},
		})
		if err := r.HandleWebhook(ctx, body, billing.Sign(secret, body)); err != nil {
			t.Fatal(err)
		}

		// Invite a teammate (no identity provider configured, so the
		// invitation parks as pending)
		m, err := r.InviteMember(ctx, o.ID, owner.ID, "dev@example.com", member.RoleMember)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("invitation %s is %s\n", m.ID, m.Status)

		// Check the license status
		info, err := r.LicenseStatus(ctx, o.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("license is %s, %d days remaining\n", info.Status, info.DaysRemaining)

		// Preview what a renewal would cost today
		quote, err := r.PreviewRenewal(ctx, o.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("renewal (%s): %s\n", quote.Kind, quote.Amount.String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(20000)  // $200.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00

		// Proration: charge for 180 of 365 remaining days
		_ = types.USD(20000).ProrateDays(180, 365) // $98.63

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
