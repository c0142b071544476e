// Package roster provides a seat-license and membership consistency engine
// for Go applications.
//
// Roster is designed as a library, not a service. Import it directly into
// your Go application and wire it between your identity provider and your
// payment provider. It provides:
//
//   - A seat ledger with race-safe capacity accounting
//   - A membership lifecycle state machine (pending, active, inactive)
//   - Renewal and proration pricing with integer-only arithmetic
//   - Automatic trial organization provisioning on first login
//   - Idempotent reconciliation of signed billing webhooks
//   - Dead-lettering for events that cannot be applied
//
// # Quick Start
//
// Create a roster instance with your preferred store:
//
//	import (
//	    "github.com/xraph/roster"
//	    "github.com/xraph/roster/store/memory"
//	)
//
//	// Initialize store (memory here; store/postgres, store/sqlite and
//	// store/mongo wrap a grove.DB for production)
//	store := memory.New()
//
//	// Create roster
//	r := roster.New(store,
//	    roster.WithWebhookSecret(secret),
//	    roster.WithBillingProvider(provider),
//	)
//
//	// Start the roster (begins background workers)
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Stop()
//
// # Core Concepts
//
// A first login provisions a trial organization with the caller as its
// owner and admin:
//
//	o, err := r.OnFirstLogin(ctx, account)
//
// Admins invite members; known identities take a seat immediately,
// unknown emails wait as pending invitations:
//
//	m, err := r.InviteMember(ctx, o.ID, adminID, "dev@example.com", member.RoleMember)
//
// Purchases go through the payment provider and come back as signed
// webhook events; the local license only moves when the confirmation
// event is applied:
//
//	result, err := r.Purchase(ctx, o.ID, adminID, license.TierStandard, 5)
//	// later, from your webhook handler:
//	err = r.HandleWebhook(ctx, body, signatureHeader)
//
// # Consistency
//
// The seat invariant (0 <= used <= total) holds at every observable
// moment. Every seat mutation is a single conditional statement in the
// store; there are no read-modify-write windows. Billing events are
// deduplicated permanently by provider event ID, so webhook redelivery
// is always safe.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	org_01h2xcejqtf2nbrexx3vqjhp41   // Organization ID
//	mbr_01h2xcejqtf2nbrexx3vqjhp41   // Membership ID
//	lic_01h455vb4pex5vsknk084sn02q   // License ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package roster
