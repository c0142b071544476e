package roster_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/renewal"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/store/memory"
	"github.com/xraph/roster/types"
)

var testSecret = []byte("whsec_test")

// fakeProvider is an in-memory billing.Provider that records calls.
type fakeProvider struct {
	mu            sync.Mutex
	subscriptions int
	seatUpdates   int
	fail          bool
}

func (p *fakeProvider) CreateSubscription(_ context.Context, req billing.SubscriptionRequest) (*billing.SubscriptionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("provider down")
	}
	p.subscriptions++
	return &billing.SubscriptionResult{
		ProviderSubRef: fmt.Sprintf("sub_fake_%d", p.subscriptions),
		CheckoutURL:    "https://checkout.example/" + req.OrganizationID,
	}, nil
}

func (p *fakeProvider) UpdateSeatCount(_ context.Context, _ string, _ int, _ types.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("provider down")
	}
	p.seatUpdates++
	return nil
}

func (p *fakeProvider) PreviewPrice(_ context.Context, req billing.SubscriptionRequest) (types.Money, error) {
	return req.Amount, nil
}

// directory is an identity.Provider over a fixed email set.
type directory map[string]*identity.Account

func (d directory) LookupByEmail(_ context.Context, email string) (*identity.Account, error) {
	a, ok := d[email]
	if !ok {
		return nil, identity.ErrUnknownEmail
	}
	return a, nil
}

// flakyBindStore fails the first account binds to exercise the
// acceptance compensation path.
type flakyBindStore struct {
	store.Store
	mu    sync.Mutex
	fails int
}

func (s *flakyBindStore) BindMembershipAccount(ctx context.Context, memberID id.MembershipID, accountID id.AccountID) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("store hiccup")
	}
	s.mu.Unlock()
	return s.Store.BindMembershipAccount(ctx, memberID, accountID)
}

func knownAccount(email string) *identity.Account {
	return &identity.Account{
		Entity: types.NewEntity(),
		ID:     id.NewAccountID(),
		Email:  email,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoster(t *testing.T, opts ...roster.Option) *roster.Roster {
	t.Helper()
	base := []roster.Option{
		roster.WithLogger(quietLogger()),
		roster.WithWebhookSecret(testSecret),
	}
	return roster.New(memory.New(), append(base, opts...)...)
}

// provisionOwner runs the first-login flow and returns the owner account
// and organization.
func provisionOwner(t *testing.T, r *roster.Roster, email string) (*identity.Account, id.OrganizationID) {
	t.Helper()
	owner := knownAccount(email)
	o, err := r.OnFirstLogin(context.Background(), owner)
	if err != nil {
		t.Fatalf("OnFirstLogin: %v", err)
	}
	return owner, o.ID
}

func signedEvent(t *testing.T, ev billing.Event) (body []byte, signature string) {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body, billing.Sign(testSecret, body)
}

func TestOnFirstLoginIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t, roster.WithTrialConfig(14*24*time.Hour, 5))

	owner := knownAccount("founder@example.com")
	first, err := r.OnFirstLogin(ctx, owner)
	if err != nil {
		t.Fatalf("OnFirstLogin: %v", err)
	}
	if !first.IsTrial {
		t.Error("expected trial organization")
	}
	if first.TrialExpiresAt == nil {
		t.Fatal("expected trial expiry to be set")
	}

	again, err := r.OnFirstLogin(ctx, owner)
	if err != nil {
		t.Fatalf("repeat OnFirstLogin: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("repeat login created a new organization: %s vs %s", again.ID, first.ID)
	}

	lic, err := r.License(ctx, first.ID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.Tier != license.TierTrial {
		t.Errorf("Tier: got %s, want %s", lic.Tier, license.TierTrial)
	}
	if lic.TotalSeats != 5 || lic.UsedSeats != 1 {
		t.Errorf("seats: got %d/%d, want 1/5", lic.UsedSeats, lic.TotalSeats)
	}
}

func TestOnFirstLoginRejectsInvalidAccount(t *testing.T) {
	r := newTestRoster(t)

	if _, err := r.OnFirstLogin(context.Background(), nil); !errors.Is(err, roster.ErrInvalidInput) {
		t.Errorf("nil account: got %v, want ErrInvalidInput", err)
	}
	if _, err := r.OnFirstLogin(context.Background(), &identity.Account{Email: "x@example.com"}); !errors.Is(err, roster.ErrInvalidInput) {
		t.Errorf("nil account ID: got %v, want ErrInvalidInput", err)
	}
}

func TestInviteMemberConcurrentSeatRace(t *testing.T) {
	ctx := context.Background()

	// 3 seats, owner holds one. Two invites may win.
	dir := directory{}
	for i := range 8 {
		email := fmt.Sprintf("user%d@example.com", i)
		dir[email] = knownAccount(email)
	}

	r := newTestRoster(t,
		roster.WithTrialConfig(14*24*time.Hour, 3),
		roster.WithIdentityProvider(dir),
	)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, full int

	for i := range 8 {
		email := fmt.Sprintf("user%d@example.com", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.InviteMember(ctx, orgID, owner.ID, email, member.RoleMember)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, roster.ErrSeatLimitExceeded):
				full++
			default:
				t.Errorf("InviteMember(%s): unexpected error %v", email, err)
			}
		}()
	}
	wg.Wait()

	if wins != 2 || full != 6 {
		t.Errorf("wins/full: got %d/%d, want 2/6", wins, full)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != lic.TotalSeats {
		t.Errorf("UsedSeats: got %d, want %d", lic.UsedSeats, lic.TotalSeats)
	}
}

func TestInviteMemberRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	dir := directory{"member@example.com": knownAccount("member@example.com")}
	r := newTestRoster(t, roster.WithIdentityProvider(dir))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	m, err := r.InviteMember(ctx, orgID, owner.ID, "member@example.com", member.RoleMember)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	// A plain member cannot invite.
	_, err = r.InviteMember(ctx, orgID, m.AccountID, "other@example.com", member.RoleMember)
	if !errors.Is(err, roster.ErrAdminRequired) {
		t.Errorf("non-admin invite: got %v, want ErrAdminRequired", err)
	}

	// Neither can a stranger.
	_, err = r.InviteMember(ctx, orgID, id.NewAccountID(), "other@example.com", member.RoleMember)
	if !errors.Is(err, roster.ErrAdminRequired) {
		t.Errorf("stranger invite: got %v, want ErrAdminRequired", err)
	}
}

func TestInviteUnknownEmailPendsWithoutSeat(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t, roster.WithIdentityProvider(directory{}))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	m, err := r.InviteMember(ctx, orgID, owner.ID, "Newcomer@Example.com", member.RoleMember)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if m.Status != member.StatusPending {
		t.Errorf("Status: got %s, want %s", m.Status, member.StatusPending)
	}
	if m.Email != "newcomer@example.com" {
		t.Errorf("Email not normalized: got %q", m.Email)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != 1 {
		t.Errorf("pending invite held a seat: used = %d, want 1", lic.UsedSeats)
	}

	// A second invitation to the same address conflicts.
	_, err = r.InviteMember(ctx, orgID, owner.ID, "newcomer@example.com", member.RoleMember)
	if !errors.Is(err, roster.ErrInvitationPending) {
		t.Errorf("duplicate invite: got %v, want ErrInvitationPending", err)
	}
}

func TestAcceptInvitationReservesSeat(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t, roster.WithIdentityProvider(directory{}))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	if _, err := r.InviteMember(ctx, orgID, owner.ID, "guest@example.com", member.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	guest := id.NewAccountID()
	accepted, err := r.AcceptInvitation(ctx, orgID, guest, "guest@example.com")
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if accepted.Status != member.StatusActive {
		t.Errorf("Status: got %s, want %s", accepted.Status, member.StatusActive)
	}
	if accepted.AccountID != guest {
		t.Errorf("AccountID: got %s, want %s", accepted.AccountID, guest)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != 2 {
		t.Errorf("UsedSeats: got %d, want 2", lic.UsedSeats)
	}

	// The invitation is consumed.
	if _, err := r.AcceptInvitation(ctx, orgID, id.NewAccountID(), "guest@example.com"); !roster.IsNotFound(err) {
		t.Errorf("second accept: got %v, want not-found", err)
	}
}

func TestAcceptInvitationBindFailureReleasesSeat(t *testing.T) {
	ctx := context.Background()
	s := &flakyBindStore{Store: memory.New(), fails: 1}
	r := roster.New(s,
		roster.WithLogger(quietLogger()),
		roster.WithWebhookSecret(testSecret),
		roster.WithIdentityProvider(directory{}),
	)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	if _, err := r.InviteMember(ctx, orgID, owner.ID, "guest@example.com", member.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	guest := id.NewAccountID()
	if _, err := r.AcceptInvitation(ctx, orgID, guest, "guest@example.com"); err == nil {
		t.Fatal("expected accept to fail while the bind fails")
	}

	// The reserved seat is released and the invitation stays pending.
	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != 1 {
		t.Errorf("UsedSeats after failed accept: got %d, want 1", lic.UsedSeats)
	}

	active, err := r.Members(ctx, orgID, member.ListOpts{Status: member.StatusActive})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(active) != 1 || active[0].AccountID != owner.ID {
		t.Errorf("active members after failed accept: got %d, want only the owner", len(active))
	}

	// Once the store recovers, the same invitation accepts cleanly.
	accepted, err := r.AcceptInvitation(ctx, orgID, guest, "guest@example.com")
	if err != nil {
		t.Fatalf("retry AcceptInvitation: %v", err)
	}
	if accepted.Status != member.StatusActive {
		t.Errorf("Status: got %s, want %s", accepted.Status, member.StatusActive)
	}
	if accepted.AccountID != guest {
		t.Errorf("AccountID: got %s, want %s", accepted.AccountID, guest)
	}

	lic, err = r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != 2 {
		t.Errorf("UsedSeats after retry: got %d, want 2", lic.UsedSeats)
	}
}

func TestRemoveMemberReleasesSeat(t *testing.T) {
	ctx := context.Background()
	dir := directory{"member@example.com": knownAccount("member@example.com")}
	r := newTestRoster(t, roster.WithIdentityProvider(dir))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	m, err := r.InviteMember(ctx, orgID, owner.ID, "member@example.com", member.RoleMember)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	if err := r.RemoveMember(ctx, orgID, owner.ID, m.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.UsedSeats != 1 {
		t.Errorf("UsedSeats after removal: got %d, want 1", lic.UsedSeats)
	}

	// Removing an already inactive membership fails cleanly.
	if err := r.RemoveMember(ctx, orgID, owner.ID, m.ID); !errors.Is(err, roster.ErrMembershipInactive) {
		t.Errorf("double removal: got %v, want ErrMembershipInactive", err)
	}
}

func TestRemoveMemberProtectsOwner(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	members, err := r.Members(ctx, orgID, member.ListOpts{})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("memberships: got %d, want 1", len(members))
	}

	err = r.RemoveMember(ctx, orgID, owner.ID, members[0].ID)
	if !errors.Is(err, roster.ErrCannotRemoveOwner) {
		t.Errorf("owner removal: got %v, want ErrCannotRemoveOwner", err)
	}
}

func TestHandleWebhookPurchaseConvertsTrial(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t)
	_, orgID := provisionOwner(t, r, "owner@example.com")

	expires := time.Now().UTC().Add(365 * 24 * time.Hour)
	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_1",
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Purchase: &billing.PurchasePayload{
			Tier:           license.TierStandard,
			Seats:          10,
			AmountCents:    200000,
			Currency:       "usd",
			ProviderSubRef: "sub_1",
			ExpiresAt:      expires,
		},
	})

	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	o, err := r.Organization(ctx, orgID)
	if err != nil {
		t.Fatalf("Organization: %v", err)
	}
	if o.IsTrial {
		t.Error("organization still marked trial after purchase")
	}
	if o.TrialExpiresAt != nil {
		t.Error("trial expiry not cleared after purchase")
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.Tier != license.TierStandard {
		t.Errorf("Tier: got %s, want %s", lic.Tier, license.TierStandard)
	}
	if lic.TotalSeats != 10 || lic.UsedSeats != 1 {
		t.Errorf("seats: got %d/%d, want 1/10", lic.UsedSeats, lic.TotalSeats)
	}
	if !lic.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt: got %v, want %v", lic.ExpiresAt, expires)
	}

	history, err := r.RenewalHistory(ctx, orgID, renewal.ListOpts{})
	if err != nil {
		t.Fatalf("RenewalHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("renewal records: got %d, want 1", len(history))
	}
	if history[0].Kind != renewal.KindNewPurchase {
		t.Errorf("Kind: got %s, want %s", history[0].Kind, renewal.KindNewPurchase)
	}
	if history[0].EventID != "evt_1" {
		t.Errorf("EventID: got %s, want evt_1", history[0].EventID)
	}
}

func TestHandleWebhookReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t)
	_, orgID := provisionOwner(t, r, "owner@example.com")

	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_replay",
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Purchase: &billing.PurchasePayload{
			Tier:           license.TierStandard,
			Seats:          6,
			AmountCents:    120000,
			Currency:       "usd",
			ProviderSubRef: "sub_replay",
			ExpiresAt:      time.Now().UTC().Add(365 * 24 * time.Hour),
		},
	})

	for i := range 3 {
		if err := r.HandleWebhook(ctx, body, sig); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	history, err := r.RenewalHistory(ctx, orgID, renewal.ListOpts{})
	if err != nil {
		t.Fatalf("RenewalHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("renewal records after replays: got %d, want 1", len(history))
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t)
	_, orgID := provisionOwner(t, r, "owner@example.com")

	body, _ := signedEvent(t, billing.Event{
		ID:             "evt_forged",
		Kind:           billing.KindSeatsUpdated,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Seats:          &billing.SeatsPayload{TotalSeats: 99},
	})

	err := r.HandleWebhook(ctx, body, billing.Sign([]byte("wrong secret"), body))
	if !errors.Is(err, roster.ErrSignatureInvalid) {
		t.Errorf("forged signature: got %v, want ErrSignatureInvalid", err)
	}

	// The forged event must not have been applied.
	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.TotalSeats == 99 {
		t.Error("forged event mutated the license")
	}
}

func TestSeatsUpdatedGrowsTotal(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster(t, roster.WithTrialConfig(14*24*time.Hour, 5))
	_, orgID := provisionOwner(t, r, "owner@example.com")

	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_seats_up",
		Kind:           billing.KindSeatsUpdated,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Seats:          &billing.SeatsPayload{TotalSeats: 12},
	})
	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.TotalSeats != 12 {
		t.Errorf("TotalSeats: got %d, want 12", lic.TotalSeats)
	}
}

func TestSeatsUpdatedBelowUsedDeadLetters(t *testing.T) {
	ctx := context.Background()
	dir := directory{
		"a@example.com": knownAccount("a@example.com"),
		"b@example.com": knownAccount("b@example.com"),
	}
	r := newTestRoster(t,
		roster.WithTrialConfig(14*24*time.Hour, 5),
		roster.WithIdentityProvider(dir),
		roster.WithMaxEventRetries(1),
	)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := r.InviteMember(ctx, orgID, owner.ID, email, member.RoleMember); err != nil {
			t.Fatalf("InviteMember(%s): %v", email, err)
		}
	}

	// Provider reports 2 seats while 3 are in use. Never clamped; the
	// event parks for an operator.
	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_seats_down",
		Kind:           billing.KindSeatsUpdated,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Seats:          &billing.SeatsPayload{TotalSeats: 2},
	})
	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.TotalSeats != 5 || lic.UsedSeats != 3 {
		t.Errorf("seats mutated: got %d/%d, want 3/5", lic.UsedSeats, lic.TotalSeats)
	}

	parked, err := r.DeadLetters(ctx, billing.DeadLetterListOpts{OrganizationID: orgID})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(parked) != 1 {
		t.Fatalf("dead letters: got %d, want 1", len(parked))
	}
	if parked[0].EventID != "evt_seats_down" {
		t.Errorf("EventID: got %s, want evt_seats_down", parked[0].EventID)
	}

	// Once seats free up, the preserved body replays successfully.
	members, err := r.Members(ctx, orgID, member.ListOpts{Status: member.StatusActive})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	for _, m := range members {
		if m.AccountID == owner.ID {
			continue
		}
		if err := r.RemoveMember(ctx, orgID, owner.ID, m.ID); err != nil {
			t.Fatalf("RemoveMember: %v", err)
		}
	}
	if err := r.ReplayDeadLetter(ctx, parked[0]); err != nil {
		t.Fatalf("ReplayDeadLetter: %v", err)
	}

	lic, err = r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.TotalSeats != 2 {
		t.Errorf("TotalSeats after replay: got %d, want 2", lic.TotalSeats)
	}

	// The replay resolved the letter.
	parked, err = r.DeadLetters(ctx, billing.DeadLetterListOpts{OrganizationID: orgID})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(parked) != 0 {
		t.Errorf("dead letters after replay: got %d, want 0", len(parked))
	}
}

func TestReplayDeadLetterAppliesOnce(t *testing.T) {
	ctx := context.Background()
	dir := directory{
		"a@example.com": knownAccount("a@example.com"),
		"b@example.com": knownAccount("b@example.com"),
	}
	r := newTestRoster(t,
		roster.WithTrialConfig(14*24*time.Hour, 5),
		roster.WithIdentityProvider(dir),
		roster.WithMaxEventRetries(1),
	)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := r.InviteMember(ctx, orgID, owner.ID, email, member.RoleMember); err != nil {
			t.Fatalf("InviteMember(%s): %v", email, err)
		}
	}

	// A confirmation for fewer seats than are in use parks.
	now := time.Now().UTC()
	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_purchase_small",
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     now,
		Purchase: &billing.PurchasePayload{
			Tier:        license.TierStandard,
			Seats:       2,
			AmountCents: 40000,
			Currency:    "usd",
			ExpiresAt:   now.Add(365 * 24 * time.Hour),
		},
	})
	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	parked, err := r.DeadLetters(ctx, billing.DeadLetterListOpts{OrganizationID: orgID})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(parked) != 1 {
		t.Fatalf("dead letters: got %d, want 1", len(parked))
	}

	// Free a seat so the preserved body can apply.
	active, err := r.Members(ctx, orgID, member.ListOpts{Status: member.StatusActive})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	for _, m := range active {
		if m.AccountID == owner.ID {
			continue
		}
		if err := r.RemoveMember(ctx, orgID, owner.ID, m.ID); err != nil {
			t.Fatalf("RemoveMember: %v", err)
		}
		break
	}

	if err := r.ReplayDeadLetter(ctx, parked[0]); err != nil {
		t.Fatalf("ReplayDeadLetter: %v", err)
	}

	history, err := r.RenewalHistory(ctx, orgID, renewal.ListOpts{})
	if err != nil {
		t.Fatalf("RenewalHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("renewal records after replay: got %d, want 1", len(history))
	}

	// The letter was resolved with the replay; a second replay of the
	// same handle finds nothing and applies nothing.
	if err := r.ReplayDeadLetter(ctx, parked[0]); !roster.IsNotFound(err) {
		t.Errorf("second replay: got %v, want not-found", err)
	}

	history, err = r.RenewalHistory(ctx, orgID, renewal.ListOpts{})
	if err != nil {
		t.Fatalf("RenewalHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("renewal records after second replay: got %d, want 1", len(history))
	}
}

func TestPurchaseInitiatesCheckout(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRoster(t, roster.WithBillingProvider(provider))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	result, err := r.Purchase(ctx, orgID, owner.ID, license.TierStandard, 10)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if result.ProviderSubRef == "" || result.CheckoutURL == "" {
		t.Errorf("incomplete result: %+v", result)
	}

	// Checkout alone never mutates the license.
	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.Tier != license.TierTrial {
		t.Errorf("Tier mutated before confirmation: got %s", lic.Tier)
	}
}

func TestPurchaseValidation(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRoster(t, roster.WithBillingProvider(provider))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	tests := []struct {
		name  string
		tier  license.Tier
		seats int
		want  error
	}{
		{"zero seats", license.TierStandard, 0, roster.ErrInvalidSeatCount},
		{"negative seats", license.TierStandard, -3, roster.ErrInvalidSeatCount},
		{"trial tier", license.TierTrial, 5, roster.ErrUnknownLicenseTier},
		{"unknown tier", license.Tier("platinum"), 5, roster.ErrUnknownLicenseTier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Purchase(ctx, orgID, owner.ID, tt.tier, tt.seats)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddSeatsChargesProration(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRoster(t, roster.WithBillingProvider(provider))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	// Convert off trial first; seat additions need a provider subscription.
	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_convert",
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Purchase: &billing.PurchasePayload{
			Tier:           license.TierStandard,
			Seats:          5,
			AmountCents:    100000,
			Currency:       "usd",
			ProviderSubRef: "sub_addseats",
			ExpiresAt:      time.Now().UTC().Add(365 * 24 * time.Hour),
		},
	})
	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	quote, err := r.AddSeats(ctx, orgID, owner.ID, 3)
	if err != nil {
		t.Fatalf("AddSeats: %v", err)
	}
	if quote.Kind != renewal.KindProrated {
		t.Errorf("Kind: got %s, want %s", quote.Kind, renewal.KindProrated)
	}
	if quote.Amount.Amount <= 0 {
		t.Errorf("proration amount: got %d, want > 0", quote.Amount.Amount)
	}
	if provider.seatUpdates != 1 {
		t.Errorf("provider seat updates: got %d, want 1", provider.seatUpdates)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if lic.TotalSeats != 8 {
		t.Errorf("TotalSeats: got %d, want 8", lic.TotalSeats)
	}

	history, err := r.RenewalHistory(ctx, orgID, renewal.ListOpts{Kind: renewal.KindProrated})
	if err != nil {
		t.Fatalf("RenewalHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("prorated records: got %d, want 1", len(history))
	}
}

func TestRenewExtendsLicense(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRoster(t, roster.WithBillingProvider(provider))
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	// Convert with an expiry inside the renewal window.
	oldExpiry := time.Now().UTC().Add(10 * 24 * time.Hour)
	body, sig := signedEvent(t, billing.Event{
		ID:             "evt_renew_setup",
		Kind:           billing.KindPurchaseConfirmed,
		OrganizationID: orgID,
		OccurredAt:     time.Now().UTC(),
		Purchase: &billing.PurchasePayload{
			Tier:           license.TierStandard,
			Seats:          5,
			AmountCents:    100000,
			Currency:       "usd",
			ProviderSubRef: "sub_renew",
			ExpiresAt:      oldExpiry,
		},
	})
	if err := r.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	preview, err := r.PreviewRenewal(ctx, orgID)
	if err != nil {
		t.Fatalf("PreviewRenewal: %v", err)
	}
	if preview.Kind != renewal.KindStandard {
		t.Errorf("preview Kind: got %s, want %s", preview.Kind, renewal.KindStandard)
	}

	quote, err := r.Renew(ctx, orgID, owner.ID)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if quote.Kind != renewal.KindStandard {
		t.Errorf("Kind: got %s, want %s", quote.Kind, renewal.KindStandard)
	}
	wantExpiry := oldExpiry.Add(renewal.Term)
	if !quote.NewExpiry.Equal(wantExpiry) {
		t.Errorf("NewExpiry: got %v, want %v", quote.NewExpiry, wantExpiry)
	}

	lic, err := r.License(ctx, orgID)
	if err != nil {
		t.Fatalf("License: %v", err)
	}
	if !lic.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt: got %v, want %v", lic.ExpiresAt, wantExpiry)
	}
	if lic.LastRenewedAt == nil {
		t.Error("LastRenewedAt not set")
	}
}

func TestRenewWithoutProvider(t *testing.T) {
	r := newTestRoster(t)
	owner, orgID := provisionOwner(t, r, "owner@example.com")

	_, err := r.Renew(context.Background(), orgID, owner.ID)
	if !errors.Is(err, roster.ErrProviderNotConfigured) {
		t.Errorf("got %v, want ErrProviderNotConfigured", err)
	}
}

func TestLicenseStatusWarnsOncePerDay(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var warnings int
	counter := &warningCounter{mu: &mu, count: &warnings}

	r := newTestRoster(t,
		roster.WithTrialConfig(5*24*time.Hour, 5),
		roster.WithPlugin(counter),
	)
	_, orgID := provisionOwner(t, r, "owner@example.com")

	// Trial license expires in 5 days, inside the warning window.
	for range 3 {
		info, err := r.LicenseStatus(ctx, orgID)
		if err != nil {
			t.Fatalf("LicenseStatus: %v", err)
		}
		if info.Status != license.StatusExpiring {
			t.Errorf("Status: got %s, want %s", info.Status, license.StatusExpiring)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if warnings != 1 {
		t.Errorf("warnings emitted: got %d, want 1", warnings)
	}
}

// warningCounter counts expiry-warning hook invocations.
type warningCounter struct {
	mu    *sync.Mutex
	count *int
}

func (w *warningCounter) Name() string { return "warning-counter" }

func (w *warningCounter) OnExpiryWarning(_ context.Context, _ interface{}, _ interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.count++
	return nil
}

func TestCleanupExpiredTrials(t *testing.T) {
	ctx := context.Background()
	dir := directory{}
	r := newTestRoster(t,
		// Expired window so every trial is immediately stale.
		roster.WithTrialConfig(-48*time.Hour, 5),
		roster.WithCleanupMargin(time.Hour),
		roster.WithIdentityProvider(dir),
	)

	// Stale trial whose owner has a home elsewhere.
	drifter, staleOrg := provisionOwner(t, r, "drifter@example.com")
	dir["drifter@example.com"] = drifter

	// The drifter is also an active member of a second organization.
	keeper, keptOrg := provisionOwner(t, r, "keeper@example.com")
	if _, err := r.InviteMember(ctx, keptOrg, keeper.ID, "drifter@example.com", member.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	removed, err := r.CleanupExpiredTrials(ctx, 10)
	if err != nil {
		t.Fatalf("CleanupExpiredTrials: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed: got %d, want 1", removed)
	}

	if _, err := r.Organization(ctx, staleOrg); !roster.IsNotFound(err) {
		t.Errorf("stale org lookup: got %v, want not-found", err)
	}

	// The keeper's organization is just as stale, but its owner has no
	// other membership, so it survives.
	if _, err := r.Organization(ctx, keptOrg); err != nil {
		t.Errorf("kept org lookup: %v", err)
	}
}
