package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/types"
)

func seedLicense(t *testing.T, s *Store, total, used int) *license.License {
	t.Helper()

	l := &license.License{
		Entity:         types.NewEntity(),
		ID:             id.NewLicenseID(),
		OrganizationID: id.NewOrganizationID(),
		Tier:           license.TierStandard,
		TotalSeats:     total,
		UsedSeats:      used,
		ExpiresAt:      time.Now().Add(300 * 24 * time.Hour),
	}
	if err := s.CreateLicense(context.Background(), l); err != nil {
		t.Fatalf("CreateLicense: %v", err)
	}
	return l
}

func TestIncrementUsedSeatsConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := seedLicense(t, s, 5, 1)

	// 20 goroutines race for the 4 free seats. Exactly 4 may win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, losses int

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.IncrementUsedSeats(ctx, l.ID)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, roster.ErrSeatLimitExceeded) {
				losses++
			}
		}()
	}
	wg.Wait()

	if wins != 4 || losses != 16 {
		t.Errorf("wins/losses: got %d/%d, want 4/16", wins, losses)
	}

	got, err := s.GetLicense(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLicense: %v", err)
	}
	if got.UsedSeats != got.TotalSeats {
		t.Errorf("UsedSeats: got %d, want %d", got.UsedSeats, got.TotalSeats)
	}
}

func TestDecrementUsedSeatsFloor(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := seedLicense(t, s, 5, 2)

	if err := s.DecrementUsedSeats(ctx, l.ID, 1); err != nil {
		t.Fatalf("first decrement: %v", err)
	}
	// Owner seat: the count never drops below the floor of 1.
	err := s.DecrementUsedSeats(ctx, l.ID, 1)
	if !errors.Is(err, roster.ErrInvalidSeatCount) {
		t.Errorf("expected ErrInvalidSeatCount, got %v", err)
	}
}

func TestSetTotalSeatsBelowUsed(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := seedLicense(t, s, 5, 4)

	err := s.SetTotalSeats(ctx, l.ID, 3)
	if !errors.Is(err, roster.ErrSeatsBelowUsed) {
		t.Errorf("expected ErrSeatsBelowUsed, got %v", err)
	}

	if err := s.SetTotalSeats(ctx, l.ID, 4); err != nil {
		t.Errorf("shrink to exactly used should succeed: %v", err)
	}
}

func TestMarkEventProcessedDedupe(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.MarkEventProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := s.MarkEventProcessed(ctx, "evt_1")
	if !errors.Is(err, roster.ErrEventAlreadyProcessed) {
		t.Errorf("expected ErrEventAlreadyProcessed, got %v", err)
	}
	if err := s.MarkEventProcessed(ctx, "evt_2"); err != nil {
		t.Errorf("distinct event should claim: %v", err)
	}
}

func TestMarkWarningSentDedupe(t *testing.T) {
	ctx := context.Background()
	s := New()
	licID := id.NewLicenseID()
	day := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	if err := s.MarkWarningSent(ctx, licID, license.Warning7Days, day); err != nil {
		t.Fatalf("first marker: %v", err)
	}
	// Same class later the same day is deduplicated.
	err := s.MarkWarningSent(ctx, licID, license.Warning7Days, day.Add(5*time.Hour))
	if !errors.Is(err, roster.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	// A different class the same day is a distinct marker.
	if err := s.MarkWarningSent(ctx, licID, license.Warning1Day, day); err != nil {
		t.Errorf("different class: %v", err)
	}
	// Same class the next day fires again.
	if err := s.MarkWarningSent(ctx, licID, license.Warning7Days, day.Add(24*time.Hour)); err != nil {
		t.Errorf("next day: %v", err)
	}
}

func TestTransitionMembership(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: id.NewOrganizationID(),
		Email:          "invitee@example.com",
		Role:           member.RoleMember,
		Status:         member.StatusPending,
	}
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	if err := s.TransitionMembership(ctx, m.ID, member.StatusPending, member.StatusActive); err != nil {
		t.Fatalf("pending->active: %v", err)
	}
	if m.ActivatedAt == nil {
		t.Error("ActivatedAt not set")
	}

	// Second identical transition loses the condition.
	err := s.TransitionMembership(ctx, m.ID, member.StatusPending, member.StatusActive)
	if !errors.Is(err, roster.ErrMembershipConcurrency) {
		t.Errorf("expected ErrMembershipConcurrency, got %v", err)
	}

	// Inactive is terminal.
	if err := s.TransitionMembership(ctx, m.ID, member.StatusActive, member.StatusInactive); err != nil {
		t.Fatalf("active->inactive: %v", err)
	}
	err = s.TransitionMembership(ctx, m.ID, member.StatusInactive, member.StatusActive)
	if err == nil {
		t.Error("expected error leaving inactive")
	}
}

func TestCreateMembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	orgID := id.NewOrganizationID()
	acctID := id.NewAccountID()

	active := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: orgID,
		AccountID:      acctID,
		Email:          "a@example.com",
		Role:           member.RoleMember,
		Status:         member.StatusActive,
	}
	if err := s.CreateMembership(ctx, active); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	dup := *active
	dup.ID = id.NewMembershipID()
	err := s.CreateMembership(ctx, &dup)
	if !errors.Is(err, roster.ErrAlreadyMember) {
		t.Errorf("expected ErrAlreadyMember, got %v", err)
	}

	pending := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: orgID,
		Email:          "b@example.com",
		Role:           member.RoleMember,
		Status:         member.StatusPending,
	}
	if err := s.CreateMembership(ctx, pending); err != nil {
		t.Fatalf("pending create: %v", err)
	}

	dupPending := *pending
	dupPending.ID = id.NewMembershipID()
	err = s.CreateMembership(ctx, &dupPending)
	if !errors.Is(err, roster.ErrInvitationPending) {
		t.Errorf("expected ErrInvitationPending, got %v", err)
	}
}

func TestListMembershipsClampsPagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	orgID := id.NewOrganizationID()

	for i := range 3 {
		m := &member.Membership{
			Entity:         types.NewEntity(),
			ID:             id.NewMembershipID(),
			OrganizationID: orgID,
			AccountID:      id.NewAccountID(),
			Email:          fmt.Sprintf("m%d@example.com", i),
			Role:           member.RoleMember,
			Status:         member.StatusActive,
		}
		if err := s.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership: %v", err)
		}
	}

	tests := []struct {
		name string
		opts member.ListOpts
		want int
	}{
		{"unbounded", member.ListOpts{}, 3},
		{"negative limit means no limit", member.ListOpts{Limit: -1}, 3},
		{"negative offset starts at zero", member.ListOpts{Offset: -5, Limit: 2}, 2},
		{"offset past the end", member.ListOpts{Offset: 10}, 0},
		{"limit past the end", member.ListOpts{Offset: 2, Limit: 10}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMemberships(ctx, orgID, tt.opts)
			if err != nil {
				t.Fatalf("ListMemberships: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("memberships: got %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDeleteTrialOrganization(t *testing.T) {
	ctx := context.Background()
	s := New()

	expiry := time.Now().Add(-time.Hour)
	o := &org.Organization{
		Entity:         types.NewEntity(),
		ID:             id.NewOrganizationID(),
		Name:           "Trial Co",
		OwnerAccountID: id.NewAccountID(),
		IsTrial:        true,
		TrialExpiresAt: &expiry,
	}
	owner := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: o.ID,
		AccountID:      o.OwnerAccountID,
		Role:           member.RoleAdmin,
		Status:         member.StatusActive,
	}
	l := &license.License{
		Entity:         types.NewEntity(),
		ID:             id.NewLicenseID(),
		OrganizationID: o.ID,
		Tier:           license.TierTrial,
		TotalSeats:     1,
		UsedSeats:      1,
		ExpiresAt:      expiry,
	}
	if err := s.CreateOrganization(ctx, o, owner, l); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}

	if err := s.DeleteTrialOrganization(ctx, o.ID); err != nil {
		t.Fatalf("DeleteTrialOrganization: %v", err)
	}
	if _, err := s.GetOrganization(ctx, o.ID); !errors.Is(err, roster.ErrOrganizationNotFound) {
		t.Errorf("organization should be gone, got %v", err)
	}
	if _, err := s.GetLicenseByOrganization(ctx, o.ID); !errors.Is(err, roster.ErrLicenseNotFound) {
		t.Errorf("license should be gone, got %v", err)
	}

	// Converted organizations are refused.
	paid := &org.Organization{
		Entity:         types.NewEntity(),
		ID:             id.NewOrganizationID(),
		Name:           "Paid Co",
		OwnerAccountID: id.NewAccountID(),
	}
	paidOwner := &member.Membership{
		Entity:         types.NewEntity(),
		ID:             id.NewMembershipID(),
		OrganizationID: paid.ID,
		AccountID:      paid.OwnerAccountID,
		Role:           member.RoleAdmin,
		Status:         member.StatusActive,
	}
	paidLic := &license.License{
		Entity:         types.NewEntity(),
		ID:             id.NewLicenseID(),
		OrganizationID: paid.ID,
		Tier:           license.TierStandard,
		TotalSeats:     5,
		UsedSeats:      1,
		ExpiresAt:      time.Now().Add(300 * 24 * time.Hour),
	}
	if err := s.CreateOrganization(ctx, paid, paidOwner, paidLic); err != nil {
		t.Fatalf("CreateOrganization paid: %v", err)
	}
	if err := s.DeleteTrialOrganization(ctx, paid.ID); !errors.Is(err, roster.ErrNotTrialOrganization) {
		t.Errorf("expected ErrNotTrialOrganization, got %v", err)
	}
}
