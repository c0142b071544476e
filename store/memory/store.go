// Package memory provides an in-memory Store implementation.
// It is the reference implementation of the store contract and the
// backend for engine tests. All state is lost on process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/renewal"
)

type Store struct {
	mu sync.RWMutex

	organizations map[string]*org.Organization
	memberships   map[string]*member.Membership
	licenses      map[string]*license.License
	accounts      map[string]*identity.Account

	renewals    []*renewal.Record
	deadLetters []*billing.DeadLetter

	// Permanent event dedupe markers and daily warning markers.
	processedEvents map[string]struct{}
	warningMarkers  map[string]struct{}

	closed bool
}

func New() *Store {
	return &Store{
		organizations:   make(map[string]*org.Organization),
		memberships:     make(map[string]*member.Membership),
		licenses:        make(map[string]*license.License),
		accounts:        make(map[string]*identity.Account),
		renewals:        make([]*renewal.Record, 0),
		deadLetters:     make([]*billing.DeadLetter, 0),
		processedEvents: make(map[string]struct{}),
		warningMarkers:  make(map[string]struct{}),
	}
}

// Organization Store implementation

func (s *Store) CreateOrganization(_ context.Context, o *org.Organization, owner *member.Membership, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[o.ID.String()]; exists {
		return roster.ErrOrganizationExists
	}
	for _, existing := range s.organizations {
		if existing.OwnerAccountID == o.OwnerAccountID {
			return roster.ErrOrganizationExists
		}
	}

	s.organizations[o.ID.String()] = o
	s.memberships[owner.ID.String()] = owner
	s.licenses[l.ID.String()] = l
	return nil
}

func (s *Store) GetOrganization(_ context.Context, orgID id.OrganizationID) (*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.organizations[orgID.String()]; ok {
		return o, nil
	}
	return nil, roster.ErrOrganizationNotFound
}

func (s *Store) GetOrganizationByOwner(_ context.Context, ownerID id.AccountID) (*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.organizations {
		if o.OwnerAccountID == ownerID {
			return o, nil
		}
	}
	return nil, roster.ErrOrganizationNotFound
}

func (s *Store) ListOrganizations(_ context.Context, opts org.ListOpts) ([]*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*org.Organization, 0)
	for _, o := range s.organizations {
		if opts.TrialOnly && !o.IsTrial {
			continue
		}
		result = append(result, o)
	}
	sortByID(result, func(o *org.Organization) string { return o.ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateOrganization(_ context.Context, o *org.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[o.ID.String()]; !exists {
		return roster.ErrOrganizationNotFound
	}
	s.organizations[o.ID.String()] = o
	return nil
}

func (s *Store) ListExpiredTrials(_ context.Context, cutoff time.Time, opts org.ListOpts) ([]*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*org.Organization, 0)
	for _, o := range s.organizations {
		if o.IsTrial && o.TrialExpiresAt != nil && o.TrialExpiresAt.Before(cutoff) {
			result = append(result, o)
		}
	}
	sortByID(result, func(o *org.Organization) string { return o.ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteTrialOrganization(_ context.Context, orgID id.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.organizations[orgID.String()]
	if !ok {
		return roster.ErrOrganizationNotFound
	}
	if !o.IsTrial {
		return roster.ErrNotTrialOrganization
	}

	delete(s.organizations, orgID.String())
	for key, m := range s.memberships {
		if m.OrganizationID == orgID {
			delete(s.memberships, key)
		}
	}
	for key, l := range s.licenses {
		if l.OrganizationID == orgID {
			delete(s.licenses, key)
		}
	}
	return nil
}

// Membership Store implementation

func (s *Store) CreateMembership(_ context.Context, m *member.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memberships[m.ID.String()]; exists {
		return roster.ErrAlreadyExists
	}

	// Uniqueness contract: one active record per (org, account) and one
	// pending record per (org, email).
	for _, existing := range s.memberships {
		if existing.OrganizationID != m.OrganizationID {
			continue
		}
		if m.Status == member.StatusActive && existing.Status == member.StatusActive &&
			!m.AccountID.IsNil() && existing.AccountID == m.AccountID {
			return roster.ErrAlreadyMember
		}
		if m.Status == member.StatusPending && existing.Status == member.StatusPending &&
			existing.Email == m.Email {
			return roster.ErrInvitationPending
		}
	}

	s.memberships[m.ID.String()] = m
	return nil
}

func (s *Store) GetMembership(_ context.Context, memberID id.MembershipID) (*member.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.memberships[memberID.String()]; ok {
		return m, nil
	}
	return nil, roster.ErrMembershipNotFound
}

func (s *Store) GetActiveMembership(_ context.Context, orgID id.OrganizationID, accountID id.AccountID) (*member.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.OrganizationID == orgID && m.AccountID == accountID && m.Status == member.StatusActive {
			return m, nil
		}
	}
	return nil, roster.ErrMembershipNotFound
}

func (s *Store) GetPendingMembershipByEmail(_ context.Context, orgID id.OrganizationID, email string) (*member.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.OrganizationID == orgID && m.Email == email && m.Status == member.StatusPending {
			return m, nil
		}
	}
	return nil, roster.ErrInvitationNotFound
}

func (s *Store) HasActiveMembershipElsewhere(_ context.Context, accountID id.AccountID, excludeOrg id.OrganizationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.AccountID == accountID && m.Status == member.StatusActive && m.OrganizationID != excludeOrg {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListMemberships(_ context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*member.Membership, 0)
	for _, m := range s.memberships {
		if m.OrganizationID != orgID {
			continue
		}
		if opts.Status != "" && m.Status != opts.Status {
			continue
		}
		if opts.Role != "" && m.Role != opts.Role {
			continue
		}
		result = append(result, m)
	}
	sortByID(result, func(m *member.Membership) string { return m.ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) TransitionMembership(_ context.Context, memberID id.MembershipID, from, to member.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[memberID.String()]
	if !ok {
		return roster.ErrMembershipNotFound
	}
	if m.Status != from {
		return roster.ErrMembershipConcurrency
	}
	if !from.CanTransitionTo(to) {
		return roster.ErrInvalidTransition
	}

	now := time.Now().UTC()
	m.Status = to
	switch to {
	case member.StatusActive:
		m.ActivatedAt = &now
	case member.StatusInactive:
		m.DeactivatedAt = &now
	}
	m.Touch()
	return nil
}

func (s *Store) BindMembershipAccount(_ context.Context, memberID id.MembershipID, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[memberID.String()]
	if !ok {
		return roster.ErrMembershipNotFound
	}
	m.AccountID = accountID
	m.Touch()
	return nil
}

// License Store implementation

func (s *Store) CreateLicense(_ context.Context, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[l.ID.String()]; exists {
		return roster.ErrLicenseExists
	}
	for _, existing := range s.licenses {
		if existing.OrganizationID == l.OrganizationID {
			return roster.ErrLicenseExists
		}
	}
	s.licenses[l.ID.String()] = l
	return nil
}

func (s *Store) GetLicense(_ context.Context, licenseID id.LicenseID) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.licenses[licenseID.String()]; ok {
		return l, nil
	}
	return nil, roster.ErrLicenseNotFound
}

func (s *Store) GetLicenseByOrganization(_ context.Context, orgID id.OrganizationID) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.licenses {
		if l.OrganizationID == orgID {
			return l, nil
		}
	}
	return nil, roster.ErrLicenseNotFound
}

func (s *Store) UpdateLicense(_ context.Context, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[l.ID.String()]; !exists {
		return roster.ErrLicenseNotFound
	}
	s.licenses[l.ID.String()] = l
	return nil
}

func (s *Store) IncrementUsedSeats(_ context.Context, licenseID id.LicenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID.String()]
	if !ok {
		return roster.ErrLicenseNotFound
	}
	// The check and the increment happen under one lock, mirroring the
	// single conditional UPDATE of the SQL drivers.
	if l.UsedSeats >= l.TotalSeats {
		return roster.ErrSeatLimitExceeded
	}
	l.UsedSeats++
	l.Touch()
	return nil
}

func (s *Store) DecrementUsedSeats(_ context.Context, licenseID id.LicenseID, floor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID.String()]
	if !ok {
		return roster.ErrLicenseNotFound
	}
	if l.UsedSeats <= floor {
		return roster.ErrInvalidSeatCount
	}
	l.UsedSeats--
	l.Touch()
	return nil
}

func (s *Store) SetTotalSeats(_ context.Context, licenseID id.LicenseID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID.String()]
	if !ok {
		return roster.ErrLicenseNotFound
	}
	if total < l.UsedSeats {
		return roster.ErrSeatsBelowUsed
	}
	l.TotalSeats = total
	l.Touch()
	return nil
}

func (s *Store) SetLicenseExpiry(_ context.Context, licenseID id.LicenseID, expiresAt, renewedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID.String()]
	if !ok {
		return roster.ErrLicenseNotFound
	}
	l.ExpiresAt = expiresAt
	l.LastRenewedAt = &renewedAt
	l.Touch()
	return nil
}

func (s *Store) ListLicensesExpiringBefore(_ context.Context, cutoff time.Time, limit int) ([]*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*license.License, 0)
	for _, l := range s.licenses {
		if l.ExpiresAt.Before(cutoff) {
			result = append(result, l)
		}
	}
	sortByID(result, func(l *license.License) string { return l.ID.String() })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkWarningSent(_ context.Context, licenseID id.LicenseID, class license.WarningClass, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := licenseID.String() + "|" + string(class) + "|" + day.UTC().Format("2006-01-02")
	if _, exists := s.warningMarkers[key]; exists {
		return roster.ErrAlreadyExists
	}
	s.warningMarkers[key] = struct{}{}
	return nil
}

// Renewal history Store implementation

func (s *Store) AppendRenewalRecord(_ context.Context, r *renewal.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renewals = append(s.renewals, r)
	return nil
}

func (s *Store) ListRenewalRecords(_ context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*renewal.Record, 0)
	for _, r := range s.renewals {
		if r.OrganizationID != orgID {
			continue
		}
		if opts.Kind != "" && r.Kind != opts.Kind {
			continue
		}
		result = append(result, r)
	}

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Reconciliation Store implementation

func (s *Store) MarkEventProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processedEvents[eventID]; exists {
		return roster.ErrEventAlreadyProcessed
	}
	s.processedEvents[eventID] = struct{}{}
	return nil
}

func (s *Store) CreateDeadLetter(_ context.Context, dl *billing.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deadLetters = append(s.deadLetters, dl)
	return nil
}

func (s *Store) ListDeadLetters(_ context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*billing.DeadLetter, 0)
	for _, dl := range s.deadLetters {
		if !opts.OrganizationID.IsNil() && dl.OrganizationID != opts.OrganizationID {
			continue
		}
		result = append(result, dl)
	}

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteDeadLetter(_ context.Context, dlID id.DeadLetterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, dl := range s.deadLetters {
		if dl.ID == dlID {
			s.deadLetters = append(s.deadLetters[:i], s.deadLetters[i+1:]...)
			return nil
		}
	}
	return roster.ErrDeadLetterNotFound
}

// Account Store implementation

func (s *Store) UpsertAccount(_ context.Context, a *identity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.ID.String()] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return a, nil
	}
	return nil, roster.ErrAccountNotFound
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, roster.ErrAccountNotFound
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return roster.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Helpers

func sortByID[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
