package store

import (
	"context"
	"time"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/renewal"
)

// Store is the unified storage interface for all Roster entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Safety contract: every seat mutation is a single conditional statement
// evaluated inside the store. Callers never read a count, decide, and
// write it back.
type Store interface {
	// Organization methods
	//
	// CreateOrganization writes the organization, its owner membership,
	// and its license in one transaction. The owner occupies the first
	// seat, so the license arrives with used_seats already at 1.
	CreateOrganization(ctx context.Context, o *org.Organization, owner *member.Membership, l *license.License) error
	GetOrganization(ctx context.Context, orgID id.OrganizationID) (*org.Organization, error)
	GetOrganizationByOwner(ctx context.Context, ownerID id.AccountID) (*org.Organization, error)
	ListOrganizations(ctx context.Context, opts org.ListOpts) ([]*org.Organization, error)
	UpdateOrganization(ctx context.Context, o *org.Organization) error
	ListExpiredTrials(ctx context.Context, cutoff time.Time, opts org.ListOpts) ([]*org.Organization, error)
	// DeleteTrialOrganization removes a trial organization and its
	// memberships and license in one transaction. Refuses converted
	// organizations.
	DeleteTrialOrganization(ctx context.Context, orgID id.OrganizationID) error

	// Membership methods
	CreateMembership(ctx context.Context, m *member.Membership) error
	GetMembership(ctx context.Context, memberID id.MembershipID) (*member.Membership, error)
	GetActiveMembership(ctx context.Context, orgID id.OrganizationID, accountID id.AccountID) (*member.Membership, error)
	GetPendingMembershipByEmail(ctx context.Context, orgID id.OrganizationID, email string) (*member.Membership, error)
	HasActiveMembershipElsewhere(ctx context.Context, accountID id.AccountID, excludeOrg id.OrganizationID) (bool, error)
	ListMemberships(ctx context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error)
	TransitionMembership(ctx context.Context, memberID id.MembershipID, from, to member.Status) error
	BindMembershipAccount(ctx context.Context, memberID id.MembershipID, accountID id.AccountID) error

	// License methods
	CreateLicense(ctx context.Context, l *license.License) error
	GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error)
	GetLicenseByOrganization(ctx context.Context, orgID id.OrganizationID) (*license.License, error)
	UpdateLicense(ctx context.Context, l *license.License) error
	IncrementUsedSeats(ctx context.Context, licenseID id.LicenseID) error
	DecrementUsedSeats(ctx context.Context, licenseID id.LicenseID, floor int) error
	SetTotalSeats(ctx context.Context, licenseID id.LicenseID, total int) error
	SetLicenseExpiry(ctx context.Context, licenseID id.LicenseID, expiresAt, renewedAt time.Time) error
	ListLicensesExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*license.License, error)
	MarkWarningSent(ctx context.Context, licenseID id.LicenseID, class license.WarningClass, day time.Time) error

	// Renewal history methods
	AppendRenewalRecord(ctx context.Context, r *renewal.Record) error
	ListRenewalRecords(ctx context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error)

	// Reconciliation methods
	MarkEventProcessed(ctx context.Context, eventID string) error
	CreateDeadLetter(ctx context.Context, dl *billing.DeadLetter) error
	ListDeadLetters(ctx context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error)
	// DeleteDeadLetter resolves a parked event, typically after a
	// successful replay.
	DeleteDeadLetter(ctx context.Context, dlID id.DeadLetterID) error

	// Account methods
	UpsertAccount(ctx context.Context, a *identity.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*identity.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*identity.Account, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
