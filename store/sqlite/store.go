// Package sqlite provides the SQLite Store implementation backed by
// Grove ORM. Suited to single-node deployments and integration tests;
// the query surface mirrors the postgres driver with SQLite
// placeholders and DDL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/roster"
	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/renewal"
	rosterstore "github.com/xraph/roster/store"
)

// compile-time interface check
var _ rosterstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("roster/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("roster/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Organization Store ====================

// CreateOrganization writes the organization, its owner membership, and
// its license. The owner-uniqueness index arbitrates racing first
// logins; dependent inserts that fail compensate by removing the rows
// already written.
func (s *Store) CreateOrganization(ctx context.Context, o *org.Organization, owner *member.Membership, l *license.License) error {
	om := toOrganizationModel(o)
	res, err := s.sdb.NewInsert(om).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrOrganizationExists
	}

	if err := s.CreateMembership(ctx, owner); err != nil {
		s.compensateOrganization(ctx, o.ID, false)
		return err
	}
	if err := s.CreateLicense(ctx, l); err != nil {
		s.compensateOrganization(ctx, o.ID, true)
		return err
	}
	return nil
}

func (s *Store) compensateOrganization(ctx context.Context, orgID id.OrganizationID, withMembers bool) {
	if withMembers {
		//nolint:errcheck // best-effort cleanup
		_, _ = s.sdb.NewDelete((*membershipModel)(nil)).
			Where("organization_id = ?", orgID.String()).
			Exec(ctx)
	}
	//nolint:errcheck // best-effort cleanup
	_, _ = s.sdb.NewDelete((*organizationModel)(nil)).
		Where("id = ?", orgID.String()).
		Exec(ctx)
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrganizationID) (*org.Organization, error) {
	m := new(organizationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orgID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrOrganizationNotFound
		}
		return nil, err
	}
	return fromOrganizationModel(m)
}

func (s *Store) GetOrganizationByOwner(ctx context.Context, ownerID id.AccountID) (*org.Organization, error) {
	m := new(organizationModel)
	err := s.sdb.NewSelect(m).
		Where("owner_account_id = ?", ownerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrOrganizationNotFound
		}
		return nil, err
	}
	return fromOrganizationModel(m)
}

func (s *Store) ListOrganizations(ctx context.Context, opts org.ListOpts) ([]*org.Organization, error) {
	var models []organizationModel
	q := s.sdb.NewSelect(&models)

	if opts.TrialOnly {
		q = q.Where("is_trial = 1")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*org.Organization, len(models))
	for i := range models {
		o, err := fromOrganizationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, o *org.Organization) error {
	m := toOrganizationModel(o)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrOrganizationNotFound
	}
	return nil
}

func (s *Store) ListExpiredTrials(ctx context.Context, cutoff time.Time, opts org.ListOpts) ([]*org.Organization, error) {
	var models []organizationModel
	q := s.sdb.NewSelect(&models).
		Where("is_trial = 1").
		Where("trial_expires_at < ?", cutoff)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("trial_expires_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*org.Organization, len(models))
	for i := range models {
		o, err := fromOrganizationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

// DeleteTrialOrganization removes a trial organization and everything
// under it. The is_trial guard on the delete refuses converted
// organizations even when the conversion raced this call.
func (s *Store) DeleteTrialOrganization(ctx context.Context, orgID id.OrganizationID) error {
	o, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if !o.IsTrial {
		return roster.ErrNotTrialOrganization
	}

	res, err := s.sdb.NewDelete((*organizationModel)(nil)).
		Where("id = ?", orgID.String()).
		Where("is_trial = 1").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrNotTrialOrganization
	}

	if _, err := s.sdb.NewDelete((*membershipModel)(nil)).
		Where("organization_id = ?", orgID.String()).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := s.sdb.NewDelete((*licenseModel)(nil)).
		Where("organization_id = ?", orgID.String()).
		Exec(ctx); err != nil {
		return err
	}
	return nil
}

// ==================== Membership Store ====================

func (s *Store) CreateMembership(ctx context.Context, m *member.Membership) error {
	mm := toMembershipModel(m)
	res, err := s.sdb.NewInsert(mm).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// One of the partial unique indexes swallowed the insert.
		switch m.Status {
		case member.StatusActive:
			return roster.ErrAlreadyMember
		case member.StatusPending:
			return roster.ErrInvitationPending
		default:
			return roster.ErrAlreadyExists
		}
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, memberID id.MembershipID) (*member.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", memberID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrMembershipNotFound
		}
		return nil, err
	}
	return fromMembershipModel(m)
}

func (s *Store) GetActiveMembership(ctx context.Context, orgID id.OrganizationID, accountID id.AccountID) (*member.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).
		Where("organization_id = ?", orgID.String()).
		Where("account_id = ?", accountID.String()).
		Where("status = ?", string(member.StatusActive)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrMembershipNotFound
		}
		return nil, err
	}
	return fromMembershipModel(m)
}

func (s *Store) GetPendingMembershipByEmail(ctx context.Context, orgID id.OrganizationID, email string) (*member.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).
		Where("organization_id = ?", orgID.String()).
		Where("email = ?", email).
		Where("status = ?", string(member.StatusPending)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrInvitationNotFound
		}
		return nil, err
	}
	return fromMembershipModel(m)
}

func (s *Store) HasActiveMembershipElsewhere(ctx context.Context, accountID id.AccountID, excludeOrg id.OrganizationID) (bool, error) {
	var count int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM roster_memberships
		WHERE account_id = ? AND status = 'active' AND organization_id != ?
	`, accountID.String(), excludeOrg.String()).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListMemberships(ctx context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error) {
	var models []membershipModel
	q := s.sdb.NewSelect(&models).Where("organization_id = ?", orgID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Role != "" {
		q = q.Where("role = ?", string(opts.Role))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*member.Membership, len(models))
	for i := range models {
		m, err := fromMembershipModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

// TransitionMembership moves a membership between lifecycle states. The
// previous status is part of the WHERE clause, so a concurrent
// transition loses cleanly instead of double-applying.
func (s *Store) TransitionMembership(ctx context.Context, memberID id.MembershipID, from, to member.Status) error {
	if !from.CanTransitionTo(to) {
		return roster.ErrInvalidTransition
	}

	t := now()
	q := s.sdb.NewUpdate((*membershipModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", t)

	switch to {
	case member.StatusActive:
		q = q.Set("activated_at = ?", t)
	case member.StatusInactive:
		q = q.Set("deactivated_at = ?", t)
	}

	res, err := q.
		Where("id = ?", memberID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetMembership(ctx, memberID); err != nil {
			return err
		}
		return roster.ErrMembershipConcurrency
	}
	return nil
}

func (s *Store) BindMembershipAccount(ctx context.Context, memberID id.MembershipID, accountID id.AccountID) error {
	res, err := s.sdb.NewUpdate((*membershipModel)(nil)).
		Set("account_id = ?", accountID.String()).
		Set("updated_at = ?", now()).
		Where("id = ?", memberID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrMembershipNotFound
	}
	return nil
}

// ==================== License Store ====================

func (s *Store) CreateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	res, err := s.sdb.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrLicenseExists
	}
	return nil
}

func (s *Store) GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error) {
	m := new(licenseModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", licenseID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrLicenseNotFound
		}
		return nil, err
	}
	return fromLicenseModel(m)
}

func (s *Store) GetLicenseByOrganization(ctx context.Context, orgID id.OrganizationID) (*license.License, error) {
	m := new(licenseModel)
	err := s.sdb.NewSelect(m).
		Where("organization_id = ?", orgID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrLicenseNotFound
		}
		return nil, err
	}
	return fromLicenseModel(m)
}

func (s *Store) UpdateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrLicenseNotFound
	}
	return nil
}

// IncrementUsedSeats reserves one seat. The capacity check is part of
// the UPDATE itself; concurrent calls for the last seat serialize on
// the row and exactly one wins.
func (s *Store) IncrementUsedSeats(ctx context.Context, licenseID id.LicenseID) error {
	res, err := s.sdb.NewUpdate((*licenseModel)(nil)).
		Set("used_seats = used_seats + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", licenseID.String()).
		Where("used_seats < total_seats").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetLicense(ctx, licenseID); err != nil {
			return err
		}
		return roster.ErrSeatLimitExceeded
	}
	return nil
}

// DecrementUsedSeats releases one seat, never dropping below floor.
func (s *Store) DecrementUsedSeats(ctx context.Context, licenseID id.LicenseID, floor int) error {
	res, err := s.sdb.NewUpdate((*licenseModel)(nil)).
		Set("used_seats = used_seats - 1").
		Set("updated_at = ?", now()).
		Where("id = ?", licenseID.String()).
		Where("used_seats > ?", floor).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetLicense(ctx, licenseID); err != nil {
			return err
		}
		return roster.ErrInvalidSeatCount
	}
	return nil
}

// SetTotalSeats moves the seat total, refusing any figure below the
// seats already in use.
func (s *Store) SetTotalSeats(ctx context.Context, licenseID id.LicenseID, total int) error {
	res, err := s.sdb.NewUpdate((*licenseModel)(nil)).
		Set("total_seats = ?", total).
		Set("updated_at = ?", now()).
		Where("id = ?", licenseID.String()).
		Where("used_seats <= ?", total).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetLicense(ctx, licenseID); err != nil {
			return err
		}
		return roster.ErrSeatsBelowUsed
	}
	return nil
}

func (s *Store) SetLicenseExpiry(ctx context.Context, licenseID id.LicenseID, expiresAt, renewedAt time.Time) error {
	res, err := s.sdb.NewUpdate((*licenseModel)(nil)).
		Set("expires_at = ?", expiresAt).
		Set("last_renewed_at = ?", renewedAt).
		Set("updated_at = ?", now()).
		Where("id = ?", licenseID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrLicenseNotFound
	}
	return nil
}

func (s *Store) ListLicensesExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*license.License, error) {
	var models []licenseModel
	q := s.sdb.NewSelect(&models).
		Where("expires_at < ?", cutoff).
		OrderExpr("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*license.License, len(models))
	for i := range models {
		l, err := fromLicenseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// MarkWarningSent claims the per-day warning marker. The composite
// primary key is the dedupe; a second claim the same day loses.
func (s *Store) MarkWarningSent(ctx context.Context, licenseID id.LicenseID, class license.WarningClass, day time.Time) error {
	m := &warningMarkerModel{
		LicenseID: licenseID.String(),
		Class:     string(class),
		Day:       day.UTC().Format("2006-01-02"),
		CreatedAt: now(),
	}
	res, err := s.sdb.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrAlreadyExists
	}
	return nil
}

// ==================== Renewal history Store ====================

func (s *Store) AppendRenewalRecord(ctx context.Context, r *renewal.Record) error {
	m := toRenewalModel(r)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListRenewalRecords(ctx context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error) {
	var models []renewalModel
	q := s.sdb.NewSelect(&models).Where("organization_id = ?", orgID.String())

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*renewal.Record, len(models))
	for i := range models {
		r, err := fromRenewalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Reconciliation Store ====================

// MarkEventProcessed permanently claims an event ID.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) error {
	m := &processedEventModel{
		EventID:     eventID,
		ProcessedAt: now(),
	}
	res, err := s.sdb.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrEventAlreadyProcessed
	}
	return nil
}

func (s *Store) CreateDeadLetter(ctx context.Context, dl *billing.DeadLetter) error {
	m := toDeadLetterModel(dl)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDeadLetters(ctx context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error) {
	var models []deadLetterModel
	q := s.sdb.NewSelect(&models)

	if !opts.OrganizationID.IsNil() {
		q = q.Where("organization_id = ?", opts.OrganizationID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*billing.DeadLetter, len(models))
	for i := range models {
		dl, err := fromDeadLetterModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = dl
	}
	return result, nil
}

func (s *Store) DeleteDeadLetter(ctx context.Context, dlID id.DeadLetterID) error {
	res, err := s.sdb.NewDelete((*deadLetterModel)(nil)).
		Where("id = ?", dlID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return roster.ErrDeadLetterNotFound
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) UpsertAccount(ctx context.Context, a *identity.Account) error {
	m := toAccountModel(a)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	m.UpdatedAt = now()
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*identity.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, roster.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
