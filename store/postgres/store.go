// Package postgres provides the PostgreSQL Store implementation backed
// by Grove ORM.
//
// Every seat mutation runs as one conditional UPDATE so the seat
// invariant holds without row locks or read-modify-write windows. The
// membership uniqueness contract lives in partial unique indexes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("roster/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("roster/postgres: migration failed: %w", err)
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
// logins; the loser sees a conflict before any dependent row lands.
// Dependent inserts that fail compensate by removing the rows already
// written.
func (s *Store) CreateOrganization(ctx context.Context, o *org.Organization, owner *member.Membership, l *license.License) error {
	om := toOrganizationModel(o)
	res, err := s.pg.NewInsert(om).
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
		_, _ = s.pg.NewDelete((*membershipModel)(nil)).
			Where("organization_id = $1", orgID.String()).
			Exec(ctx)
	}
	//nolint:errcheck // best-effort cleanup
	_, _ = s.pg.NewDelete((*organizationModel)(nil)).
		Where("id = $1", orgID.String()).
		Exec(ctx)
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrganizationID) (*org.Organization, error) {
	m := new(organizationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orgID.String()).
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
	err := s.pg.NewSelect(m).
		Where("owner_account_id = $1", ownerID.String()).
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
	q := s.pg.NewSelect(&models)

	if opts.TrialOnly {
		q = q.Where("is_trial = TRUE")
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	q := s.pg.NewSelect(&models).
		Where("is_trial = TRUE").
		Where("trial_expires_at < $1", cutoff)

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
// under it. The is_trial guard on the final delete refuses converted
// organizations even when the conversion raced this call.
func (s *Store) DeleteTrialOrganization(ctx context.Context, orgID id.OrganizationID) error {
	o, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if !o.IsTrial {
		return roster.ErrNotTrialOrganization
	}

	res, err := s.pg.NewDelete((*organizationModel)(nil)).
		Where("id = $1", orgID.String()).
		Where("is_trial = TRUE").
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

	if _, err := s.pg.NewDelete((*membershipModel)(nil)).
		Where("organization_id = $1", orgID.String()).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := s.pg.NewDelete((*licenseModel)(nil)).
		Where("organization_id = $1", orgID.String()).
		Exec(ctx); err != nil {
		return err
	}
	return nil
}

// ==================== Membership Store ====================

func (s *Store) CreateMembership(ctx context.Context, m *member.Membership) error {
	mm := toMembershipModel(m)
	res, err := s.pg.NewInsert(mm).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", memberID.String()).
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
	err := s.pg.NewSelect(m).
		Where("organization_id = $1", orgID.String()).
		Where("account_id = $2", accountID.String()).
		Where("status = $3", string(member.StatusActive)).
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
	err := s.pg.NewSelect(m).
		Where("organization_id = $1", orgID.String()).
		Where("email = $2", email).
		Where("status = $3", string(member.StatusPending)).
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
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM roster_memberships
		WHERE account_id = $1 AND status = 'active' AND organization_id != $2
	`, accountID.String(), excludeOrg.String()).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListMemberships(ctx context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error) {
	var models []membershipModel
	q := s.pg.NewSelect(&models).Where("organization_id = $1", orgID.String())

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Role != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("role = $%d", argIdx), string(opts.Role))
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
	q := s.pg.NewUpdate((*membershipModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", t)

	switch to {
	case member.StatusActive:
		q = q.Set("activated_at = $3", t).
			Where("id = $4", memberID.String()).
			Where("status = $5", string(from))
	case member.StatusInactive:
		q = q.Set("deactivated_at = $3", t).
			Where("id = $4", memberID.String()).
			Where("status = $5", string(from))
	default:
		q = q.Where("id = $3", memberID.String()).
			Where("status = $4", string(from))
	}

	res, err := q.Exec(ctx)
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
	res, err := s.pg.NewUpdate((*membershipModel)(nil)).
		Set("account_id = $1", accountID.String()).
		Set("updated_at = $2", now()).
		Where("id = $3", memberID.String()).
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
	res, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", licenseID.String()).
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
	err := s.pg.NewSelect(m).
		Where("organization_id = $1", orgID.String()).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	res, err := s.pg.NewUpdate((*licenseModel)(nil)).
		Set("used_seats = used_seats + 1").
		Set("updated_at = $1", now()).
		Where("id = $2", licenseID.String()).
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
	res, err := s.pg.NewUpdate((*licenseModel)(nil)).
		Set("used_seats = used_seats - 1").
		Set("updated_at = $1", now()).
		Where("id = $2", licenseID.String()).
		Where("used_seats > $3", floor).
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
	res, err := s.pg.NewUpdate((*licenseModel)(nil)).
		Set("total_seats = $1", total).
		Set("updated_at = $2", now()).
		Where("id = $3", licenseID.String()).
		Where("used_seats <= $4", total).
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
	res, err := s.pg.NewUpdate((*licenseModel)(nil)).
		Set("expires_at = $1", expiresAt).
		Set("last_renewed_at = $2", renewedAt).
		Set("updated_at = $3", now()).
		Where("id = $4", licenseID.String()).
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
	q := s.pg.NewSelect(&models).
		Where("expires_at < $1", cutoff).
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
	res, err := s.pg.NewInsert(m).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListRenewalRecords(ctx context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error) {
	var models []renewalModel
	q := s.pg.NewSelect(&models).Where("organization_id = $1", orgID.String())

	argIdx := 1
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
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
	res, err := s.pg.NewInsert(m).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDeadLetters(ctx context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error) {
	var models []deadLetterModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.OrganizationID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("organization_id = $%d", argIdx), opts.OrganizationID.String())
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
	res, err := s.pg.NewDelete((*deadLetterModel)(nil)).
		Where("id = $1", dlID.String()).
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
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*identity.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
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
	err := s.pg.NewSelect(m).
		Where("email = $1", email).
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
