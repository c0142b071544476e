// Package mongo provides the MongoDB Store implementation backed by
// Grove ORM.
//
// Seat mutations run as single conditional updates whose filter carries
// the capacity guard ($expr field comparison), so the seat invariant
// holds without client-side read-modify-write. Membership uniqueness
// lives in partial unique indexes, matching the SQL backends.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colOrganizations   = "roster_organizations"
	colMemberships     = "roster_memberships"
	colLicenses        = "roster_licenses"
	colRenewals        = "roster_renewals"
	colProcessedEvents = "roster_processed_events"
	colDeadLetters     = "roster_dead_letters"
	colWarningMarkers  = "roster_warning_markers"
	colAccounts        = "roster_accounts"
)

// compile-time interface check
var _ rosterstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all roster collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("roster/mongo: migrate %s indexes: %w", col, err)
		}
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
// its license. The unique owner index arbitrates racing first logins;
// the loser sees a conflict before any dependent document lands.
// Dependent inserts that fail compensate by removing the documents
// already written.
func (s *Store) CreateOrganization(ctx context.Context, o *org.Organization, owner *member.Membership, l *license.License) error {
	om := toOrganizationModel(o)
	if _, err := s.mdb.NewInsert(om).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roster.ErrOrganizationExists
		}
		return fmt.Errorf("roster/mongo: create organization: %w", err)
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
		_, _ = s.mdb.NewDelete((*membershipModel)(nil)).
			Filter(bson.M{"organization_id": orgID.String()}).
			Exec(ctx)
	}
	//nolint:errcheck // best-effort cleanup
	_, _ = s.mdb.NewDelete((*organizationModel)(nil)).
		Filter(bson.M{"_id": orgID.String()}).
		Exec(ctx)
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrganizationID) (*org.Organization, error) {
	var m organizationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orgID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get organization: %w", err)
	}
	return fromOrganizationModel(&m)
}

func (s *Store) GetOrganizationByOwner(ctx context.Context, ownerID id.AccountID) (*org.Organization, error) {
	var m organizationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"owner_account_id": ownerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get organization by owner: %w", err)
	}
	return fromOrganizationModel(&m)
}

func (s *Store) ListOrganizations(ctx context.Context, opts org.ListOpts) ([]*org.Organization, error) {
	var models []organizationModel

	filter := bson.M{}
	if opts.TrialOnly {
		filter["is_trial"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list organizations: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: update organization: %w", err)
	}
	if res.MatchedCount() == 0 {
		return roster.ErrOrganizationNotFound
	}
	return nil
}

func (s *Store) ListExpiredTrials(ctx context.Context, cutoff time.Time, opts org.ListOpts) ([]*org.Organization, error) {
	var models []organizationModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"is_trial":         true,
			"trial_expires_at": bson.M{"$lt": cutoff},
		}).
		Sort(bson.D{{Key: "trial_expires_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list expired trials: %w", err)
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

	res, err := s.mdb.NewDelete((*organizationModel)(nil)).
		Filter(bson.M{"_id": orgID.String(), "is_trial": true}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: delete trial organization: %w", err)
	}
	if res.DeletedCount() == 0 {
		return roster.ErrNotTrialOrganization
	}

	if _, err := s.mdb.NewDelete((*membershipModel)(nil)).
		Filter(bson.M{"organization_id": orgID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("roster/mongo: delete trial memberships: %w", err)
	}
	if _, err := s.mdb.NewDelete((*licenseModel)(nil)).
		Filter(bson.M{"organization_id": orgID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("roster/mongo: delete trial license: %w", err)
	}
	return nil
}

// ==================== Membership Store ====================

func (s *Store) CreateMembership(ctx context.Context, m *member.Membership) error {
	mm := toMembershipModel(m)
	if _, err := s.mdb.NewInsert(mm).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
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
		return fmt.Errorf("roster/mongo: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, memberID id.MembershipID) (*member.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": memberID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get membership: %w", err)
	}
	return fromMembershipModel(&m)
}

func (s *Store) GetActiveMembership(ctx context.Context, orgID id.OrganizationID, accountID id.AccountID) (*member.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"organization_id": orgID.String(),
			"account_id":      accountID.String(),
			"status":          string(member.StatusActive),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get active membership: %w", err)
	}
	return fromMembershipModel(&m)
}

func (s *Store) GetPendingMembershipByEmail(ctx context.Context, orgID id.OrganizationID, email string) (*member.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"organization_id": orgID.String(),
			"email":           email,
			"status":          string(member.StatusPending),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get pending membership: %w", err)
	}
	return fromMembershipModel(&m)
}

func (s *Store) HasActiveMembershipElsewhere(ctx context.Context, accountID id.AccountID, excludeOrg id.OrganizationID) (bool, error) {
	count, err := s.mdb.Collection(colMemberships).CountDocuments(ctx, bson.M{
		"account_id":      accountID.String(),
		"status":          string(member.StatusActive),
		"organization_id": bson.M{"$ne": excludeOrg.String()},
	})
	if err != nil {
		return false, fmt.Errorf("roster/mongo: count memberships: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListMemberships(ctx context.Context, orgID id.OrganizationID, opts member.ListOpts) ([]*member.Membership, error) {
	var models []membershipModel

	filter := bson.M{"organization_id": orgID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Role != "" {
		filter["role"] = string(opts.Role)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list memberships: %w", err)
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
// previous status is part of the filter, so a concurrent transition
// loses cleanly instead of double-applying.
func (s *Store) TransitionMembership(ctx context.Context, memberID id.MembershipID, from, to member.Status) error {
	if !from.CanTransitionTo(to) {
		return roster.ErrInvalidTransition
	}

	t := now()
	set := bson.M{
		"status":     string(to),
		"updated_at": t,
	}
	switch to {
	case member.StatusActive:
		set["activated_at"] = t
	case member.StatusInactive:
		set["deactivated_at"] = t
	}

	res, err := s.mdb.NewUpdate((*membershipModel)(nil)).
		Filter(bson.M{"_id": memberID.String(), "status": string(from)}).
		SetUpdate(bson.M{"$set": set}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: transition membership: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetMembership(ctx, memberID); err != nil {
			return err
		}
		return roster.ErrMembershipConcurrency
	}
	return nil
}

func (s *Store) BindMembershipAccount(ctx context.Context, memberID id.MembershipID, accountID id.AccountID) error {
	res, err := s.mdb.NewUpdate((*membershipModel)(nil)).
		Filter(bson.M{"_id": memberID.String()}).
		Set("account_id", accountID.String()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: bind membership account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return roster.ErrMembershipNotFound
	}
	return nil
}

// ==================== License Store ====================

func (s *Store) CreateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roster.ErrLicenseExists
		}
		return fmt.Errorf("roster/mongo: create license: %w", err)
	}
	return nil
}

func (s *Store) GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error) {
	var m licenseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": licenseID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get license: %w", err)
	}
	return fromLicenseModel(&m)
}

func (s *Store) GetLicenseByOrganization(ctx context.Context, orgID id.OrganizationID) (*license.License, error) {
	var m licenseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"organization_id": orgID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get license by organization: %w", err)
	}
	return fromLicenseModel(&m)
}

func (s *Store) UpdateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: update license: %w", err)
	}
	if res.MatchedCount() == 0 {
		return roster.ErrLicenseNotFound
	}
	return nil
}

// IncrementUsedSeats reserves one seat. The capacity guard is part of
// the filter; concurrent calls for the last seat serialize on the
// document and exactly one wins.
func (s *Store) IncrementUsedSeats(ctx context.Context, licenseID id.LicenseID) error {
	res, err := s.mdb.NewUpdate((*licenseModel)(nil)).
		Filter(bson.M{
			"_id":   licenseID.String(),
			"$expr": bson.M{"$lt": bson.A{"$used_seats", "$total_seats"}},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"used_seats": 1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: increment used seats: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetLicense(ctx, licenseID); err != nil {
			return err
		}
		return roster.ErrSeatLimitExceeded
	}
	return nil
}

// DecrementUsedSeats releases one seat, never dropping below floor.
func (s *Store) DecrementUsedSeats(ctx context.Context, licenseID id.LicenseID, floor int) error {
	res, err := s.mdb.NewUpdate((*licenseModel)(nil)).
		Filter(bson.M{
			"_id":        licenseID.String(),
			"used_seats": bson.M{"$gt": floor},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"used_seats": -1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: decrement used seats: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	res, err := s.mdb.NewUpdate((*licenseModel)(nil)).
		Filter(bson.M{
			"_id":        licenseID.String(),
			"used_seats": bson.M{"$lte": total},
		}).
		SetUpdate(bson.M{
			"$set": bson.M{"total_seats": total, "updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: set total seats: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetLicense(ctx, licenseID); err != nil {
			return err
		}
		return roster.ErrSeatsBelowUsed
	}
	return nil
}

func (s *Store) SetLicenseExpiry(ctx context.Context, licenseID id.LicenseID, expiresAt, renewedAt time.Time) error {
	res, err := s.mdb.NewUpdate((*licenseModel)(nil)).
		Filter(bson.M{"_id": licenseID.String()}).
		Set("expires_at", expiresAt).
		Set("last_renewed_at", renewedAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: set license expiry: %w", err)
	}
	if res.MatchedCount() == 0 {
		return roster.ErrLicenseNotFound
	}
	return nil
}

func (s *Store) ListLicensesExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*license.License, error) {
	var models []licenseModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"expires_at": bson.M{"$lt": cutoff}}).
		Sort(bson.D{{Key: "expires_at", Value: 1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list expiring licenses: %w", err)
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

// MarkWarningSent claims the per-day warning marker. The composite key
// is the document ID; a second claim the same day hits the unique _id
// index and loses.
func (s *Store) MarkWarningSent(ctx context.Context, licenseID id.LicenseID, class license.WarningClass, day time.Time) error {
	d := day.UTC().Format("2006-01-02")
	m := &warningMarkerModel{
		MarkerKey: licenseID.String() + ":" + string(class) + ":" + d,
		LicenseID: licenseID.String(),
		Class:     string(class),
		Day:       d,
		CreatedAt: now(),
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roster.ErrAlreadyExists
		}
		return fmt.Errorf("roster/mongo: mark warning sent: %w", err)
	}
	return nil
}

// ==================== Renewal history Store ====================

func (s *Store) AppendRenewalRecord(ctx context.Context, r *renewal.Record) error {
	m := toRenewalModel(r)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("roster/mongo: append renewal record: %w", err)
	}
	return nil
}

func (s *Store) ListRenewalRecords(ctx context.Context, orgID id.OrganizationID, opts renewal.ListOpts) ([]*renewal.Record, error) {
	var models []renewalModel

	filter := bson.M{"organization_id": orgID.String()}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list renewal records: %w", err)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roster.ErrEventAlreadyProcessed
		}
		return fmt.Errorf("roster/mongo: mark event processed: %w", err)
	}
	return nil
}

func (s *Store) CreateDeadLetter(ctx context.Context, dl *billing.DeadLetter) error {
	m := toDeadLetterModel(dl)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("roster/mongo: create dead letter: %w", err)
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, opts billing.DeadLetterListOpts) ([]*billing.DeadLetter, error) {
	var models []deadLetterModel

	filter := bson.M{}
	if !opts.OrganizationID.IsNil() {
		filter["organization_id"] = opts.OrganizationID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("roster/mongo: list dead letters: %w", err)
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
	res, err := s.mdb.NewDelete((*deadLetterModel)(nil)).
		Filter(bson.M{"_id": dlID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: delete dead letter: %w", err)
	}
	if res.DeletedCount() == 0 {
		return roster.ErrDeadLetterNotFound
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) UpsertAccount(ctx context.Context, a *identity.Account) error {
	t := now()
	created := a.CreatedAt
	if created.IsZero() {
		created = t
	}

	_, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": a.ID.String()}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"email":      a.Email,
				"name":       a.Name,
				"updated_at": t,
			},
			"$setOnInsert": bson.M{
				"_id":        a.ID.String(),
				"created_at": created,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roster/mongo: upsert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*identity.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrAccountNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"email": email}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, roster.ErrAccountNotFound
		}
		return nil, fmt.Errorf("roster/mongo: get account by email: %w", err)
	}
	return fromAccountModel(&m)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all roster
// collections. The two partial unique indexes on memberships carry the
// same uniqueness contract as the SQL backends: one active membership
// per account per organization, one pending invitation per email per
// organization.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colOrganizations: {
			{
				Keys:    bson.D{{Key: "owner_account_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "is_trial", Value: 1}, {Key: "trial_expires_at", Value: 1}}},
		},
		colMemberships: {
			{
				Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "account_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(member.StatusActive)}),
			},
			{
				Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "email", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(member.StatusPending)}),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colLicenses: {
			{
				Keys:    bson.D{{Key: "organization_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colRenewals: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "license_id", Value: 1}}},
		},
		colProcessedEvents: {},
		colDeadLetters: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
		colWarningMarkers: {
			{Keys: bson.D{{Key: "license_id", Value: 1}, {Key: "day", Value: 1}}},
		},
		colAccounts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
