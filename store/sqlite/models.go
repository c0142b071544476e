package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/member"
	"github.com/xraph/roster/org"
	"github.com/xraph/roster/renewal"
	"github.com/xraph/roster/types"
)

// ==================== Organization models ====================

type organizationModel struct {
	grove.BaseModel `grove:"table:roster_organizations"`

	ID             string            `grove:"id,pk"`
	Name           string            `grove:"name"`
	OwnerAccountID string            `grove:"owner_account_id"`
	IsTrial        bool              `grove:"is_trial"`
	TrialExpiresAt *time.Time        `grove:"trial_expires_at"`
	Metadata       map[string]string `grove:"metadata,type:json"`
	CreatedAt      time.Time         `grove:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"`
}

func toOrganizationModel(o *org.Organization) *organizationModel {
	return &organizationModel{
		ID:             o.ID.String(),
		Name:           o.Name,
		OwnerAccountID: o.OwnerAccountID.String(),
		IsTrial:        o.IsTrial,
		TrialExpiresAt: o.TrialExpiresAt,
		Metadata:       o.Metadata,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func fromOrganizationModel(m *organizationModel) (*org.Organization, error) {
	orgID, err := id.ParseOrganizationID(m.ID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseAccountID(m.OwnerAccountID)
	if err != nil {
		return nil, err
	}

	return &org.Organization{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             orgID,
		Name:           m.Name,
		OwnerAccountID: ownerID,
		IsTrial:        m.IsTrial,
		TrialExpiresAt: m.TrialExpiresAt,
		Metadata:       m.Metadata,
	}, nil
}

// ==================== Membership models ====================

type membershipModel struct {
	grove.BaseModel `grove:"table:roster_memberships"`

	ID             string     `grove:"id,pk"`
	OrganizationID string     `grove:"organization_id"`
	AccountID      string     `grove:"account_id"`
	Email          string     `grove:"email"`
	Role           string     `grove:"role"`
	Status         string     `grove:"status"`
	InvitedBy      string     `grove:"invited_by"`
	ActivatedAt    *time.Time `grove:"activated_at"`
	DeactivatedAt  *time.Time `grove:"deactivated_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toMembershipModel(m *member.Membership) *membershipModel {
	return &membershipModel{
		ID:             m.ID.String(),
		OrganizationID: m.OrganizationID.String(),
		AccountID:      idOrEmpty(m.AccountID),
		Email:          m.Email,
		Role:           string(m.Role),
		Status:         string(m.Status),
		InvitedBy:      idOrEmpty(m.InvitedBy),
		ActivatedAt:    m.ActivatedAt,
		DeactivatedAt:  m.DeactivatedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func fromMembershipModel(m *membershipModel) (*member.Membership, error) {
	memberID, err := id.ParseMembershipID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(m.OrganizationID)
	if err != nil {
		return nil, err
	}
	accountID, err := parseOptionalAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	invitedBy, err := parseOptionalAccountID(m.InvitedBy)
	if err != nil {
		return nil, err
	}

	return &member.Membership{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             memberID,
		OrganizationID: orgID,
		AccountID:      accountID,
		Email:          m.Email,
		Role:           member.Role(m.Role),
		Status:         member.Status(m.Status),
		InvitedBy:      invitedBy,
		ActivatedAt:    m.ActivatedAt,
		DeactivatedAt:  m.DeactivatedAt,
	}, nil
}

// ==================== License models ====================

type licenseModel struct {
	grove.BaseModel `grove:"table:roster_licenses"`

	ID              string     `grove:"id,pk"`
	OrganizationID  string     `grove:"organization_id"`
	Tier            string     `grove:"tier"`
	TotalSeats      int        `grove:"total_seats"`
	UsedSeats       int        `grove:"used_seats"`
	ExpiresAt       time.Time  `grove:"expires_at"`
	PerSeatCents    int64      `grove:"per_seat_cents"`
	PerSeatCurrency string     `grove:"per_seat_currency"`
	ProviderSubRef  string     `grove:"provider_sub_ref"`
	LastRenewedAt   *time.Time `grove:"last_renewed_at"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
}

func toLicenseModel(l *license.License) *licenseModel {
	return &licenseModel{
		ID:              l.ID.String(),
		OrganizationID:  l.OrganizationID.String(),
		Tier:            string(l.Tier),
		TotalSeats:      l.TotalSeats,
		UsedSeats:       l.UsedSeats,
		ExpiresAt:       l.ExpiresAt,
		PerSeatCents:    l.PerSeatPrice.Amount,
		PerSeatCurrency: l.PerSeatPrice.Currency,
		ProviderSubRef:  l.ProviderSubRef,
		LastRenewedAt:   l.LastRenewedAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func fromLicenseModel(m *licenseModel) (*license.License, error) {
	licenseID, err := id.ParseLicenseID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(m.OrganizationID)
	if err != nil {
		return nil, err
	}

	return &license.License{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             licenseID,
		OrganizationID: orgID,
		Tier:           license.Tier(m.Tier),
		TotalSeats:     m.TotalSeats,
		UsedSeats:      m.UsedSeats,
		ExpiresAt:      m.ExpiresAt,
		PerSeatPrice:   types.Money{Amount: m.PerSeatCents, Currency: m.PerSeatCurrency},
		ProviderSubRef: m.ProviderSubRef,
		LastRenewedAt:  m.LastRenewedAt,
	}, nil
}

// ==================== Renewal models ====================

type renewalModel struct {
	grove.BaseModel `grove:"table:roster_renewals"`

	ID             string    `grove:"id,pk"`
	OrganizationID string    `grove:"organization_id"`
	LicenseID      string    `grove:"license_id"`
	Kind           string    `grove:"kind"`
	Seats          int       `grove:"seats"`
	AmountCents    int64     `grove:"amount_cents"`
	AmountCurrency string    `grove:"amount_currency"`
	PreviousExpiry time.Time `grove:"previous_expiry"`
	NewExpiry      time.Time `grove:"new_expiry"`
	ProviderRef    string    `grove:"provider_ref"`
	EventID        string    `grove:"event_id"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toRenewalModel(r *renewal.Record) *renewalModel {
	return &renewalModel{
		ID:             r.ID.String(),
		OrganizationID: r.OrganizationID.String(),
		LicenseID:      r.LicenseID.String(),
		Kind:           string(r.Kind),
		Seats:          r.Seats,
		AmountCents:    r.Amount.Amount,
		AmountCurrency: r.Amount.Currency,
		PreviousExpiry: r.PreviousExpiry,
		NewExpiry:      r.NewExpiry,
		ProviderRef:    r.ProviderRef,
		EventID:        r.EventID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRenewalModel(m *renewalModel) (*renewal.Record, error) {
	renewalID, err := id.ParseRenewalID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(m.OrganizationID)
	if err != nil {
		return nil, err
	}
	licenseID, err := id.ParseLicenseID(m.LicenseID)
	if err != nil {
		return nil, err
	}

	return &renewal.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             renewalID,
		OrganizationID: orgID,
		LicenseID:      licenseID,
		Kind:           renewal.Kind(m.Kind),
		Seats:          m.Seats,
		Amount:         types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		PreviousExpiry: m.PreviousExpiry,
		NewExpiry:      m.NewExpiry,
		ProviderRef:    m.ProviderRef,
		EventID:        m.EventID,
	}, nil
}

// ==================== Reconciliation models ====================

type processedEventModel struct {
	grove.BaseModel `grove:"table:roster_processed_events"`

	EventID     string    `grove:"event_id,pk"`
	ProcessedAt time.Time `grove:"processed_at"`
}

type deadLetterModel struct {
	grove.BaseModel `grove:"table:roster_dead_letters"`

	ID             string    `grove:"id,pk"`
	EventID        string    `grove:"event_id"`
	Kind           string    `grove:"kind"`
	OrganizationID string    `grove:"organization_id"`
	Body           []byte    `grove:"body"`
	Reason         string    `grove:"reason"`
	Attempts       int       `grove:"attempts"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toDeadLetterModel(dl *billing.DeadLetter) *deadLetterModel {
	return &deadLetterModel{
		ID:             dl.ID.String(),
		EventID:        dl.EventID,
		Kind:           string(dl.Kind),
		OrganizationID: idOrEmpty(dl.OrganizationID),
		Body:           dl.Body,
		Reason:         dl.Reason,
		Attempts:       dl.Attempts,
		CreatedAt:      dl.CreatedAt,
		UpdatedAt:      dl.UpdatedAt,
	}
}

func fromDeadLetterModel(m *deadLetterModel) (*billing.DeadLetter, error) {
	dlID, err := id.ParseDeadLetterID(m.ID)
	if err != nil {
		return nil, err
	}
	var orgID id.OrganizationID
	if m.OrganizationID != "" {
		orgID, err = id.ParseOrganizationID(m.OrganizationID)
		if err != nil {
			return nil, err
		}
	}

	return &billing.DeadLetter{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlID,
		EventID:        m.EventID,
		Kind:           billing.Kind(m.Kind),
		OrganizationID: orgID,
		Body:           m.Body,
		Reason:         m.Reason,
		Attempts:       m.Attempts,
	}, nil
}

// ==================== Warning marker models ====================

// One row per (license, class, day). The primary key is the dedupe.
type warningMarkerModel struct {
	grove.BaseModel `grove:"table:roster_warning_markers"`

	LicenseID string    `grove:"license_id,pk"`
	Class     string    `grove:"class,pk"`
	Day       string    `grove:"day,pk"`
	CreatedAt time.Time `grove:"created_at"`
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:roster_accounts"`

	ID        string    `grove:"id,pk"`
	Email     string    `grove:"email"`
	Name      string    `grove:"name"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAccountModel(a *identity.Account) *accountModel {
	return &accountModel{
		ID:        a.ID.String(),
		Email:     a.Email,
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*identity.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	return &identity.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:    accountID,
		Email: m.Email,
		Name:  m.Name,
	}, nil
}

// ==================== Helpers ====================

// idOrEmpty renders a possibly-nil ID as its string form, or "" so the
// column stays a plain empty string instead of a bogus TypeID.
func idOrEmpty(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

func parseOptionalAccountID(s string) (id.AccountID, error) {
	if s == "" {
		return id.AccountID{}, nil
	}
	return id.ParseAccountID(s)
}
