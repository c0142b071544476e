// Package license defines the seat ledger and its derived status.
//
// The license row is the single source of truth for seat capacity.
// Core invariant: 0 <= UsedSeats <= TotalSeats at every observable
// moment. Stores enforce it with single-statement conditional updates,
// never with read-modify-write.
package license

import (
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// GracePeriod is how long after expiry a license keeps renewing from
// its original expiry date instead of being treated as a fresh purchase.
const GracePeriod = 30 * 24 * time.Hour

// Tier identifies the commercial class of a license.
type Tier string

const (
	TierTrial    Tier = "trial"
	TierStandard Tier = "standard"
	TierBusiness Tier = "business"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	return t == TierTrial || t == TierStandard || t == TierBusiness
}

// License is one organization's seat ledger entry.
type License struct {
	types.Entity
	ID             id.LicenseID      `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	Tier           Tier              `json:"tier"`
	TotalSeats     int               `json:"total_seats"`
	UsedSeats      int               `json:"used_seats"`
	ExpiresAt      time.Time         `json:"expires_at"`
	PerSeatPrice   types.Money       `json:"per_seat_price"`
	ProviderSubRef string            `json:"provider_sub_ref,omitempty"`
	LastRenewedAt  *time.Time        `json:"last_renewed_at,omitempty"`
}

// AvailableSeats returns how many seats remain unassigned.
func (l *License) AvailableSeats() int {
	return l.TotalSeats - l.UsedSeats
}

// Status is the derived lifecycle state of a license.
type Status string

const (
	StatusActive      Status = "active"
	StatusExpiring    Status = "expiring"
	StatusGracePeriod Status = "grace_period"
	StatusExpired     Status = "expired"
)

// Severity ranks how urgently a license status needs attention.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// WarningClass buckets expiry proximity for deduplicated notifications.
// One notification per class per license per day.
type WarningClass string

const (
	Warning30Days WarningClass = "30_days"
	Warning14Days WarningClass = "14_days"
	Warning7Days  WarningClass = "7_days"
	Warning1Day   WarningClass = "1_day"
	WarningLapsed WarningClass = "expired"
)

// StatusInfo is the full derived view of a license at an instant.
type StatusInfo struct {
	Status        Status       `json:"status"`
	Severity      Severity     `json:"severity"`
	DaysRemaining int          `json:"days_remaining"`
	InGrace       bool         `json:"in_grace"`
	GraceEndsAt   *time.Time   `json:"grace_ends_at,omitempty"`
	Warning       WarningClass `json:"warning,omitempty"`
}

// StatusAt derives the license status at the given instant.
//
// Within 30 days of expiry the license is "expiring". After expiry it
// stays in "grace_period" for GracePeriod, then becomes "expired".
// DaysRemaining counts whole days until expiry, negative once lapsed.
func (l *License) StatusAt(now time.Time) StatusInfo {
	until := l.ExpiresAt.Sub(now)
	days := int(until.Hours() / 24)
	if until < 0 {
		// Round away from zero so "expired 1 hour ago" reads as -1 day.
		days = -int((-until + 23*time.Hour) / (24 * time.Hour))
	}

	info := StatusInfo{DaysRemaining: days}

	switch {
	case until < 0:
		graceEnd := l.ExpiresAt.Add(GracePeriod)
		if now.Before(graceEnd) {
			info.Status = StatusGracePeriod
			info.Severity = SeverityCritical
			info.InGrace = true
			info.GraceEndsAt = &graceEnd
		} else {
			info.Status = StatusExpired
			info.Severity = SeverityCritical
		}
		info.Warning = WarningLapsed
	case until <= 30*24*time.Hour:
		info.Status = StatusExpiring
		switch {
		case until <= 24*time.Hour:
			info.Severity = SeverityCritical
			info.Warning = Warning1Day
		case until <= 7*24*time.Hour:
			info.Severity = SeverityWarning
			info.Warning = Warning7Days
		case until <= 14*24*time.Hour:
			info.Severity = SeverityWarning
			info.Warning = Warning14Days
		default:
			info.Severity = SeverityInfo
			info.Warning = Warning30Days
		}
	default:
		info.Status = StatusActive
		info.Severity = SeverityNone
	}

	return info
}
