package license

import (
	"context"
	"time"

	"github.com/xraph/roster/id"
)

type Store interface {
	Create(ctx context.Context, l *License) error
	Get(ctx context.Context, licenseID id.LicenseID) (*License, error)
	GetByOrganization(ctx context.Context, orgID id.OrganizationID) (*License, error)
	Update(ctx context.Context, l *License) error

	// IncrementUsedSeats reserves one seat as a single conditional update
	// (used_seats < total_seats). Returns a capacity error when the
	// license is full. This is the only way a seat gets taken.
	IncrementUsedSeats(ctx context.Context, licenseID id.LicenseID) error
	// DecrementUsedSeats releases one seat, never dropping below the floor.
	// The floor is 1 while the owner remains a member, 0 when releasing a
	// reservation that never became a membership.
	DecrementUsedSeats(ctx context.Context, licenseID id.LicenseID, floor int) error
	// SetTotalSeats updates capacity as a single conditional update
	// (new total >= used_seats). Returns a capacity error otherwise.
	SetTotalSeats(ctx context.Context, licenseID id.LicenseID, total int) error
	// SetExpiry moves the expiry date and records the renewal instant.
	SetExpiry(ctx context.Context, licenseID id.LicenseID, expiresAt, renewedAt time.Time) error

	// ListExpiringBefore returns licenses whose expiry falls before the
	// cutoff, for the notification sweeper.
	ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*License, error)
	// MarkWarningSent records that a warning of the given class went out
	// for the license on the given day. Returns a conflict error when the
	// marker already exists, which is how notification dedupe works.
	MarkWarningSent(ctx context.Context, licenseID id.LicenseID, class WarningClass, day time.Time) error
}
