package renewal

import (
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// Record is one immutable entry in the renewal history. Records are
// append-only; corrections happen as new records, never as edits.
type Record struct {
	types.Entity
	ID             id.RenewalID      `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	LicenseID      id.LicenseID      `json:"license_id"`
	Kind           Kind              `json:"kind"`
	Seats          int               `json:"seats"`
	Amount         types.Money       `json:"amount"`
	PreviousExpiry time.Time         `json:"previous_expiry"`
	NewExpiry      time.Time         `json:"new_expiry"`
	ProviderRef    string            `json:"provider_ref,omitempty"`
	EventID        string            `json:"event_id,omitempty"`
}
