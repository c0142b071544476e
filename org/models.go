// Package org defines the organization (tenant) model.
package org

import (
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// DefaultTrialWindow is how long a newly provisioned trial organization
// stays valid before its license expires.
const DefaultTrialWindow = 14 * 24 * time.Hour

// Organization is the tenant entity every membership and license hangs off.
// Trial organizations are provisioned automatically on first login and
// either convert to paid on purchase confirmation or get cleaned up.
type Organization struct {
	types.Entity
	ID             id.OrganizationID `json:"id"`
	Name           string            `json:"name"`
	OwnerAccountID id.AccountID      `json:"owner_account_id"`
	IsTrial        bool              `json:"is_trial"`
	TrialExpiresAt *time.Time        `json:"trial_expires_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TrialExpired reports whether the trial window has lapsed at the given
// instant. Always false for converted (non-trial) organizations.
func (o *Organization) TrialExpired(now time.Time) bool {
	if !o.IsTrial || o.TrialExpiresAt == nil {
		return false
	}
	return now.After(*o.TrialExpiresAt)
}
