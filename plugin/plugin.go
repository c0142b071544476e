// Package plugin provides an extensible plugin system for Roster.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, r interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Organization lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated is called when an organization is provisioned,
// including automatic trial provisioning on first login.
type OnOrganizationCreated interface {
	Plugin
	OnOrganizationCreated(ctx context.Context, o interface{}) error
}

// OnTrialConverted is called when a trial organization converts to paid.
type OnTrialConverted interface {
	Plugin
	OnTrialConverted(ctx context.Context, o interface{}) error
}

// OnTrialCleaned is called when an expired trial organization is removed.
type OnTrialCleaned interface {
	Plugin
	OnTrialCleaned(ctx context.Context, orgID string) error
}

// ──────────────────────────────────────────────────
// Membership lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberInvited is called when an invitation is issued.
type OnMemberInvited interface {
	Plugin
	OnMemberInvited(ctx context.Context, m interface{}) error
}

// OnMemberAccepted is called when an invitation is accepted.
type OnMemberAccepted interface {
	Plugin
	OnMemberAccepted(ctx context.Context, m interface{}) error
}

// OnMemberRemoved is called when a member is deactivated.
type OnMemberRemoved interface {
	Plugin
	OnMemberRemoved(ctx context.Context, m interface{}) error
}

// OnSeatLimitExceeded is called when a seat reservation fails because
// the license is full.
type OnSeatLimitExceeded interface {
	Plugin
	OnSeatLimitExceeded(ctx context.Context, orgID string, total, used int) error
}

// ──────────────────────────────────────────────────
// License lifecycle hooks
// ──────────────────────────────────────────────────

// OnLicenseRenewed is called after a renewal is applied to the license.
type OnLicenseRenewed interface {
	Plugin
	OnLicenseRenewed(ctx context.Context, record interface{}) error
}

// OnExpiryWarning is called when an expiry warning fires for a license.
// Deduplication has already happened; each call is a deliverable warning.
type OnExpiryWarning interface {
	Plugin
	OnExpiryWarning(ctx context.Context, l interface{}, info interface{}) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived is called when a webhook envelope is accepted,
// before the event is applied.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, provider string, payload []byte) error
}

// OnPurchaseConfirmed is called after a purchase event is applied.
type OnPurchaseConfirmed interface {
	Plugin
	OnPurchaseConfirmed(ctx context.Context, ev interface{}) error
}

// OnSeatsReconciled is called after a seat-total event is applied.
type OnSeatsReconciled interface {
	Plugin
	OnSeatsReconciled(ctx context.Context, ev interface{}) error
}

// OnEventDeadLettered is called when a billing event is parked in the
// dead-letter queue.
type OnEventDeadLettered interface {
	Plugin
	OnEventDeadLettered(ctx context.Context, dl interface{}) error
}
