// Package audithook bridges Roster lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/roster/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnOrganizationCreated = (*Extension)(nil)
	_ plugin.OnTrialConverted      = (*Extension)(nil)
	_ plugin.OnTrialCleaned        = (*Extension)(nil)
	_ plugin.OnMemberInvited       = (*Extension)(nil)
	_ plugin.OnMemberAccepted      = (*Extension)(nil)
	_ plugin.OnMemberRemoved       = (*Extension)(nil)
	_ plugin.OnSeatLimitExceeded   = (*Extension)(nil)
	_ plugin.OnLicenseRenewed      = (*Extension)(nil)
	_ plugin.OnExpiryWarning       = (*Extension)(nil)
	_ plugin.OnWebhookReceived     = (*Extension)(nil)
	_ plugin.OnPurchaseConfirmed   = (*Extension)(nil)
	_ plugin.OnSeatsReconciled     = (*Extension)(nil)
	_ plugin.OnEventDeadLettered   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audithook package does not import Chronicle directly; callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Roster lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Organization lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (e *Extension) OnOrganizationCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionOrganizationCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrganization, "", CategoryTenancy, nil,
		"event", "organization_created",
	)
}

// OnTrialConverted implements plugin.OnTrialConverted.
func (e *Extension) OnTrialConverted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionTrialConverted, SeverityInfo, OutcomeSuccess,
		ResourceOrganization, "", CategoryTenancy, nil,
		"event", "trial_converted",
	)
}

// OnTrialCleaned implements plugin.OnTrialCleaned.
func (e *Extension) OnTrialCleaned(ctx context.Context, orgID string) error {
	return e.record(ctx, ActionTrialCleaned, SeverityWarning, OutcomeSuccess,
		ResourceOrganization, orgID, CategoryTenancy, nil,
		"organization_id", orgID,
	)
}

// ──────────────────────────────────────────────────
// Membership lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberInvited implements plugin.OnMemberInvited.
func (e *Extension) OnMemberInvited(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionMemberInvited, SeverityInfo, OutcomeSuccess,
		ResourceMembership, "", CategoryAccess, nil,
		"event", "member_invited",
	)
}

// OnMemberAccepted implements plugin.OnMemberAccepted.
func (e *Extension) OnMemberAccepted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionMemberAccepted, SeverityInfo, OutcomeSuccess,
		ResourceMembership, "", CategoryAccess, nil,
		"event", "member_accepted",
	)
}

// OnMemberRemoved implements plugin.OnMemberRemoved.
func (e *Extension) OnMemberRemoved(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionMemberRemoved, SeverityInfo, OutcomeSuccess,
		ResourceMembership, "", CategoryAccess, nil,
		"event", "member_removed",
	)
}

// OnSeatLimitExceeded implements plugin.OnSeatLimitExceeded.
func (e *Extension) OnSeatLimitExceeded(ctx context.Context, orgID string, total, used int) error {
	return e.record(ctx, ActionSeatLimitExceeded, SeverityWarning, OutcomeFailure,
		ResourceLicense, orgID, CategoryLicensing, nil,
		"organization_id", orgID,
		"total_seats", total,
		"used_seats", used,
	)
}

// ──────────────────────────────────────────────────
// License lifecycle hooks
// ──────────────────────────────────────────────────

// OnLicenseRenewed implements plugin.OnLicenseRenewed.
func (e *Extension) OnLicenseRenewed(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionLicenseRenewed, SeverityInfo, OutcomeSuccess,
		ResourceLicense, "", CategoryLicensing, nil,
		"event", "license_renewed",
	)
}

// OnExpiryWarning implements plugin.OnExpiryWarning.
func (e *Extension) OnExpiryWarning(ctx context.Context, _ interface{}, _ interface{}) error {
	return e.record(ctx, ActionExpiryWarning, SeverityWarning, OutcomeSuccess,
		ResourceLicense, "", CategoryLicensing, nil,
		"event", "expiry_warning",
	)
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (e *Extension) OnWebhookReceived(ctx context.Context, provider string, payload []byte) error {
	return e.record(ctx, ActionWebhookReceived, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, "", CategoryIntegration, nil,
		"provider", provider,
		"payload_bytes", len(payload),
	)
}

// OnPurchaseConfirmed implements plugin.OnPurchaseConfirmed.
func (e *Extension) OnPurchaseConfirmed(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionPurchaseConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryIntegration, nil,
		"event", "purchase_confirmed",
	)
}

// OnSeatsReconciled implements plugin.OnSeatsReconciled.
func (e *Extension) OnSeatsReconciled(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSeatsReconciled, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryIntegration, nil,
		"event", "seats_reconciled",
	)
}

// OnEventDeadLettered implements plugin.OnEventDeadLettered.
func (e *Extension) OnEventDeadLettered(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionEventDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceEvent, "", CategoryIntegration, nil,
		"event", "event_dead_lettered",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
