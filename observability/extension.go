// Package observability provides a metrics extension for Roster that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/roster/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnOrganizationCreated = (*MetricsExtension)(nil)
	_ plugin.OnTrialConverted      = (*MetricsExtension)(nil)
	_ plugin.OnTrialCleaned        = (*MetricsExtension)(nil)
	_ plugin.OnMemberInvited       = (*MetricsExtension)(nil)
	_ plugin.OnMemberAccepted      = (*MetricsExtension)(nil)
	_ plugin.OnMemberRemoved       = (*MetricsExtension)(nil)
	_ plugin.OnSeatLimitExceeded   = (*MetricsExtension)(nil)
	_ plugin.OnLicenseRenewed      = (*MetricsExtension)(nil)
	_ plugin.OnExpiryWarning       = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseConfirmed   = (*MetricsExtension)(nil)
	_ plugin.OnSeatsReconciled     = (*MetricsExtension)(nil)
	_ plugin.OnEventDeadLettered   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Roster plugin to automatically track seat and
// membership metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Organization metrics
	OrganizationsCreated Counter
	TrialsConverted      Counter
	TrialsCleaned        Counter

	// Membership metrics
	MembersInvited  Counter
	MembersAccepted Counter
	MembersRemoved  Counter
	SeatLimitHits   Counter
	SeatUtilization Histogram

	// License metrics
	LicensesRenewed Counter
	ExpiryWarnings  Counter

	// Reconciliation metrics
	WebhooksReceived   Counter
	PurchasesConfirmed Counter
	SeatsReconciled    Counter
	EventsDeadLettered Counter
	WebhookPayloadSize Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Organization metrics
		OrganizationsCreated: factory.Counter("roster.organization.created"),
		TrialsConverted:      factory.Counter("roster.trial.converted"),
		TrialsCleaned:        factory.Counter("roster.trial.cleaned"),

		// Membership metrics
		MembersInvited:  factory.Counter("roster.member.invited"),
		MembersAccepted: factory.Counter("roster.member.accepted"),
		MembersRemoved:  factory.Counter("roster.member.removed"),
		SeatLimitHits:   factory.Counter("roster.seat_limit.exceeded"),
		SeatUtilization: factory.Histogram("roster.seats.utilization"),

		// License metrics
		LicensesRenewed: factory.Counter("roster.license.renewed"),
		ExpiryWarnings:  factory.Counter("roster.license.expiry_warnings"),

		// Reconciliation metrics
		WebhooksReceived:   factory.Counter("roster.webhook.received"),
		PurchasesConfirmed: factory.Counter("roster.purchase.confirmed"),
		SeatsReconciled:    factory.Counter("roster.seats.reconciled"),
		EventsDeadLettered: factory.Counter("roster.event.dead_lettered"),
		WebhookPayloadSize: factory.Histogram("roster.webhook.payload_bytes"),

		// Error metrics
		StoreErrors:  factory.Counter("roster.store.errors"),
		PluginErrors: factory.Counter("roster.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Organization lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (m *MetricsExtension) OnOrganizationCreated(_ context.Context, _ interface{}) error {
	m.OrganizationsCreated.Inc()
	return nil
}

// OnTrialConverted implements plugin.OnTrialConverted.
func (m *MetricsExtension) OnTrialConverted(_ context.Context, _ interface{}) error {
	m.TrialsConverted.Inc()
	return nil
}

// OnTrialCleaned implements plugin.OnTrialCleaned.
func (m *MetricsExtension) OnTrialCleaned(_ context.Context, _ string) error {
	m.TrialsCleaned.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Membership lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberInvited implements plugin.OnMemberInvited.
func (m *MetricsExtension) OnMemberInvited(_ context.Context, _ interface{}) error {
	m.MembersInvited.Inc()
	return nil
}

// OnMemberAccepted implements plugin.OnMemberAccepted.
func (m *MetricsExtension) OnMemberAccepted(_ context.Context, _ interface{}) error {
	m.MembersAccepted.Inc()
	return nil
}

// OnMemberRemoved implements plugin.OnMemberRemoved.
func (m *MetricsExtension) OnMemberRemoved(_ context.Context, _ interface{}) error {
	m.MembersRemoved.Inc()
	return nil
}

// OnSeatLimitExceeded implements plugin.OnSeatLimitExceeded.
func (m *MetricsExtension) OnSeatLimitExceeded(_ context.Context, _ string, total, used int) error {
	m.SeatLimitHits.Inc()
	if total > 0 {
		m.SeatUtilization.Observe(float64(used) / float64(total))
	}
	return nil
}

// ──────────────────────────────────────────────────
// License lifecycle hooks
// ──────────────────────────────────────────────────

// OnLicenseRenewed implements plugin.OnLicenseRenewed.
func (m *MetricsExtension) OnLicenseRenewed(_ context.Context, _ interface{}) error {
	m.LicensesRenewed.Inc()
	return nil
}

// OnExpiryWarning implements plugin.OnExpiryWarning.
func (m *MetricsExtension) OnExpiryWarning(_ context.Context, _ interface{}, _ interface{}) error {
	m.ExpiryWarnings.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _ string, payload []byte) error {
	m.WebhooksReceived.Inc()
	m.WebhookPayloadSize.Observe(float64(len(payload)))
	return nil
}

// OnPurchaseConfirmed implements plugin.OnPurchaseConfirmed.
func (m *MetricsExtension) OnPurchaseConfirmed(_ context.Context, _ interface{}) error {
	m.PurchasesConfirmed.Inc()
	return nil
}

// OnSeatsReconciled implements plugin.OnSeatsReconciled.
func (m *MetricsExtension) OnSeatsReconciled(_ context.Context, _ interface{}) error {
	m.SeatsReconciled.Inc()
	return nil
}

// OnEventDeadLettered implements plugin.OnEventDeadLettered.
func (m *MetricsExtension) OnEventDeadLettered(_ context.Context, _ interface{}) error {
	m.EventsDeadLettered.Inc()
	return nil
}
