package audithook

// Action constants for audit events.
const (
	// Organization actions
	ActionOrganizationCreated = "organization.created"
	ActionTrialConverted      = "trial.converted"
	ActionTrialCleaned        = "trial.cleaned"

	// Membership actions
	ActionMemberInvited     = "member.invited"
	ActionMemberAccepted    = "member.accepted"
	ActionMemberRemoved     = "member.removed"
	ActionSeatLimitExceeded = "seat_limit.exceeded"

	// License actions
	ActionLicenseRenewed = "license.renewed"
	ActionExpiryWarning  = "license.expiry_warning"

	// Reconciliation actions
	ActionWebhookReceived   = "webhook.received"
	ActionPurchaseConfirmed = "purchase.confirmed"
	ActionSeatsReconciled   = "seats.reconciled"
	ActionEventDeadLettered = "event.dead_lettered"
)

// Resource constants for audit events.
const (
	ResourceOrganization = "organization"
	ResourceMembership   = "membership"
	ResourceLicense      = "license"
	ResourceWebhook      = "webhook"
	ResourceEvent        = "event"
)

// Category constants for audit events.
const (
	CategoryTenancy     = "tenancy"
	CategoryAccess      = "access"
	CategoryLicensing   = "licensing"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
