package roster

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("roster: not found")
	ErrAlreadyExists = errors.New("roster: already exists")
	ErrInvalidInput  = errors.New("roster: invalid input")
	ErrUnauthorized  = errors.New("roster: unauthorized")
	ErrForbidden     = errors.New("roster: forbidden")

	// Organization errors
	ErrOrganizationNotFound = errors.New("roster: organization not found")
	ErrOrganizationExists   = errors.New("roster: organization already exists")
	ErrNotTrialOrganization = errors.New("roster: organization is not a trial")
	ErrTrialExpired         = errors.New("roster: trial period has expired")

	// Membership errors
	ErrMembershipNotFound    = errors.New("roster: membership not found")
	ErrAlreadyMember         = errors.New("roster: already an active member")
	ErrInvitationPending     = errors.New("roster: invitation already pending")
	ErrInvitationNotFound    = errors.New("roster: no pending invitation")
	ErrMembershipInactive    = errors.New("roster: membership is inactive")
	ErrInvalidTransition     = errors.New("roster: invalid membership transition")
	ErrCannotRemoveOwner     = errors.New("roster: organization owner cannot be removed")
	ErrAdminRequired         = errors.New("roster: admin role required")
	ErrMemberOfOther         = errors.New("roster: account is an active member of another organization")
	ErrAccountNotFound       = errors.New("roster: account not found")
	ErrMembershipConcurrency = errors.New("roster: membership changed concurrently")

	// License errors
	ErrLicenseNotFound    = errors.New("roster: license not found")
	ErrLicenseExists      = errors.New("roster: license already exists")
	ErrLicenseExpired     = errors.New("roster: license is expired")
	ErrSeatLimitExceeded  = errors.New("roster: seat limit exceeded")
	ErrSeatsBelowUsed     = errors.New("roster: total seats below used seats")
	ErrInvalidSeatCount   = errors.New("roster: invalid seat count")
	ErrUnknownLicenseTier = errors.New("roster: unknown license tier")

	// Reconciliation errors
	ErrEventAlreadyProcessed = errors.New("roster: billing event already processed")
	ErrEventMalformed        = errors.New("roster: billing event malformed")
	ErrEventUnknownKind      = errors.New("roster: unknown billing event kind")
	ErrEventDeadLettered     = errors.New("roster: billing event dead-lettered")
	ErrDeadLetterNotFound    = errors.New("roster: dead letter not found")
	ErrSignatureInvalid      = errors.New("roster: webhook signature invalid")

	// Provider errors
	ErrProviderUnavailable   = errors.New("roster: billing provider unavailable")
	ErrProviderRejected      = errors.New("roster: billing provider rejected request")
	ErrProviderNotConfigured = errors.New("roster: billing provider not configured")

	// Store errors
	ErrStoreNotReady     = errors.New("roster: store not ready")
	ErrStoreClosed       = errors.New("roster: store is closed")
	ErrTransactionFailed = errors.New("roster: transaction failed")
	ErrMigrationFailed   = errors.New("roster: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("roster: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "roster: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("roster: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrInvitationNotFound) ||
		errors.Is(err, ErrLicenseNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrDeadLetterNotFound)
}

// IsConflict returns true if the error is a uniqueness or state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrOrganizationExists) ||
		errors.Is(err, ErrAlreadyMember) ||
		errors.Is(err, ErrInvitationPending) ||
		errors.Is(err, ErrLicenseExists) ||
		errors.Is(err, ErrEventAlreadyProcessed) ||
		errors.Is(err, ErrMembershipConcurrency)
}

// IsCapacity returns true if the error is related to seat capacity.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrSeatLimitExceeded) ||
		errors.Is(err, ErrSeatsBelowUsed) ||
		errors.Is(err, ErrInvalidSeatCount)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrMembershipConcurrency)
}
