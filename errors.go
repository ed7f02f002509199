package punchcard

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("punchcard: not found")
	ErrAlreadyExists = errors.New("punchcard: already exists")
	ErrInvalidInput  = errors.New("punchcard: invalid input")
	ErrUnauthorized  = errors.New("punchcard: unauthorized")

	// Catalog errors
	ErrDefinitionNotFound = errors.New("punchcard: package definition not found")
	ErrDefinitionInactive = errors.New("punchcard: package definition is inactive")
	ErrNotTransferable    = errors.New("punchcard: definition is not transferable within a group")

	// Member package errors
	ErrPackageNotFound         = errors.New("punchcard: member package not found")
	ErrPackageNotActive        = errors.New("punchcard: member package is not active")
	ErrPackageDepleted         = errors.New("punchcard: cannot cancel a fully depleted package")
	ErrPackageAlreadyCancelled = errors.New("punchcard: member package already cancelled")
	ErrInvalidUnits            = errors.New("punchcard: invalid unit count")

	// Billing group errors
	ErrGroupNotFound = errors.New("punchcard: billing group not found")

	// Payment / refund errors
	ErrIntentNotFound  = errors.New("punchcard: payment intent not found")
	ErrInvoiceNotFound = errors.New("punchcard: invoice not found")
	ErrInvalidRefund   = errors.New("punchcard: invalid refund amount")
	ErrOverRefund      = errors.New("punchcard: refund exceeds refundable balance")

	// External processor errors
	ErrProcessorNotConfigured = errors.New("punchcard: no payment processor configured")
	ErrProcessorFailure       = errors.New("punchcard: payment processor call failed")
	// ErrProcessorOutcomeUnknown marks an external call whose outcome could
	// not be determined (e.g. timeout after the request was sent). It must
	// never be blind-retried: the refund may already have happened.
	ErrProcessorOutcomeUnknown = errors.New("punchcard: payment processor outcome unknown")

	// ErrRefundNotRecorded marks the case where the external refund
	// succeeded but the local ledger update failed. It is always joined
	// with the underlying cause and never swallowed: money has moved that
	// the ledger does not yet reflect.
	ErrRefundNotRecorded = errors.New("punchcard: refund succeeded externally but was not recorded locally")

	// Reconciliation errors
	ErrReconciliationNotFound = errors.New("punchcard: reconciliation record not found")
	ErrReconciliationResolved = errors.New("punchcard: reconciliation record already resolved")

	// Store errors
	ErrTxnConflict = errors.New("punchcard: transaction conflict")
	ErrStoreClosed = errors.New("punchcard: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("punchcard: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrIntentNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrReconciliationNotFound)
}

// IsInvalidState returns true if the error is a state-machine or
// validation rejection that must not be retried.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDefinitionInactive) ||
		errors.Is(err, ErrNotTransferable) ||
		errors.Is(err, ErrPackageNotActive) ||
		errors.Is(err, ErrPackageDepleted) ||
		errors.Is(err, ErrPackageAlreadyCancelled) ||
		errors.Is(err, ErrInvalidUnits) ||
		errors.Is(err, ErrInvalidRefund) ||
		errors.Is(err, ErrOverRefund) ||
		errors.Is(err, ErrReconciliationResolved)
}

// IsConflict returns true for optimistic transaction collisions. The whole
// calling operation may be retried a bounded number of times.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTxnConflict)
}

// IsRetryable returns true if the operation can safely be re-issued: the
// conflict lost a race, or the processor definitively failed before any
// money moved.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrProcessorOutcomeUnknown) || errors.Is(err, ErrRefundNotRecorded) {
		return false
	}
	return errors.Is(err, ErrTxnConflict) || errors.Is(err, ErrProcessorFailure)
}

// IsReconciliationFailure returns true if an external money movement
// succeeded (or may have) without a matching local record. Callers should
// surface a distinct "partially failed, support will follow up" message.
func IsReconciliationFailure(err error) bool {
	return errors.Is(err, ErrRefundNotRecorded) || errors.Is(err, ErrProcessorOutcomeUnknown)
}
