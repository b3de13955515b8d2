/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As; the HTTP layer maps the
  categories to status codes.

ERROR CATEGORIES:
  1. Validation - malformed or out-of-range input, rejected before any work
  2. Inconsistency - valid input that contradicts known ledger state;
     surfaced to the caller, never auto-corrected
  3. Not found - referenced rows missing from a store

Degenerate-but-valid input (zero rate, empty template list, no accounts,
zero projection months) is never an error.
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInconsistent is the root of every inconsistency failure.
	ErrInconsistent = errors.New("inconsistent with ledger state")

	ErrAccountNotFound     = errors.New("account not found")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrSeriesNotFound      = errors.New("series not found")
	ErrLoanNotFound        = errors.New("loan plan not found")
	ErrInstallmentNotFound = errors.New("loan installment not found")

	// ErrDuplicateExternalID is returned when an imported line was already
	// recorded for the account.
	ErrDuplicateExternalID = errors.New("duplicate external id")
)

// Inconsistency codes.
const (
	CodeSettlementBeforeActivity = "settlement_before_activity"
	CodeUnknownRecurrence        = "unknown_recurrence"
	CodeAlreadySettled           = "already_settled"
	CodeNotCreditCard            = "not_credit_card"
	CodeNothingDue               = "nothing_due"
	CodeOwnerMismatch            = "owner_mismatch"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InconsistencyError describes input that contradicts the ledger.
type InconsistencyError struct {
	Code    string
	Message string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InconsistencyError) Unwrap() error { return ErrInconsistent }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInconsistent) ||
		errors.Is(err, ErrDuplicateExternalID)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrSeriesNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}
