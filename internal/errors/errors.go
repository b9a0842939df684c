package errors

import (
	"errors"
	"fmt"
)

// Domain errors for the ledger update service
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountAlreadyExists    = errors.New("account already exists")
	ErrAccountArchived         = errors.New("account is archived")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInsufficientShares      = errors.New("insufficient shares")
	ErrAlreadyApplied          = errors.New("adjustment already applied")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrConflictingFinalization = errors.New("conflicting finalization")
	ErrEntryNotFound           = errors.New("ledger entry not found")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrLoanNotFound            = errors.New("loan application not found")
	ErrInvalidLoanTransition   = errors.New("invalid loan status transition")
	ErrPaymentRequestNotFound  = errors.New("payment request not found or expired")
	ErrLockNotAcquired         = errors.New("lock not acquired")
)

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapValidationError keeps a domain sentinel reachable through errors.Is.
func WrapValidationError(field string, cause error) error {
	return &ValidationError{
		Field:   field,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// Unavailable marks a transport or driver failure as transient.
func Unavailable(operation string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, operation, cause)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrLoanNotFound) || errors.Is(err, ErrPaymentRequestNotFound)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAccountAlreadyExists)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}
