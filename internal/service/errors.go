package service

import (
	"errors"
	"fmt"

	"kasirkoperasi/backend/internal/store"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrInconsistentState  = errors.New("inconsistent ledger state")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrNotFound, store.ErrNotFound}
}

type InsufficientStockError struct {
	ProductID string
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type InsufficientFundsError struct {
	AvailableCents int64
	RequestedCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient cash: available %d, requested %d", e.AvailableCents, e.RequestedCents)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// InconsistencyError reports stored data that breaks a ledger invariant.
// Retrying cannot help; the data has to be repaired.
type InconsistencyError struct {
	ProductID string
	BatchID   string
	Reason    string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("product %s / batch %s: %s", e.ProductID, e.BatchID, e.Reason)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistentState
}

// TransactionAbortedError reports a storage failure inside an atomic group.
// Nothing from the group was committed.
type TransactionAbortedError struct {
	Op    string
	Cause error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("%s aborted: %v", e.Op, e.Cause)
}

func (e *TransactionAbortedError) Unwrap() []error {
	return []error{ErrTransactionAborted, e.Cause}
}

// IsRetryable reports whether repeating the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}

// IsClientError reports whether the caller's input or the current ledger
// state rejected the call.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds)
}

func isDomainError(err error) bool {
	return IsClientError(err) || errors.Is(err, ErrTransactionAborted) || errors.Is(err, ErrInconsistentState)
}
