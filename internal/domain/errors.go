package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means a concurrent writer already holds the open order for this owner.
	ErrConflict = errors.New("conflicting open order")
)

type ValidationCode string

const (
	InvalidCart       ValidationCode = "InvalidCart"
	InvalidAddress    ValidationCode = "InvalidAddress"
	UnresolvablePrice ValidationCode = "UnresolvablePrice"
	InvalidLine       ValidationCode = "InvalidLine"
)

// ValidationError is surfaced verbatim and never retried.
type ValidationError struct {
	Code   ValidationCode
	Reason string
}

func NewValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return string(e.Code) + ": " + e.Reason
}

// TransientStorageError wraps a storage or transport failure that is safe to retry.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// Transient wraps err unless it is nil or already a domain outcome.
func Transient(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	var te *TransientStorageError
	if errors.As(err, &te) {
		return err
	}
	return &TransientStorageError{Op: op, Err: err}
}

// MergeFailure reports an unconfirmed guest cart merge. The anonymous token is kept.
type MergeFailure struct {
	AnonymousToken string
	Err            error
}

func (e *MergeFailure) Error() string {
	return fmt.Sprintf("guest cart merge failed: %v", e.Err)
}

func (e *MergeFailure) Unwrap() error { return e.Err }

// CheckoutFailed is returned when the create sequence failed after cleanup ran.
type CheckoutFailed struct {
	Err error
}

func (e *CheckoutFailed) Error() string {
	return fmt.Sprintf("checkout failed: %v", e.Err)
}

func (e *CheckoutFailed) Unwrap() error { return e.Err }
