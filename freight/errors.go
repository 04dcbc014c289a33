/*
errors.go - Centralized error types for the freight engine

PURPOSE:
  All error kinds in one place. Every error returned by the engine carries a
  machine-checkable kind (see Kind) and a human-readable message.

ERROR KINDS:
  validation          One or more field violations, all collected
  not_found           Referenced id absent
  invalid_transition  Illegal trip status change
  precondition        Entity not in the required state (e.g. unsaved trip)
  conflict            Uniqueness or restrict-delete violation
  timeout             Unit of work exceeded its deadline (rolled back)
  storage             Opaque failure from the repository

USAGE:
  Structured errors unwrap to a sentinel, so callers can use either style:

    if errors.Is(err, freight.ErrNotFound) { ... }

    var verr *freight.ValidationError
    if errors.As(err, &verr) {
        for _, v := range verr.Violations { ... }
    }

SEE ALSO:
  - validation.go: builds ValidationError
  - outcome.go: converts errors into notification outcomes
*/
package freight

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPrecondition      = errors.New("precondition failed")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("operation timed out")
	ErrStorage           = errors.New("storage failure")
)

// Kind is the machine-checkable category of an error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindPrecondition      Kind = "precondition"
	KindConflict          Kind = "conflict"
	KindTimeout           Kind = "timeout"
	KindStorage           Kind = "storage"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldViolation is a single failed field constraint.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every violated field, not just the first one.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
func (e *ValidationError) Kind() Kind    { return KindValidation }

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
func (e *NotFoundError) Kind() Kind    { return KindNotFound }

// InvalidTransitionError is returned when a trip status change is not in
// the transition table.
type InvalidTransitionError struct {
	From TripStatus
	To   TripStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid trip status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
func (e *InvalidTransitionError) Kind() Kind    { return KindInvalidTransition }

// PreconditionError describes why an entity is not in the required state.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition failed: " + e.Reason }
func (e *PreconditionError) Unwrap() error { return ErrPrecondition }
func (e *PreconditionError) Kind() Kind    { return KindPrecondition }

// ConflictError covers unique-constraint and restrict-delete violations.
type ConflictError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s conflict on %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
func (e *ConflictError) Kind() Kind    { return KindConflict }

// TimeoutError is returned after a unit of work was rolled back because its
// deadline passed.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return e.Op + ": operation timed out" }
func (e *TimeoutError) Unwrap() error { return ErrTimeout }
func (e *TimeoutError) Kind() Kind    { return KindTimeout }

// StorageError wraps an opaque repository failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
func (e *StorageError) Kind() Kind      { return KindStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind of err, or "" for nil. Errors that carry no kind
// are reported as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindStorage
}

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInvalidTransition, KindPrecondition, KindConflict:
		return true
	}
	return false
}

// storageErr classifies an error coming out of a Store call. Errors that
// already carry a kind pass through untouched; deadline errors become
// TimeoutError; everything else is wrapped as StorageError.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op}
	}
	return &StorageError{Op: op, Err: err}
}
