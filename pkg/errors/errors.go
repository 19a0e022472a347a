// Package errors provides structured error types for the peerreg discovery library.
// It defines error categories (Unavailable, Transient, NotFound, InvalidInput,
// Unauthorized) that enable consistent error handling across registry tiers.
//
// Example usage:
//
//	if err := store.Touch(ctx, name, env); err != nil {
//	    return errors.NewTransient("heartbeat write failed", err)
//	}
//
//	if svc == nil {
//	    return errors.NewNotFound("service", name)
//	}
package errors

import (
	"fmt"
)

// UnavailableError represents a registry backend that cannot be reached at all.
// Examples: connection refused, dial timeout, no store configured. The resolver
// responds to it by falling through to the next tier.
type UnavailableError struct {
	backend string
	msg     string
	cause   error
}

// NewUnavailable creates a new unavailable error for the given backend with an
// optional cause. The backend names the tier that could not be reached, such as
// "postgres", "remote" or "redis".
func NewUnavailable(backend, msg string, cause error) error {
	return &UnavailableError{backend: backend, msg: msg, cause: cause}
}

func (e *UnavailableError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s unavailable: %s (%v)", e.backend, e.msg, e.cause)
	}
	return fmt.Sprintf("%s unavailable: %s", e.backend, e.msg)
}

func (e *UnavailableError) Unwrap() error {
	return e.cause
}

// Backend returns the name of the tier that was unreachable.
func (e *UnavailableError) Backend() string {
	return e.backend
}

// TransientError represents a backend that answered but failed in a way that
// might succeed if retried. Examples: HTTP 5xx, rate limiting, serialization
// of a half-written row.
type TransientError struct {
	msg   string
	cause error
}

// NewTransient creates a new transient error with the given message and optional cause.
func NewTransient(msg string, cause error) error {
	return &TransientError{msg: msg, cause: cause}
}

func (e *TransientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *TransientError) Unwrap() error {
	return e.cause
}

// NotFoundError represents a requested registration that does not exist.
// It is the normal negative result of a lookup, not a failure: callers
// receive nil or an empty slice, and nothing is logged at error level.
type NotFoundError struct {
	resource string
	id       string
	cause    error
}

// NewNotFound creates a new not found error for the given resource and ID.
func NewNotFound(resource, id string) error {
	return &NotFoundError{resource: resource, id: id}
}

// NewNotFoundWithCause creates a new not found error with an underlying cause.
func NewNotFoundWithCause(resource, id string, cause error) error {
	return &NotFoundError{resource: resource, id: id, cause: cause}
}

func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s not found: %s (%v)", e.resource, e.id, e.cause)
	}
	return fmt.Sprintf("%s not found: %s", e.resource, e.id)
}

func (e *NotFoundError) Unwrap() error {
	return e.cause
}

// Resource returns the type of resource that wasn't found.
func (e *NotFoundError) Resource() string {
	return e.resource
}

// ID returns the identifier of the resource that wasn't found.
func (e *NotFoundError) ID() string {
	return e.id
}

// InvalidInputError represents an error due to invalid caller input.
// Examples: empty service name, blank capability, malformed endpoint.
// Operations short-circuit on it before touching any backend.
type InvalidInputError struct {
	field string
	msg   string
	cause error
}

// NewInvalidInput creates a new invalid input error for the given field and message.
func NewInvalidInput(field, msg string) error {
	return &InvalidInputError{field: field, msg: msg}
}

// NewInvalidInputWithCause creates a new invalid input error with an underlying cause.
func NewInvalidInputWithCause(field, msg string, cause error) error {
	return &InvalidInputError{field: field, msg: msg, cause: cause}
}

func (e *InvalidInputError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid input for %s: %s (%v)", e.field, e.msg, e.cause)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.field, e.msg)
}

func (e *InvalidInputError) Unwrap() error {
	return e.cause
}

// Field returns the field name that had invalid input.
func (e *InvalidInputError) Field() string {
	return e.field
}

// Message returns the validation error message.
func (e *InvalidInputError) Message() string {
	return e.msg
}

// UnauthorizedError represents a rejected bearer token or failed authentication.
// Examples: missing Authorization header, expired JWT, token not in the allow list.
type UnauthorizedError struct {
	msg   string
	cause error
}

// NewUnauthorized creates a new unauthorized error with the given message.
func NewUnauthorized(msg string) error {
	return &UnauthorizedError{msg: msg}
}

// NewUnauthorizedWithCause creates a new unauthorized error with an underlying cause.
func NewUnauthorizedWithCause(msg string, cause error) error {
	return &UnauthorizedError{msg: msg, cause: cause}
}

func (e *UnauthorizedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("unauthorized: %s (%v)", e.msg, e.cause)
	}
	return fmt.Sprintf("unauthorized: %s", e.msg)
}

func (e *UnauthorizedError) Unwrap() error {
	return e.cause
}
