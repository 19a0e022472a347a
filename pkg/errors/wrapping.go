package errors

import (
	"fmt"
)

// Wrap wraps an error with additional context while preserving the original error type.
// If err is already a typed error (Unavailable, Transient, etc.), it wraps it with the
// same type. Errors of unknown provenance become TransientErrors: the registry treats
// any unclassified backend failure as something the next tier or the next tick may fix.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Preserve the original error type when wrapping
	switch {
	case IsUnavailable(err):
		// Keep the backend name from the original UnavailableError if possible
		var ue *UnavailableError
		if As(err, &ue) {
			return NewUnavailable(ue.backend, msg, err)
		}
		return NewTransient(msg, err)
	case IsTransient(err):
		return NewTransient(msg, err)
	case IsNotFound(err):
		// Extract resource and ID from original NotFoundError if possible
		var nfe *NotFoundError
		if As(err, &nfe) {
			return NewNotFoundWithCause(nfe.resource, nfe.id, err)
		}
		return NewTransient(msg, err)
	case IsInvalidInput(err):
		// Extract field from original InvalidInputError if possible
		var iie *InvalidInputError
		if As(err, &iie) {
			return NewInvalidInputWithCause(iie.field, msg, err)
		}
		return NewInvalidInput("", msg)
	case IsUnauthorized(err):
		return NewUnauthorizedWithCause(msg, err)
	default:
		return NewTransient(msg, err)
	}
}

// Wrapf wraps an error with a formatted message while preserving the original error type.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
