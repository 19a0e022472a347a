package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// RecoveryFunc is a function that handles a recovered panic.
// It receives the recovered value and returns an error.
type RecoveryFunc func(interface{}) error

// DefaultRecoveryFunc is the default recovery function. It converts panics to
// TransientErrors so the request that triggered them can be retried.
func DefaultRecoveryFunc(p interface{}) error {
	return NewTransient(fmt.Sprintf("panic recovered: %v\nstack trace:\n%s", p, debug.Stack()), nil)
}

// RecoveryMiddleware is an HTTP middleware that recovers from panics and converts them to errors.
// It takes an optional recovery function; if nil, DefaultRecoveryFunc is used.
func RecoveryMiddleware(recoveryFunc RecoveryFunc) func(http.Handler) http.Handler {
	if recoveryFunc == nil {
		recoveryFunc = DefaultRecoveryFunc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					err := recoveryFunc(p)
					WriteHTTPError(w, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
