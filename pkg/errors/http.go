package errors

import (
	"net/http"
)

// HTTPStatusCode returns the appropriate HTTP status code for the given error.
// It maps error types to standard HTTP status codes:
//   - NotFoundError -> 404 Not Found
//   - InvalidInputError -> 400 Bad Request
//   - UnauthorizedError -> 401 Unauthorized
//   - UnavailableError -> 503 Service Unavailable
//   - TransientError -> 500 Internal Server Error
//   - Unknown errors -> 500 Internal Server Error
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case IsNotFound(err):
		return http.StatusNotFound // 404
	case IsInvalidInput(err):
		return http.StatusBadRequest // 400
	case IsUnauthorized(err):
		return http.StatusUnauthorized // 401
	case IsUnavailable(err):
		return http.StatusServiceUnavailable // 503
	case IsTransient(err):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteHTTPError writes an error response to an HTTP response writer.
// It automatically determines the status code based on the error type.
func WriteHTTPError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	statusCode := HTTPStatusCode(err)
	http.Error(w, err.Error(), statusCode)
}
