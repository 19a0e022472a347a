package auth

import (
	"net/http"
	"strings"

	"github.com/gridhouse/peerreg/pkg/errors"
)

// BearerMiddleware creates an HTTP middleware that validates static bearer
// tokens against a fixed set. Static tokens authenticate a caller as a fleet
// member without naming it, so the resulting AuthContext carries only the
// authentication type.
//
// On authentication failure it writes 401 Unauthorized and does not call the
// next handler.
func BearerMiddleware(validTokens []string) func(http.Handler) http.Handler {
	tokens := make(map[string]bool, len(validTokens))
	for _, token := range validTokens {
		if token != "" {
			tokens[token] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				errors.WriteHTTPError(w, err)
				return
			}

			if !tokens[token] {
				errors.WriteHTTPError(w, errors.NewUnauthorized("unknown bearer token"))
				return
			}

			authCtx := &AuthContext{
				AuthType: AuthTypeBearer,
			}

			ctx := setAuthContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header of the form
// "Bearer {token}".
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.NewUnauthorized("invalid authorization header format, expected 'Bearer {token}'")
	}
	if parts[1] == "" {
		return "", errors.NewUnauthorized("empty bearer token")
	}

	return parts[1], nil
}
