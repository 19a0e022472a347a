// Package auth provides authentication middleware for the registry wire
// protocol. Registry servers accept static bearer tokens shared across the
// fleet, JWTs carrying a service identity, or both.
//
// Example usage with static tokens:
//
//	tokens := []string{"fleet-token-1", "fleet-token-2"}
//	http.Handle("/api/registry", auth.BearerMiddleware(tokens)(handler))
//
// Example usage with JWT:
//
//	publicKey, _ := auth.LoadPublicKeyFromFile("registry.pub")
//	middleware := auth.JWTMiddleware(auth.JWTConfig{
//	    PublicKey: publicKey,
//	    Issuer:    "peerreg",
//	    Audience:  "registry",
//	})
//	http.Handle("/api/registry", middleware(handler))
package auth

// AuthType represents the authentication method used.
type AuthType string

const (
	// AuthTypeBearer represents static bearer token authentication.
	AuthTypeBearer AuthType = "BEARER"

	// AuthTypeJWT represents JWT token authentication.
	AuthTypeJWT AuthType = "JWT"
)

// AuthContext contains authentication information extracted from a request.
// It is stored in context.Context and can be retrieved using GetAuthContext.
type AuthContext struct {
	// UserID is the identifier of an authenticated operator, taken from a
	// JWT subject without the service prefix. Empty for service and
	// fleet-token authentication.
	UserID string

	// ServiceName is the name of the authenticated peer, taken from a JWT
	// subject of the form "service:{name}". Empty for operator
	// authentication; static bearer tokens authenticate the fleet without
	// naming the caller.
	ServiceName string

	// AuthType indicates the authentication method used.
	AuthType AuthType

	// Claims contains the claims of a verified JWT. Nil for bearer token
	// authentication.
	Claims map[string]interface{}
}

// IsUser reports whether an operator authenticated this request.
func (a *AuthContext) IsUser() bool {
	return a.UserID != ""
}

// IsService reports whether a named peer authenticated this request.
func (a *AuthContext) IsService() bool {
	return a.ServiceName != ""
}

// GetClaim returns a claim value from the Claims map.
// Returns nil if the claim doesn't exist.
func (a *AuthContext) GetClaim(key string) interface{} {
	if a.Claims == nil {
		return nil
	}
	return a.Claims[key]
}

// GetClaimString returns a claim value as a string.
// Returns empty string if the claim doesn't exist or is not a string.
func (a *AuthContext) GetClaimString(key string) string {
	val := a.GetClaim(key)
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}
