package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gridhouse/peerreg/pkg/errors"
)

// JWTConfig contains configuration for JWT validation.
type JWTConfig struct {
	// PublicKey is the RSA public key used to verify JWT signatures.
	PublicKey *rsa.PublicKey

	// Issuer is the expected value of the "iss" (issuer) claim.
	// If empty, issuer validation is skipped.
	Issuer string

	// Audience is the expected value of the "aud" (audience) claim.
	// If empty, audience validation is skipped.
	Audience string
}

// JWTMiddleware returns an HTTP middleware that validates JWT tokens.
// It checks the Authorization header for "Bearer {token}" format and validates:
// - JWT signature using the provided public key
// - Expiration time (exp claim)
// - Issuer (iss claim) if configured
// - Audience (aud claim) if configured
//
// On success, it injects an AuthContext into the request context with:
// - AuthType set to AuthTypeJWT
// - UserID or ServiceName extracted from the "sub" claim
// - Claims populated with the token's registered claims
//
// On failure, it returns 401 Unauthorized.
func JWTMiddleware(config JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				errors.WriteHTTPError(w, err)
				return
			}

			authCtx, err := parseAndValidateJWT(tokenString, config)
			if err != nil {
				errors.WriteHTTPError(w, err)
				return
			}

			ctx := setAuthContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseAndValidateJWT parses and validates a JWT token string.
func parseAndValidateJWT(tokenString string, config JWTConfig) (*AuthContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return config.PublicKey, nil
	})

	if err != nil {
		return nil, errors.NewUnauthorizedWithCause("invalid JWT token", err)
	}

	if !token.Valid {
		return nil, errors.NewUnauthorized("JWT token is not valid")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, errors.NewUnauthorized("failed to extract JWT claims")
	}

	if config.Issuer != "" {
		if claims.Issuer != config.Issuer {
			return nil, errors.NewUnauthorized(fmt.Sprintf("invalid issuer: expected %s, got %s", config.Issuer, claims.Issuer))
		}
	}

	if config.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == config.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, errors.NewUnauthorized(fmt.Sprintf("invalid audience: expected %s", config.Audience))
		}
	}

	// Registered claims only. Custom claims need a separate parse by the
	// caller.
	claimsMap := make(map[string]interface{})
	if claims.Subject != "" {
		claimsMap["sub"] = claims.Subject
	}
	if claims.Issuer != "" {
		claimsMap["iss"] = claims.Issuer
	}
	if len(claims.Audience) > 0 {
		claimsMap["aud"] = claims.Audience
	}
	if claims.ExpiresAt != nil {
		claimsMap["exp"] = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		claimsMap["iat"] = claims.IssuedAt.Time
	}
	if claims.NotBefore != nil {
		claimsMap["nbf"] = claims.NotBefore.Time
	}
	if claims.ID != "" {
		claimsMap["jti"] = claims.ID
	}

	authCtx := &AuthContext{
		AuthType: AuthTypeJWT,
		Claims:   claimsMap,
	}

	// Subjects of the form "service:{name}" identify peers, anything else
	// identifies an operator.
	subject := claims.Subject
	if strings.HasPrefix(subject, "service:") {
		authCtx.ServiceName = strings.TrimPrefix(subject, "service:")
	} else {
		authCtx.UserID = subject
	}

	return authCtx, nil
}

// LoadPublicKeyFromPEM loads an RSA public key from PEM-encoded bytes.
// This is a helper function for loading public keys from configuration.
func LoadPublicKeyFromPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Try parsing as PKIX (standard public key format)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		if rsaKey, ok := pub.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("not an RSA public key")
	}

	// Try parsing as PKCS1 (RSA-specific format)
	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return rsaKey, nil
}

// LoadPublicKeyFromFile loads an RSA public key from a PEM file.
// This is a convenience function for loading keys from the filesystem.
func LoadPublicKeyFromFile(path string) (*rsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	return LoadPublicKeyFromPEM(pemBytes)
}
