package rhsdk

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the OAuth2 token pair issued by the token endpoint.
// A Credential is either valid (both tokens set) or empty, never half of each.
type Credential struct {
	// AccessToken authorizes API requests as a Bearer token
	AccessToken string `json:"access_token"`

	// RefreshToken obtains a new Credential once the access token expires
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the granted scope, always "internal" for this provider
	Scope string `json:"scope,omitempty"`

	// TokenType is "Bearer"
	TokenType string `json:"token_type,omitempty"`
}

// Valid reports whether both tokens are present.
func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// IsZero reports whether the credential carries no tokens at all.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Expiry returns the instant the access token stops being usable when it was
// issued at now. If the provider omitted expires_in, the exp claim of a JWT
// access token is used. Without either the credential is treated as already
// expired so the next Login refreshes it.
func (c Credential) Expiry(now time.Time) time.Time {
	now = now.UTC()
	if c.ExpiresIn > 0 {
		return now.Add(time.Duration(c.ExpiresIn) * time.Second)
	}

	if exp, ok := jwtExpiry(c.AccessToken); ok {
		return exp.UTC()
	}

	return now
}

// jwtExpiry reads the exp claim of an access token without verifying its
// signature. The token is only inspected, never trusted for authorization.
func jwtExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// authorizationValue formats the Authorization header for this credential.
func (c Credential) authorizationValue() string {
	return "Bearer " + c.AccessToken
}
