// Package auth manages OAuth2 password-grant access tokens for the
// upstream API. A Manager owns at most one token at a time and renews
// it lazily when a caller asks for a token that has expired.
package auth

import (
	"time"
)

// ExpiryMargin is subtracted from a token's lifetime so that a token
// nearing expiry is renewed before an in-flight request can race it.
const ExpiryMargin = 10 * time.Second

// Token is an immutable access token. It is created only from a
// successful authentication response and replaced wholesale on renewal.
type Token struct {
	// Value is the opaque bearer token string.
	Value string

	// IssuedAt is when the token was minted.
	IssuedAt time.Time

	// ExpiresIn is the lifetime granted by the upstream.
	ExpiresIn time.Duration
}

// Expired returns true once the token is within ExpiryMargin of its
// expiry time, or past it.
func (t *Token) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the token is expired at the given instant.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.IssuedAt.Add(t.ExpiresIn - ExpiryMargin))
}

// tokenResponse is the upstream token endpoint schema.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
