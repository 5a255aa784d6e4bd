package domain

import "time"

// TokenPair is what the token endpoint returns: a short-lived JWT access
// token plus an opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
	Scope        string        `json:"scope,omitempty"`      // space-delimited
}

// IssuedToken is a stored access/refresh token pair bound to a
// (client, username) pair. RefreshToken may be empty: an access token
// issued without one is still revocable, the refresh side is just skipped.
type IssuedToken struct {
	ID           string
	AccessToken  string // stored as a deterministic fingerprint, not the raw token
	RefreshToken string // fingerprint of the opaque refresh token; empty when absent
	ClientID     string
	Username     string
	ExpiresAt    time.Time // access-token expiry
	// RefreshExpiresAt bounds the refresh token's life independently of the
	// access token; zero means it expires with the access token.
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// HasRefreshToken reports whether a refresh token was issued alongside the
// access token.
func (t IssuedToken) HasRefreshToken() bool { return t.RefreshToken != "" }
