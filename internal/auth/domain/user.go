package domain

import "time"

// User is the identity record the authentication pipeline evaluates. The
// account state flags are set by administrative actions elsewhere; this
// service only ever mutates LastKnownIP and LastLoginAt, on successful
// authentication.
type User struct {
	ID           string
	Username     string // unique, immutable once created
	PasswordHash string // argon2 encoded

	Enabled               bool
	AccountNonExpired     bool
	AccountNonLocked      bool
	CredentialsNonExpired bool

	// LastKnownIP is the origin of the user's previous successful login.
	// Empty means the user has never logged in.
	LastKnownIP string
	LastLoginAt *time.Time

	// Authorities are the role strings granted to the user, e.g. ROLE_USER.
	Authorities []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal is the authenticated identity the pipeline produces. It carries
// the credential hash, never the raw secret.
type Principal struct {
	UserID       string
	Username     string
	PasswordHash string
	Authorities  []string
}
