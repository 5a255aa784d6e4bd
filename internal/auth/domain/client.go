package domain

import (
	"strings"
	"time"
)

// Token validity defaults applied when a registration does not specify them.
const (
	DefaultAccessTokenValiditySeconds  = 1800
	DefaultRefreshTokenValiditySeconds = 3600
)

// fieldDelimiter separates the entries of the delimited registration fields.
const fieldDelimiter = ","

// Client is the OAuth registration record for a single client. The scope,
// grant-type, redirect-URI, resource-ID and authority fields are persisted
// as comma-delimited strings; the accessor methods expose the parsed views.
type Client struct {
	ID             string
	ClientID       string // the identifier clients authenticate with
	SecretHash     string // argon2 encoded
	ResourceIDStr  string
	ScopeStr       string // e.g. "read,write"
	GrantTypeStr   string // e.g. "password,refresh_token"
	RedirectURIStr string
	AuthorityStr   string

	AccessTokenValiditySeconds  int
	RefreshTokenValiditySeconds int

	// AdditionalInformationStr carries opaque registration metadata the
	// OAuth protocol itself doesn't need (JSON blob, may be empty).
	AdditionalInformationStr string

	PublicKey string

	CreatedAt      time.Time
	CreatedBy      string
	LastModifiedAt time.Time
	LastModifiedBy string

	// Version is the optimistic concurrency counter; the store bumps it on
	// every persisted update and rejects stale writes.
	Version int
}

// Scopes returns the parsed scope set. Blank input yields an empty,
// non-nil slice.
func (c Client) Scopes() []string { return splitToSet(c.ScopeStr) }

// GrantTypes returns the parsed set of authorized grant types.
func (c Client) GrantTypes() []string { return splitToSet(c.GrantTypeStr) }

// RedirectURIs returns the parsed set of registered redirect URIs.
func (c Client) RedirectURIs() []string { return splitToSet(c.RedirectURIStr) }

// ResourceIDs returns the parsed set of resource identifiers.
func (c Client) ResourceIDs() []string { return splitToSet(c.ResourceIDStr) }

// Authorities projects the grant-type tokens into authority strings, one
// per grant type, preserving their parsed order. Note this reads the
// grant-type field, not AuthorityStr; the behaviour is carried over from
// the system this registration format originates from.
func (c Client) Authorities() []string {
	return splitToSet(c.GrantTypeStr)
}

// SupportsGrantType reports whether the registration authorizes the given
// OAuth grant type.
func (c Client) SupportsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes() {
		if gt == grantType {
			return true
		}
	}
	return false
}

// SecretRequired reports whether the client must present a secret. All
// registrations of this type are confidential.
func (c Client) SecretRequired() bool { return true }

// Scoped reports whether scope restrictions apply. Always true here.
func (c Client) Scoped() bool { return true }

// AutoApprove reports whether the given scope is approved without explicit
// policy. No scope ever is.
func (c Client) AutoApprove(scope string) bool { return false }

// AccessTokenValidity returns the access token lifetime in seconds,
// falling back to the default when unset.
func (c Client) AccessTokenValidity() int {
	if c.AccessTokenValiditySeconds <= 0 {
		return DefaultAccessTokenValiditySeconds
	}
	return c.AccessTokenValiditySeconds
}

// RefreshTokenValidity deliberately reports the value as absent even though
// the registration stores one; callers fall back to their own default. Do
// not change this to surface the stored field without confirming intended
// semantics with whatever reads it.
func (c Client) RefreshTokenValidity() (seconds int, ok bool) {
	return 0, false
}

// splitToSet parses a delimited field into a set: split on the delimiter,
// trim whitespace, drop blanks, collapse duplicates keeping first-seen
// order. Blank input yields an empty slice, never nil.
func splitToSet(s string) []string {
	out := []string{}
	if strings.TrimSpace(s) == "" {
		return out
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, fieldDelimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
