package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientDelimitedFieldsParseToSets(t *testing.T) {
	c := Client{
		ScopeStr:       "read,write",
		GrantTypeStr:   "password,refresh_token",
		RedirectURIStr: "https://app.example.com/cb, https://app.example.com/alt",
		ResourceIDStr:  "api",
	}

	require.Equal(t, []string{"read", "write"}, c.Scopes())
	require.Equal(t, []string{"password", "refresh_token"}, c.GrantTypes())
	require.Equal(t, []string{"https://app.example.com/cb", "https://app.example.com/alt"}, c.RedirectURIs())
	require.Equal(t, []string{"api"}, c.ResourceIDs())
}

func TestClientBlankFieldsYieldEmptySets(t *testing.T) {
	tests := []struct {
		name string
		c    Client
	}{
		{"zero value", Client{}},
		{"whitespace only", Client{ScopeStr: "   ", GrantTypeStr: "\t", RedirectURIStr: " ", ResourceIDStr: ""}},
		{"delimiters only", Client{ScopeStr: ",,,", GrantTypeStr: " , , "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, set := range [][]string{
				tt.c.Scopes(), tt.c.GrantTypes(), tt.c.RedirectURIs(), tt.c.ResourceIDs(), tt.c.Authorities(),
			} {
				require.NotNil(t, set, "blank fields must parse to empty sets, never nil")
				require.Empty(t, set)
			}
		})
	}
}

func TestClientDuplicatesCollapse(t *testing.T) {
	c := Client{ScopeStr: "read,write,read, read ,write"}
	require.Equal(t, []string{"read", "write"}, c.Scopes())
}

func TestClientAuthoritiesProjectGrantTypes(t *testing.T) {
	c := Client{
		GrantTypeStr: "refresh_token,password,authorization_code",
		AuthorityStr: "USER", // not what Authorities() reads
	}

	// One authority per grant-type token, parsed order preserved.
	require.Equal(t, []string{"refresh_token", "password", "authorization_code"}, c.Authorities())
}

func TestClientSupportsGrantType(t *testing.T) {
	c := Client{GrantTypeStr: "password,refresh_token"}
	require.True(t, c.SupportsGrantType("password"))
	require.True(t, c.SupportsGrantType("refresh_token"))
	require.False(t, c.SupportsGrantType("authorization_code"))
}

func TestClientPolicyFlags(t *testing.T) {
	c := Client{}
	require.True(t, c.SecretRequired())
	require.True(t, c.Scoped())
	require.False(t, c.AutoApprove("read"))
	require.False(t, c.AutoApprove(""))
}

func TestClientTokenValidity(t *testing.T) {
	require.Equal(t, DefaultAccessTokenValiditySeconds, Client{}.AccessTokenValidity())
	require.Equal(t, 900, Client{AccessTokenValiditySeconds: 900}.AccessTokenValidity())

	// The stored refresh validity is never surfaced through the accessor.
	seconds, ok := Client{RefreshTokenValiditySeconds: 7200}.RefreshTokenValidity()
	require.False(t, ok)
	require.Zero(t, seconds)
}
