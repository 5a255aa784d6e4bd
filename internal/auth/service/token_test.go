package service

import (
	"context"
	"testing"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/internal/auth/store"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testClientSecret = "client-secret"

func newTokenService(t *testing.T, s store.Store) *TokenService {
	t.Helper()

	pem, err := jwtx.GenerateEdDSAKeyPEM()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test-key", pem)
	require.NoError(t, err)

	return &TokenService{
		Auth:   &AuthService{Store: s},
		Store:  s,
		Signer: signer,
		Issuer: "https://auth.test",
	}
}

func seedConfidentialClient(t *testing.T, s store.Store, clientID, grantTypes string) {
	t.Helper()

	secretHash, err := cryptox.HashPassword(testClientSecret)
	require.NoError(t, err)

	c := domain.Client{
		ID:            idx.New().String(),
		ClientID:      clientID,
		SecretHash:    secretHash,
		ResourceIDStr: "inventory",
		ScopeStr:      "read,write",
		GrantTypeStr:  grantTypes,
	}
	require.NoError(t, s.Clients().CreateClient(context.Background(), c))
}

func TestExchangePassword(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	seedAliceWith(t, s, nil)

	pair, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, time.Duration(domain.DefaultAccessTokenValiditySeconds)*time.Second, pair.ExpiresIn)
	require.Equal(t, "read write", pair.Scope)

	claims, err := svc.Signer.(*jwtx.EdDSASigner).Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{"ROLE_USER"}, claims.Authorities)
	require.Equal(t, []string{"read", "write"}, claims.Scopes)
	require.Equal(t, "https://auth.test", claims.Issuer)

	// The registry stores fingerprints, never raw tokens.
	stored, err := s.Tokens().FindByClientAndUsername(ctx, "c1", "alice")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, cryptox.FingerprintToken(pair.AccessToken), stored[0].AccessToken)
	require.Equal(t, cryptox.FingerprintToken(pair.RefreshToken), stored[0].RefreshToken)
	require.NotEqual(t, pair.RefreshToken, stored[0].RefreshToken)
}

func TestExchangePasswordClientAuthentication(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password")
	seedAliceWith(t, s, nil)

	creds := PasswordCredentials{Username: "alice", Password: testPassword}

	_, err := svc.ExchangePassword(ctx, "c1", "wrong-secret", creds, "5.6.7.8")
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.ExchangePassword(ctx, "c1", "", creds, "5.6.7.8")
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.ExchangePassword(ctx, "ghost", testClientSecret, creds, "5.6.7.8")
	require.ErrorIs(t, err, ErrInvalidClient)
}

func TestExchangePasswordGrantNotPermitted(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)

	seedConfidentialClient(t, s, "c1", "authorization_code,refresh_token")
	seedAliceWith(t, s, nil)

	_, err := svc.ExchangePassword(context.Background(), "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangePasswordSurfacesAuthFailure(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)

	seedConfidentialClient(t, s, "c1", "password")
	seedAliceWith(t, s, func(u *domain.User) { u.Enabled = false })

	_, err := svc.ExchangePassword(context.Background(), "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	requireFailure(t, err, CodeAccountDisabled)
}

func TestExchangeRefreshRotation(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	seedAliceWith(t, s, nil)

	first, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	second, err := svc.ExchangeRefresh(ctx, "c1", testClientSecret, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEmpty(t, second.AccessToken)

	// The spent refresh token is gone; replaying it fails.
	_, err = svc.ExchangeRefresh(ctx, "c1", testClientSecret, first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// The rotated one still works.
	_, err = svc.ExchangeRefresh(ctx, "c1", testClientSecret, second.RefreshToken)
	require.NoError(t, err)
}

func TestExchangeRefreshRejectsForeignClient(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	seedConfidentialClient(t, s, "c2", "password,refresh_token")
	seedAliceWith(t, s, nil)

	pair, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	_, err = svc.ExchangeRefresh(ctx, "c2", testClientSecret, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestExchangeRefreshRejectsDisabledUser(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	alice := seedAliceWith(t, s, nil)

	pair, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	require.NoError(t, s.Users().SetEnabled(ctx, alice.ID, false))

	_, err = svc.ExchangeRefresh(ctx, "c1", testClientSecret, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestExchangeRefreshExpired(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	seedAliceWith(t, s, nil)

	pair, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	// Jump past the refresh window.
	svc.Now = func() time.Time {
		return time.Now().Add(time.Duration(domain.DefaultRefreshTokenValiditySeconds)*time.Second + time.Minute)
	}

	_, err = svc.ExchangeRefresh(ctx, "c1", testClientSecret, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRevoke(t *testing.T) {
	s := newAuthTestStore(t)
	svc := newTokenService(t, s)
	ctx := context.Background()

	seedConfidentialClient(t, s, "c1", "password,refresh_token")
	seedAliceWith(t, s, nil)

	pair, err := svc.ExchangePassword(ctx, "c1", testClientSecret,
		PasswordCredentials{Username: "alice", Password: testPassword}, "5.6.7.8")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "c1", testClientSecret, pair.RefreshToken))

	_, err = svc.ExchangeRefresh(ctx, "c1", testClientSecret, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// Revoking something that never existed still succeeds.
	require.NoError(t, svc.Revoke(ctx, "c1", testClientSecret, "no-such-token"))
}
