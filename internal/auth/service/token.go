package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/internal/auth/store"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

var (
	ErrInvalidClient  = errors.New("invalid_client")
	ErrInvalidGrant   = errors.New("invalid_grant")
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
)

const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// TokenService issues and rotates token pairs for authenticated principals.
// The access token is a signed EdDSA JWT; the refresh token is opaque and
// only its fingerprint is stored.
type TokenService struct {
	Auth   *AuthService
	Store  store.Store
	Signer jwtx.Signer
	Issuer string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ExchangePassword implements the password grant: authenticate the client,
// run the login pipeline, then issue a token pair bound to
// (client_id, username). AuthFailures from the pipeline pass through so the
// transport can log the code while returning the generic message.
func (s *TokenService) ExchangePassword(
	ctx context.Context,
	clientID, clientSecret string,
	creds PasswordCredentials,
	origin string,
) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(GrantPassword) {
		log.Info("token: password grant not permitted", slog.String("client_id", clientID))
		return nil, ErrInvalidGrant
	}

	principal, err := s.Auth.Authenticate(ctx, creds, clientID, origin)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, client, principal.UserID, principal.Username, principal.Authorities)
}

// ExchangeRefresh rotates a refresh token: the presented token is revoked and
// a fresh pair is issued. Rotation means a leaked refresh token is only good
// once; the legitimate holder's next refresh fails and surfaces the theft.
func (s *TokenService) ExchangeRefresh(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*domain.TokenPair, error) {
	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(GrantRefreshToken) {
		return nil, ErrInvalidGrant
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}
	fingerprint := cryptox.FingerprintToken(refreshToken)

	stored, err := s.Store.Tokens().GetByRefreshToken(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if stored.ClientID != client.ClientID {
		return nil, ErrInvalidRefresh
	}
	if s.now().After(stored.RefreshExpiresAt) {
		_ = s.Store.Tokens().RevokeRefreshToken(ctx, fingerprint)
		return nil, ErrInvalidRefresh
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, stored.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if !user.Enabled || !user.AccountNonExpired || !user.AccountNonLocked {
		return nil, ErrInvalidRefresh
	}

	if err := s.Store.Tokens().RevokeRefreshToken(ctx, fingerprint); err != nil {
		return nil, err
	}

	return s.issue(ctx, client, user.ID, user.Username, user.Authorities)
}

// Revoke invalidates a presented token, trying it as a refresh token first
// and falling back to the access side. Unknown tokens are a success: the
// caller's goal state (token unusable) already holds.
func (s *TokenService) Revoke(ctx context.Context, clientID, clientSecret, token string) error {
	if _, err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return err
	}

	fingerprint := cryptox.FingerprintToken(strings.TrimSpace(token))
	if err := s.Store.Tokens().RevokeRefreshToken(ctx, fingerprint); err != nil {
		return err
	}
	return s.Store.Tokens().RevokeAccessToken(ctx, fingerprint)
}

func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	log := slogx.FromContext(ctx)

	if strings.TrimSpace(clientID) == "" {
		return domain.Client{}, ErrInvalidClient
	}

	client, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if client.SecretRequired() {
		if clientSecret == "" || !cryptox.Matches(clientSecret, client.SecretHash) {
			log.Info("token: client authentication failed", slog.String("client_id", clientID))
			return domain.Client{}, ErrInvalidClient
		}
	}

	return client, nil
}

func (s *TokenService) issue(ctx context.Context, client domain.Client, userID, username string, authorities []string) (*domain.TokenPair, error) {
	now := s.now()

	accessTTL := time.Duration(client.AccessTokenValidity()) * time.Second

	// The registration's refresh validity is not surfaced through its
	// accessor, so issuance falls back to the documented default.
	refreshSeconds, ok := client.RefreshTokenValidity()
	if !ok {
		refreshSeconds = domain.DefaultRefreshTokenValiditySeconds
	}
	refreshTTL := time.Duration(refreshSeconds) * time.Second

	claims := jwtx.NewAccessClaims(
		userID, username,
		authorities, client.Scopes(),
		accessTTL, s.Issuer,
		client.ResourceIDs(), now,
	)
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	issued := domain.IssuedToken{
		ID:               idx.New().String(),
		AccessToken:      cryptox.FingerprintToken(accessToken),
		RefreshToken:     cryptox.FingerprintToken(refreshOpaque),
		ClientID:         client.ClientID,
		Username:         username,
		ExpiresAt:        now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
	}
	if err := s.Store.Tokens().CreateToken(ctx, issued); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    accessTTL,
		Scope:        strings.Join(client.Scopes(), " "),
	}, nil
}
