package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/internal/auth/store"
	"github.com/gatehouse-id/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

func newAuthTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	return s
}

func seedClient(t *testing.T, s store.Store, clientID string) {
	t.Helper()

	c := domain.Client{
		ID:           idx.New().String(),
		ClientID:     clientID,
		SecretHash:   "hash",
		ScopeStr:     "read,write",
		GrantTypeStr: "password,refresh_token",
	}
	require.NoError(t, s.Clients().CreateClient(context.Background(), c))
}

func seedAliceWith(t *testing.T, s store.Store, mutate func(*domain.User)) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	u := domain.User{
		ID:                    idx.New().String(),
		Username:              "alice",
		PasswordHash:          hash,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		Authorities:           []string{"ROLE_USER"},
	}
	if mutate != nil {
		mutate(&u)
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func requireFailure(t *testing.T, err error, code FailureCode) {
	t.Helper()

	var af *AuthFailure
	require.ErrorAs(t, err, &af)
	require.Equal(t, code, af.Code)
	require.Equal(t, "authentication failed", af.PublicMessage())
}

func TestAuthenticateFirstLogin(t *testing.T) {
	s := newAuthTestStore(t)
	svc := &AuthService{Store: s}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seeded := seedAliceWith(t, s, nil)

	principal, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, principal.UserID)
	require.Equal(t, "alice", principal.Username)
	require.Equal(t, seeded.PasswordHash, principal.PasswordHash)
	require.Equal(t, []string{"ROLE_USER"}, principal.Authorities)

	after, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "5.6.7.8", after.LastKnownIP)
	require.NotNil(t, after.LastLoginAt)

	recs, err := s.LoginAudit().ListByUsername(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "5.6.7.8", recs[0].Origin)
}

func TestAuthenticateOriginChangeRevokesSessions(t *testing.T) {
	s := newAuthTestStore(t)
	rec := &recordingTokens{Tokens: s.Tokens()}
	wrapped := &tokensOverrideStore{Store: s, tokens: rec}
	svc := &AuthService{Store: wrapped}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seedAliceWith(t, s, func(u *domain.User) { u.LastKnownIP = "1.2.3.4" })

	expires := time.Now().UTC().Add(time.Hour)
	for _, tok := range []domain.IssuedToken{
		{ID: idx.New().String(), AccessToken: "at-1", RefreshToken: "rt-1", ClientID: "c1", Username: "alice", ExpiresAt: expires},
		{ID: idx.New().String(), AccessToken: "at-2", ClientID: "c1", Username: "alice", ExpiresAt: expires},
	} {
		require.NoError(t, s.Tokens().CreateToken(ctx, tok))
	}

	_, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.NoError(t, err)

	require.Equal(t, []string{"at-1", "at-2"}, rec.revokedAccess)
	require.Equal(t, []string{"rt-1"}, rec.revokedRefresh, "access-only token has no refresh to revoke")

	after, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "5.6.7.8", after.LastKnownIP)

	left, err := s.Tokens().FindByClientAndUsername(ctx, "c1", "alice")
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestAuthenticateSameOriginKeepsSessions(t *testing.T) {
	s := newAuthTestStore(t)
	rec := &recordingTokens{Tokens: s.Tokens()}
	svc := &AuthService{Store: &tokensOverrideStore{Store: s, tokens: rec}}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seedAliceWith(t, s, func(u *domain.User) { u.LastKnownIP = "5.6.7.8" })

	tok := domain.IssuedToken{
		ID: idx.New().String(), AccessToken: "at-1", RefreshToken: "rt-1",
		ClientID: "c1", Username: "alice", ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.Tokens().CreateToken(ctx, tok))

	_, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.NoError(t, err)

	require.Empty(t, rec.revokedAccess)
	require.Empty(t, rec.revokedRefresh)
}

func TestAuthenticateFailureOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*domain.User)
		password string
		want     FailureCode
	}{
		{"disabled", func(u *domain.User) { u.Enabled = false }, testPassword, CodeAccountDisabled},
		{"expired account", func(u *domain.User) { u.AccountNonExpired = false }, testPassword, CodeAccountExpired},
		{"locked", func(u *domain.User) { u.AccountNonLocked = false }, testPassword, CodeAccountLocked},
		{"expired credentials", func(u *domain.User) { u.CredentialsNonExpired = false }, testPassword, CodeCredentialsExpired},

		// Wrong password on a disabled account reports bad credentials:
		// account state is never disclosed to a caller without the password.
		{"bad password beats disabled", func(u *domain.User) { u.Enabled = false }, "wrong", CodeBadCredentials},
		{"bad password beats locked", func(u *domain.User) { u.AccountNonLocked = false }, "wrong", CodeBadCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAuthTestStore(t)
			svc := &AuthService{Store: s}

			seedClient(t, s, "c1")
			seedAliceWith(t, s, tt.mutate)

			_, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: tt.password}, "c1", "5.6.7.8")
			requireFailure(t, err, tt.want)
		})
	}
}

func TestAuthenticateFailureLeavesNoTrace(t *testing.T) {
	s := newAuthTestStore(t)
	rec := &recordingTokens{Tokens: s.Tokens()}
	svc := &AuthService{Store: &tokensOverrideStore{Store: s, tokens: rec}}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seedAliceWith(t, s, func(u *domain.User) {
		u.Enabled = false
		u.LastKnownIP = "1.2.3.4"
	})

	tok := domain.IssuedToken{
		ID: idx.New().String(), AccessToken: "at-1", RefreshToken: "rt-1",
		ClientID: "c1", Username: "alice", ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.Tokens().CreateToken(ctx, tok))

	_, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	requireFailure(t, err, CodeAccountDisabled)

	// No revocation, no last-IP write, no audit record.
	require.Empty(t, rec.revokedAccess)
	require.Empty(t, rec.revokedRefresh)

	after, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", after.LastKnownIP)
	require.Nil(t, after.LastLoginAt)

	recs, err := s.LoginAudit().ListByUsername(ctx, "alice", 10)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	s := newAuthTestStore(t)
	svc := &AuthService{Store: s}

	seedClient(t, s, "c1")

	_, err := svc.Authenticate(context.Background(), PasswordCredentials{Username: "nobody", Password: "x"}, "c1", "5.6.7.8")
	requireFailure(t, err, CodeUserNotFound)
}

func TestAuthenticateClientContext(t *testing.T) {
	s := newAuthTestStore(t)
	svc := &AuthService{Store: s}
	ctx := context.Background()

	seedAliceWith(t, s, nil)

	_, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "", "5.6.7.8")
	requireFailure(t, err, CodeInvalidClientContext)

	_, err = svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "ghost", "5.6.7.8")
	requireFailure(t, err, CodeInvalidClientContext)
}

func TestAuthenticateRevocationFailureIsSwallowed(t *testing.T) {
	s := newAuthTestStore(t)
	rec := &recordingTokens{Tokens: s.Tokens(), failAccess: map[string]bool{"at-1": true}}
	svc := &AuthService{Store: &tokensOverrideStore{Store: s, tokens: rec}}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seedAliceWith(t, s, func(u *domain.User) { u.LastKnownIP = "1.2.3.4" })

	expires := time.Now().UTC().Add(time.Hour)
	for _, tok := range []domain.IssuedToken{
		{ID: idx.New().String(), AccessToken: "at-1", RefreshToken: "rt-1", ClientID: "c1", Username: "alice", ExpiresAt: expires},
		{ID: idx.New().String(), AccessToken: "at-2", RefreshToken: "rt-2", ClientID: "c1", Username: "alice", ExpiresAt: expires},
	} {
		require.NoError(t, s.Tokens().CreateToken(ctx, tok))
	}

	principal, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.NoError(t, err, "a failed revoke must not fail the login")
	require.NotNil(t, principal)

	// The failing token did not stop the rest of the sweep.
	require.Equal(t, []string{"at-1", "at-2"}, rec.revokedAccess)
	require.Equal(t, []string{"rt-1", "rt-2"}, rec.revokedRefresh)
}

func TestAuthenticateAuditFailureIsSwallowed(t *testing.T) {
	s := newAuthTestStore(t)
	wrapped := &auditOverrideStore{Store: s, audit: &failingAudit{LoginAudit: s.LoginAudit()}}
	svc := &AuthService{Store: wrapped}
	ctx := context.Background()

	seedClient(t, s, "c1")
	seedAliceWith(t, s, nil)

	principal, err := svc.Authenticate(ctx, PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.NoError(t, err, "a broken audit sink must not lock users out")
	require.NotNil(t, principal)

	after, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "5.6.7.8", after.LastKnownIP)
}

func TestAuthenticateRecordLoginFailurePropagates(t *testing.T) {
	s := newAuthTestStore(t)
	wrapped := &usersOverrideStore{Store: s, users: &failingRecordLogin{Users: s.Users()}}
	svc := &AuthService{Store: wrapped}

	seedClient(t, s, "c1")
	seedAliceWith(t, s, nil)

	_, err := svc.Authenticate(context.Background(), PasswordCredentials{Username: "alice", Password: testPassword}, "c1", "5.6.7.8")
	require.Error(t, err)

	var af *AuthFailure
	require.False(t, errors.As(err, &af), "infrastructure errors are not authentication failures")
}

// --- fault-injection wrappers -----------------------------------------------

type tokensOverrideStore struct {
	store.Store
	tokens store.Tokens
}

func (s *tokensOverrideStore) Tokens() store.Tokens { return s.tokens }

type auditOverrideStore struct {
	store.Store
	audit store.LoginAudit
}

func (s *auditOverrideStore) LoginAudit() store.LoginAudit { return s.audit }

type usersOverrideStore struct {
	store.Store
	users store.Users
}

func (s *usersOverrideStore) Users() store.Users { return s.users }

// recordingTokens passes through to the real repo while recording revocations
// and optionally failing selected access tokens.
type recordingTokens struct {
	store.Tokens
	revokedAccess  []string
	revokedRefresh []string
	failAccess     map[string]bool
}

func (r *recordingTokens) RevokeAccessToken(ctx context.Context, accessToken string) error {
	r.revokedAccess = append(r.revokedAccess, accessToken)
	if r.failAccess[accessToken] {
		return errors.New("revocation backend unavailable")
	}
	return r.Tokens.RevokeAccessToken(ctx, accessToken)
}

func (r *recordingTokens) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	r.revokedRefresh = append(r.revokedRefresh, refreshToken)
	return r.Tokens.RevokeRefreshToken(ctx, refreshToken)
}

type failingAudit struct {
	store.LoginAudit
}

func (f *failingAudit) RecordLogin(context.Context, domain.LoginRecord) error {
	return errors.New("audit sink unavailable")
}

type failingRecordLogin struct {
	store.Users
}

func (f *failingRecordLogin) RecordLogin(context.Context, string, string, time.Time) error {
	return errors.New("users table unavailable")
}
