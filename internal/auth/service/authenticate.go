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
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// AuthService evaluates password logins. Every attempt runs the same ordered
// sequence of checks, and the order is part of the contract: a disabled user
// with a wrong password is reported as bad credentials, not as disabled,
// because the credential check runs first.
type AuthService struct {
	Store store.Store

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// PasswordCredentials is the raw username/password pair from the caller.
type PasswordCredentials struct {
	Username string
	Password string
}

// Authenticate validates credentials against the user record and, on success,
// returns the authenticated principal. clientID identifies the requesting
// client application; origin is the caller's network address as resolved by
// the transport layer.
//
// Checks run in a fixed order:
//
//  1. client resolution (unknown or blank client_id)
//  2. user lookup
//  3. password match
//  4. enabled
//  5. account not expired
//  6. account not locked
//  7. credentials not expired
//
// A rejection at any step returns *AuthFailure with the step's code and stops
// the pipeline; no user state is touched. Infrastructure errors (store
// unreachable) are returned as-is and are not AuthFailures.
//
// On success, before returning the principal:
//
//   - If the user's previous login came from a different origin, every token
//     the client currently holds for this username is revoked, access token
//     first then refresh token. Revocation is best-effort: a failed revoke is
//     logged and the remaining tokens are still attempted.
//   - LastKnownIP and LastLoginAt are updated. A failure here is an
//     infrastructure error and aborts the attempt.
//   - A login audit record is written. Audit failures are logged and
//     swallowed; the login still succeeds.
//
// Concurrent logins for the same username may interleave the revocation and
// last-IP writes. That race is accepted: the last write wins, and tokens made
// stale by an origin change are revoked by whichever attempt observed the
// change.
func (s *AuthService) Authenticate(ctx context.Context, creds PasswordCredentials, clientID, origin string) (*domain.Principal, error) {
	log := slogx.FromContext(ctx)
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	username := strings.TrimSpace(creds.Username)

	// 1. The client context must resolve before anything about the user is
	// examined.
	if strings.TrimSpace(clientID) == "" {
		return nil, failure(CodeInvalidClientContext, username)
	}
	client, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("authenticate: unknown client", slog.String("client_id", clientID))
			return nil, failure(CodeInvalidClientContext, username)
		}
		return nil, err
	}

	// 2. User lookup.
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("authenticate: unknown user", slog.String("username", username))
			return nil, failure(CodeUserNotFound, username)
		}
		return nil, err
	}

	// 3. Credential match before any account-state checks, so account state
	// is never revealed to a caller who does not hold the password.
	if !cryptox.Matches(creds.Password, user.PasswordHash) {
		log.Info("authenticate: bad credentials", slog.String("username", username))
		return nil, failure(CodeBadCredentials, username)
	}

	// 4-7. Account state, in fixed order.
	switch {
	case !user.Enabled:
		return nil, failure(CodeAccountDisabled, username)
	case !user.AccountNonExpired:
		return nil, failure(CodeAccountExpired, username)
	case !user.AccountNonLocked:
		return nil, failure(CodeAccountLocked, username)
	case !user.CredentialsNonExpired:
		return nil, failure(CodeCredentialsExpired, username)
	}

	// 8. A login from a new origin invalidates the sessions the previous
	// origin may still hold.
	if user.LastKnownIP != "" && user.LastKnownIP != origin {
		s.revokeExistingSessions(ctx, client.ClientID, username)
	}

	// 9. Record the successful login on the user row.
	if err := s.Store.Users().RecordLogin(ctx, user.ID, origin, now); err != nil {
		return nil, err
	}

	// 10. Audit trail is best-effort; a broken audit sink must not lock
	// users out.
	audit := domain.LoginRecord{
		ID:       idx.New().String(),
		Username: username,
		Origin:   origin,
		At:       now,
	}
	if err := s.Store.LoginAudit().RecordLogin(ctx, audit); err != nil {
		log.Error("authenticate: audit write failed",
			slog.Any("error", err),
			slog.String("username", username),
		)
	}

	return &domain.Principal{
		UserID:       user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Authorities:  user.Authorities,
	}, nil
}

// revokeExistingSessions removes every token the client holds for the
// username. Each token is attempted independently: a failed revoke is logged
// and the rest still run, so one bad row cannot shield the others.
func (s *AuthService) revokeExistingSessions(ctx context.Context, clientID, username string) {
	log := slogx.FromContext(ctx)

	tokens, err := s.Store.Tokens().FindByClientAndUsername(ctx, clientID, username)
	if err != nil {
		log.Error("authenticate: token lookup for revocation failed",
			slog.Any("error", err),
			slog.String("client_id", clientID),
			slog.String("username", username),
		)
		return
	}

	for _, tok := range tokens {
		if err := s.Store.Tokens().RevokeAccessToken(ctx, tok.AccessToken); err != nil {
			log.Error("authenticate: access token revocation failed",
				slog.Any("error", err),
				slog.String("token_id", tok.ID),
			)
		}
		if !tok.HasRefreshToken() {
			continue
		}
		if err := s.Store.Tokens().RevokeRefreshToken(ctx, tok.RefreshToken); err != nil {
			log.Error("authenticate: refresh token revocation failed",
				slog.Any("error", err),
				slog.String("token_id", tok.ID),
			)
		}
	}

	if len(tokens) > 0 {
		log.Info("authenticate: revoked sessions after origin change",
			slog.String("client_id", clientID),
			slog.String("username", username),
			slog.Int("count", len(tokens)),
		)
	}
}
