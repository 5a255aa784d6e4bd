package store

import (
	"context"
	"errors"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrVersionConflict reports an optimistic-concurrency failure: the row
	// was modified since it was read.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Clients() Clients
	Tokens() Tokens
	LoginAudit() LoginAudit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn returns
	// an error and committing otherwise. Preferred over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByUsername is the lookup the authentication pipeline runs.
	// Absent users map to ErrNotFound.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// RecordLogin persists the last-login metadata for a user: last known
	// IP and login timestamp. This is the only user mutation the
	// authentication pipeline performs.
	RecordLogin(ctx context.Context, userID, origin string, at time.Time) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetEnabled flips the enabled flag (administrative action).
	SetEnabled(ctx context.Context, userID string, enabled bool) error

	// DeleteUser removes a user.
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty reports whether there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Clients interface {
	// GetClientByClientID fetches a registration by the identifier clients
	// authenticate with.
	GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error)

	// ListClients returns all registrations ordered by creation date.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new registration at version 0.
	CreateClient(ctx context.Context, c domain.Client) error

	// UpdateClient persists a modified registration. The write carries the
	// version the caller read; a concurrent update surfaces as
	// ErrVersionConflict and the stored version increments on success.
	UpdateClient(ctx context.Context, c domain.Client) error

	// DeleteClient removes a registration.
	DeleteClient(ctx context.Context, clientID string) error

	// IsEmpty reports whether there are no registrations.
	IsEmpty(ctx context.Context) (bool, error)
}

// Tokens is the shared registry of issued access/refresh token pairs,
// indexed by (client, username). Revocations are idempotent: revoking an
// already-absent token is a no-op, not an error.
type Tokens interface {
	// CreateToken records a freshly issued pair (fingerprints, not raw
	// token values).
	CreateToken(ctx context.Context, t domain.IssuedToken) error

	// FindByClientAndUsername returns every live pair for the given
	// client/username. An empty result is an empty slice, never an error.
	FindByClientAndUsername(ctx context.Context, clientID, username string) ([]domain.IssuedToken, error)

	// GetByRefreshToken looks a pair up by refresh token fingerprint.
	GetByRefreshToken(ctx context.Context, refreshToken string) (domain.IssuedToken, error)

	// RevokeAccessToken removes the access-token side of a pair.
	RevokeAccessToken(ctx context.Context, accessToken string) error

	// RevokeRefreshToken removes the refresh-token side of a pair.
	RevokeRefreshToken(ctx context.Context, refreshToken string) error

	// DeleteExpiredTokens is housekeeping.
	DeleteExpiredTokens(ctx context.Context) error
}

type LoginAudit interface {
	// RecordLogin appends one successful-login audit row.
	RecordLogin(ctx context.Context, rec domain.LoginRecord) error

	// ListByUsername returns audit rows for a user, newest first.
	ListByUsername(ctx context.Context, username string, limit int) ([]domain.LoginRecord, error)

	// DeleteBefore removes audit rows older than the cutoff (housekeeping).
	DeleteBefore(ctx context.Context, cutoff time.Time) error
}
