package service

// FailureCode classifies why an authentication attempt was rejected. The code
// is internal: it drives logging and tests, never the response body.
type FailureCode string

const (
	CodeInvalidClientContext FailureCode = "invalid_client_context"
	CodeUserNotFound         FailureCode = "user_not_found"
	CodeBadCredentials       FailureCode = "bad_credentials"
	CodeAccountDisabled      FailureCode = "account_disabled"
	CodeAccountExpired       FailureCode = "account_expired"
	CodeAccountLocked        FailureCode = "account_locked"
	CodeCredentialsExpired   FailureCode = "credentials_expired"
)

// AuthFailure is a deliberate rejection of an authentication attempt, as
// opposed to an infrastructure error (store unreachable, signing failure),
// which is returned untouched. Callers distinguish the two with errors.As.
type AuthFailure struct {
	Code     FailureCode
	Username string // attempted username, for internal logging only
}

func (e *AuthFailure) Error() string {
	return string(e.Code)
}

// PublicMessage is the only text safe to show a caller. Every failure code
// collapses to the same message so usernames cannot be enumerated by
// comparing responses.
func (e *AuthFailure) PublicMessage() string {
	return "authentication failed"
}

func failure(code FailureCode, username string) *AuthFailure {
	return &AuthFailure{Code: code, Username: username}
}
