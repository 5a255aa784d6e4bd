package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	"github.com/gatehouse-id/gatehouse/internal/auth/service"
	"github.com/gatehouse-id/gatehouse/pkg/authsdk"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues access and refresh tokens using OAuth2 grant types (password, refresh_token).
//	@Description	Client credentials may be sent via HTTP Basic auth or form parameters.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(password, refresh_token)
//	@Param			username		formData	string					false	"Resource owner username (required for password grant)"
//	@Param			password		formData	string					false	"Resource owner password (required for password grant)"
//	@Param			refresh_token	formData	string					false	"Refresh token (required for refresh_token grant)"
//	@Param			client_id		formData	string					false	"Client identifier (or via Basic auth)"
//	@Param			client_secret	formData	string					false	"Client secret (or via Basic auth)"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, refresh_token, token_type, expires_in, scope"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/v1/oauth2/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	switch r.Form.Get("grant_type") {
	case service.GrantPassword:
		h.handlePasswordGrant(w, r, r.Form)
	case service.GrantRefreshToken:
		h.handleRefreshGrant(w, r, r.Form)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handlePasswordGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID, clientSecret := clientCredentials(r, form)
	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")

	if username == "" || password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangePassword(ctx, clientID, clientSecret,
		service.PasswordCredentials{Username: username, Password: password},
		httpx.ClientIP(r),
	)
	if err != nil {
		writeTokenError(w, log, err)
		return
	}

	writeTokenPair(w, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID, clientSecret := clientCredentials(r, form)
	refresh := form.Get("refresh_token")

	if refresh == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefresh(ctx, clientID, clientSecret, refresh)
	if err != nil {
		writeTokenError(w, log, err)
		return
	}

	writeTokenPair(w, pair)
}

func writeTokenPair(w http.ResponseWriter, pair *domain.TokenPair) {
	response := authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
		Scope:        strings.TrimSpace(pair.Scope),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

// writeTokenError maps service errors to OAuth2 responses. Every
// authentication failure collapses to the same invalid_grant body; the
// distinguishing code is only logged.
func writeTokenError(w http.ResponseWriter, log *slog.Logger, err error) {
	var af *service.AuthFailure
	switch {
	case errors.As(err, &af):
		log.Info("token: authentication rejected",
			slog.String("code", string(af.Code)),
			slog.String("username", af.Username),
		)
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidGrant):
		authsdk.ErrUnauthorizedClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidRefresh):
		authsdk.ErrInvalidGrant.WriteError(w)
	default:
		log.Error("token: grant failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// clientCredentials resolves the client_id/client_secret pair from HTTP Basic
// auth, falling back to form parameters. Basic auth wins when both are
// present, per RFC 6749 section 2.3.1.
func clientCredentials(r *http.Request, form url.Values) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return strings.TrimSpace(form.Get("client_id")), form.Get("client_secret")
}
