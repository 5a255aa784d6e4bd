package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/auth/service"
	"github.com/gatehouse-id/gatehouse/pkg/authsdk"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// RevokeHandler serves POST /v1/oauth2/revoke following RFC 7009. Unknown or
// already-revoked tokens still return 200 OK to prevent token scanning.
type RevokeHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes a previously issued access or refresh token (RFC 7009).
//	@Description	The endpoint is idempotent and returns 200 OK even for invalid/unknown tokens to prevent token scanning attacks.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string	true	"The token to revoke"
//	@Param			client_id		formData	string	false	"Client identifier (or via Basic auth)"
//	@Param			client_secret	formData	string	false	"Client secret (or via Basic auth)"
//	@Success		200				"Token revoked (or was already invalid)"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/v1/oauth2/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	clientID, clientSecret := clientCredentials(r, r.Form)

	if err := h.TokenService.Revoke(ctx, clientID, clientSecret, token); err != nil {
		// Client authentication failures are real errors; anything about the
		// token itself is reported as success per RFC 7009.
		if errors.Is(err, service.ErrInvalidClient) {
			authsdk.ErrInvalidClient.WriteError(w)
			return
		}
		log.Warn("revoke failed", "err", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
