package http

import (
	"net/http"

	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify access tokens.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(signer jwtx.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks := jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}}
		httpx.WriteJSON(w, http.StatusOK, jwks)
	}
}
