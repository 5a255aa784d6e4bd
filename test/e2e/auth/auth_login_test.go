package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gatehouse-id/gatehouse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestPasswordLogin(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	pair, err := client.PasswordGrant(ctx, testClientID, testClientSecret, testUsername, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Positive(t, pair.ExpiresIn)
}

func TestPasswordLoginRejections(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", testUsername, "not-the-password"},
		{"unknown user", "mallory", testPassword},
	}

	var descriptions []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.PasswordGrant(ctx, testClientID, testClientSecret, tt.username, tt.password)
			require.Error(t, err)

			var oauthErr *authsdk.OAuth2Error
			require.True(t, errors.As(err, &oauthErr))
			require.Equal(t, authsdk.ErrorCodeInvalidGrant, oauthErr.Code)

			descriptions = append(descriptions, oauthErr.Description)
		})
	}

	// Wrong password and unknown user must be indistinguishable.
	require.Equal(t, descriptions[0], descriptions[1])
}

func TestPasswordLoginUnknownClient(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)

	_, err := client.PasswordGrant(context.Background(), "ghost", testClientSecret, testUsername, testPassword)
	var oauthErr *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oauthErr))
	require.Equal(t, authsdk.ErrorCodeInvalidClient, oauthErr.Code)
}

func TestRefreshRotation(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	pair, err := client.PasswordGrant(ctx, testClientID, testClientSecret, testUsername, testPassword)
	require.NoError(t, err)

	rotated, err := client.RefreshGrant(ctx, testClientID, testClientSecret, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed refresh token must not work a second time.
	_, err = client.RefreshGrant(ctx, testClientID, testClientSecret, pair.RefreshToken)
	var oauthErr *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oauthErr))
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, oauthErr.Code)
}

func TestRevocation(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	pair, err := client.PasswordGrant(ctx, testClientID, testClientSecret, testUsername, testPassword)
	require.NoError(t, err)

	require.NoError(t, client.RevokeToken(ctx, testClientID, testClientSecret, pair.RefreshToken))

	_, err = client.RefreshGrant(ctx, testClientID, testClientSecret, pair.RefreshToken)
	require.Error(t, err)

	// Revoking again (or revoking garbage) still succeeds per RFC 7009.
	require.NoError(t, client.RevokeToken(ctx, testClientID, testClientSecret, pair.RefreshToken))
	require.NoError(t, client.RevokeToken(ctx, testClientID, testClientSecret, "never-issued"))
}

// A login from a new network origin revokes the tokens issued to the previous
// origin. Origins are steered via X-Forwarded-For since every request here
// leaves the same test host.
func TestLoginFromNewOriginRevokesOldSessions(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := context.Background()

	first, err := passwordGrantFromOrigin(ctx, baseURL, "1.2.3.4")
	require.NoError(t, err)

	// Same origin again: the first session stays valid.
	_, err = passwordGrantFromOrigin(ctx, baseURL, "1.2.3.4")
	require.NoError(t, err)

	client := authsdk.NewSDKClient(baseURL)
	rotated, err := client.RefreshGrant(ctx, testClientID, testClientSecret, first.RefreshToken)
	require.NoError(t, err)

	// New origin: everything issued before is revoked.
	_, err = passwordGrantFromOrigin(ctx, baseURL, "5.6.7.8")
	require.NoError(t, err)

	_, err = client.RefreshGrant(ctx, testClientID, testClientSecret, rotated.RefreshToken)
	var oauthErr *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oauthErr))
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, oauthErr.Code)
}

// passwordGrantFromOrigin performs a password grant with a spoofed
// X-Forwarded-For so the server attributes the login to the given origin.
func passwordGrantFromOrigin(ctx context.Context, baseURL, origin string) (*authsdk.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
		"username":      {testUsername},
		"password":      {testPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", origin)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("password grant failed with status " + resp.Status)
	}

	var pair authsdk.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, err
	}
	return &pair, nil
}
