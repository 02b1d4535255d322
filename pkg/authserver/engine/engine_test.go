// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/authserver/upstream"
	"github.com/stackmesh/authgate/pkg/oauth"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testRedirect  = "https://client.example/cb"
	testIssuer    = "https://auth.example"
	testUserDoc   = `{"id": 42, "login": "alice", "email": "alice@example.com"}`
	upstreamToken = `{"access_token":"upstream-token","token_type":"bearer"}`
)

type testEnv struct {
	engine   *Engine
	registry *registry.Registry
	store    storage.Store
}

func newTestEnv(t *testing.T, allowedUsers, userDoc string) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "idp-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamToken))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userDoc))
	})
	idp := httptest.NewServer(mux)
	t.Cleanup(idp.Close)

	km, err := keys.LoadOrGenerate(filepath.Join(t.TempDir(), "signing.pem"), bytes.Repeat([]byte("s"), 32))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	reg := registry.New(store, km, 0)
	fed := upstream.New(upstream.Config{
		ClientID:     "idp-client",
		ClientSecret: "idp-secret",
		AuthorizeURL: idp.URL + "/authorize",
		TokenURL:     idp.URL + "/token",
		UserInfoURL:  idp.URL + "/user",
		RedirectURL:  testIssuer + "/callback",
		AllowedUsers: allowedUsers,
	})

	eng := New(Config{Issuer: testIssuer}, store, km, reg, fed)
	return &testEnv{engine: eng, registry: reg, store: store}
}

func (env *testEnv) registerClient(t *testing.T, method string) *registry.Registration {
	t.Helper()
	md := &registry.Metadata{
		RedirectURIs: []string{testRedirect},
		ClientName:   "flow test",
	}
	if method != "" {
		md.TokenEndpointAuthMethod = method
	}
	reg, err := env.registry.Register(context.Background(), md)
	require.NoError(t, err)
	return reg
}

// runToCode drives authorize + callback and returns the authorization code.
func (env *testEnv) runToCode(t *testing.T, clientID, clientState string) string {
	t.Helper()
	ctx := context.Background()

	idpURL, err := env.engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        oauth.ResponseTypeCode,
		ClientID:            clientID,
		RedirectURI:         testRedirect,
		CodeChallenge:       oauth.S256Challenge(testVerifier),
		CodeChallengeMethod: oauth.PKCEChallengeMethodS256,
		State:               clientState,
	})
	require.NoError(t, err)

	u, err := url.Parse(idpURL)
	require.NoError(t, err)
	flowState := u.Query().Get("state")
	require.NotEmpty(t, flowState)

	redirect, err := env.engine.Callback(ctx, "idp-code", flowState)
	require.NoError(t, err)

	ru, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, clientState, ru.Query().Get("state"))
	code := ru.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func flowErr(t *testing.T, err error) *FlowError {
	t.Helper()
	var fe *FlowError
	require.ErrorAs(t, err, &fe)
	return fe
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")

	base := func() *AuthorizeRequest {
		return &AuthorizeRequest{
			ResponseType:        oauth.ResponseTypeCode,
			ClientID:            client.Client.ClientID,
			RedirectURI:         testRedirect,
			CodeChallenge:       oauth.S256Challenge(testVerifier),
			CodeChallengeMethod: oauth.PKCEChallengeMethodS256,
			State:               "xyz",
		}
	}

	t.Run("unknown client renders page", func(t *testing.T) {
		req := base()
		req.ClientID = "nope"
		_, err := env.engine.Authorize(ctx, req)
		fe := flowErr(t, err)
		assert.False(t, fe.Redirectable)
	})

	t.Run("unregistered redirect renders page", func(t *testing.T) {
		req := base()
		req.RedirectURI = "https://evil.example/cb"
		_, err := env.engine.Authorize(ctx, req)
		fe := flowErr(t, err)
		assert.False(t, fe.Redirectable)
	})

	t.Run("trailing slash is not forgiven", func(t *testing.T) {
		req := base()
		req.RedirectURI = testRedirect + "/"
		_, err := env.engine.Authorize(ctx, req)
		assert.False(t, flowErr(t, err).Redirectable)
	})

	t.Run("bad response type redirects", func(t *testing.T) {
		req := base()
		req.ResponseType = "token"
		_, err := env.engine.Authorize(ctx, req)
		fe := flowErr(t, err)
		assert.True(t, fe.Redirectable)
		assert.Equal(t, oauth.ErrorCodeUnsupportedResponseType, fe.Err.Code)
		assert.Contains(t, fe.RedirectURL(), "state=xyz")
	})

	t.Run("plain challenge method redirects", func(t *testing.T) {
		req := base()
		req.CodeChallengeMethod = "plain"
		_, err := env.engine.Authorize(ctx, req)
		fe := flowErr(t, err)
		assert.True(t, fe.Redirectable)
		assert.Equal(t, oauth.ErrorCodeInvalidRequest, fe.Err.Code)
	})

	t.Run("challenge length bounds", func(t *testing.T) {
		for _, n := range []int{42, 129} {
			req := base()
			req.CodeChallenge = strings.Repeat("a", n)
			_, err := env.engine.Authorize(ctx, req)
			assert.True(t, flowErr(t, err).Redirectable, "length %d", n)
		}
		for _, n := range []int{43, 128} {
			req := base()
			req.CodeChallenge = strings.Repeat("a", n)
			_, err := env.engine.Authorize(ctx, req)
			assert.NoError(t, err, "length %d", n)
		}
	})

	t.Run("missing state redirects", func(t *testing.T) {
		req := base()
		req.State = ""
		_, err := env.engine.Authorize(ctx, req)
		assert.True(t, flowErr(t, err).Redirectable)
	})
}

// collidingStore reports every PutIfAbsent key as already taken.
type collidingStore struct {
	storage.Store
}

func (s *collidingStore) PutIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}

func TestAuthorizeStateCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")
	env.engine.store = &collidingStore{Store: env.store}

	_, err := env.engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        oauth.ResponseTypeCode,
		ClientID:            client.Client.ClientID,
		RedirectURI:         testRedirect,
		CodeChallenge:       oauth.S256Challenge(testVerifier),
		CodeChallengeMethod: oauth.PKCEChallengeMethodS256,
		State:               "xyz",
	})
	fe := flowErr(t, err)
	assert.True(t, fe.Redirectable)
	assert.Equal(t, oauth.ErrorCodeServerError, fe.Err.Code)
}

func TestFullFlowWithRefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "alice", testUserDoc)
	client := env.registerClient(t, "")
	code := env.runToCode(t, client.Client.ClientID, "xyz")

	resp, err := env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		ClientID:     client.Client.ClientID,
		ClientSecret: client.ClientSecret,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(DefaultAccessTokenLifetime.Seconds()), resp.ExpiresIn)

	verified, err := env.engine.Verify(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "42", verified.UserID)
	assert.Equal(t, "alice", verified.UserName)
	assert.Equal(t, resp.AccessToken, verified.Token)

	// Rotation: new pair comes back, the old pair dies.
	rotated, err := env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeRefreshToken,
		ClientID:     client.Client.ClientID,
		ClientSecret: client.ClientSecret,
		RefreshToken: resp.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, resp.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, resp.RefreshToken, rotated.RefreshToken)

	_, err = env.engine.Verify(ctx, resp.AccessToken)
	assert.Error(t, err)
	_, err = env.engine.Verify(ctx, rotated.AccessToken)
	assert.NoError(t, err)

	// The consumed refresh token is gone for good.
	_, err = env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeRefreshToken,
		ClientID:     client.Client.ClientID,
		ClientSecret: client.ClientSecret,
		RefreshToken: resp.RefreshToken,
	})
	assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
}

func TestPublicClientFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, oauth.TokenEndpointAuthNone)
	code := env.runToCode(t, client.Client.ClientID, "s1")

	resp, err := env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		ClientID:     client.Client.ClientID,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestCallbackStateReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")

	idpURL, err := env.engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        oauth.ResponseTypeCode,
		ClientID:            client.Client.ClientID,
		RedirectURI:         testRedirect,
		CodeChallenge:       oauth.S256Challenge(testVerifier),
		CodeChallengeMethod: oauth.PKCEChallengeMethodS256,
		State:               "xyz",
	})
	require.NoError(t, err)
	u, err := url.Parse(idpURL)
	require.NoError(t, err)
	flowState := u.Query().Get("state")

	_, err = env.engine.Callback(ctx, "idp-code", flowState)
	require.NoError(t, err)

	// Same state a second time finds nothing.
	_, err = env.engine.Callback(ctx, "idp-code", flowState)
	assertOAuthCode(t, err, oauth.ErrorCodeInvalidRequest)
}

func TestCallbackDisallowedUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "bob", testUserDoc) // alice authenticates, bob is allowed
	client := env.registerClient(t, "")

	idpURL, err := env.engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        oauth.ResponseTypeCode,
		ClientID:            client.Client.ClientID,
		RedirectURI:         testRedirect,
		CodeChallenge:       oauth.S256Challenge(testVerifier),
		CodeChallengeMethod: oauth.PKCEChallengeMethodS256,
		State:               "xyz",
	})
	require.NoError(t, err)
	u, err := url.Parse(idpURL)
	require.NoError(t, err)

	redirect, err := env.engine.Callback(ctx, "idp-code", u.Query().Get("state"))
	require.NoError(t, err)

	ru, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, oauth.ErrorCodeAccessDenied, ru.Query().Get("error"))
	assert.Equal(t, "xyz", ru.Query().Get("state"))
	assert.Empty(t, ru.Query().Get("code"))
}

func TestTokenCodeMisuse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")
	other := env.registerClient(t, "")

	valid := func(code string) *TokenRequest {
		return &TokenRequest{
			GrantType:    oauth.GrantTypeAuthorizationCode,
			ClientID:     client.Client.ClientID,
			ClientSecret: client.ClientSecret,
			Code:         code,
			RedirectURI:  testRedirect,
			CodeVerifier: testVerifier,
		}
	}

	t.Run("double redemption", func(t *testing.T) {
		code := env.runToCode(t, client.Client.ClientID, "s")
		_, err := env.engine.Token(ctx, valid(code))
		require.NoError(t, err)
		_, err = env.engine.Token(ctx, valid(code))
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("code issued to another client", func(t *testing.T) {
		code := env.runToCode(t, client.Client.ClientID, "s")
		req := valid(code)
		req.ClientID = other.Client.ClientID
		req.ClientSecret = other.ClientSecret
		_, err := env.engine.Token(ctx, req)
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)

		// The attempt burned the code for the rightful client too.
		_, err = env.engine.Token(ctx, valid(code))
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("redirect uri mismatch", func(t *testing.T) {
		code := env.runToCode(t, client.Client.ClientID, "s")
		req := valid(code)
		req.RedirectURI = testRedirect + "/other"
		_, err := env.engine.Token(ctx, req)
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		code := env.runToCode(t, client.Client.ClientID, "s")
		req := valid(code)
		req.CodeVerifier = strings.Repeat("b", 43)
		_, err := env.engine.Token(ctx, req)
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("bad client secret", func(t *testing.T) {
		code := env.runToCode(t, client.Client.ClientID, "s")
		req := valid(code)
		req.ClientSecret = "wrong"
		_, err := env.engine.Token(ctx, req)
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidClient)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		req := valid("unused")
		req.GrantType = "client_credentials"
		_, err := env.engine.Token(ctx, req)
		assertOAuthCode(t, err, oauth.ErrorCodeUnsupportedGrantType)
	})

	t.Run("grant not registered for client", func(t *testing.T) {
		codeOnly, err := env.registry.Register(ctx, &registry.Metadata{
			RedirectURIs: []string{testRedirect},
			GrantTypes:   []string{oauth.GrantTypeAuthorizationCode},
		})
		require.NoError(t, err)

		_, err = env.engine.Token(ctx, &TokenRequest{
			GrantType:    oauth.GrantTypeRefreshToken,
			ClientID:     codeOnly.Client.ClientID,
			ClientSecret: codeOnly.ClientSecret,
			RefreshToken: "unused",
		})
		assertOAuthCode(t, err, oauth.ErrorCodeUnauthorizedClient)
	})
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")

	issue := func(t *testing.T) *TokenResponse {
		code := env.runToCode(t, client.Client.ClientID, "s")
		resp, err := env.engine.Token(ctx, &TokenRequest{
			GrantType:    oauth.GrantTypeAuthorizationCode,
			ClientID:     client.Client.ClientID,
			ClientSecret: client.ClientSecret,
			Code:         code,
			RedirectURI:  testRedirect,
			CodeVerifier: testVerifier,
		})
		require.NoError(t, err)
		return resp
	}
	auth := &TokenRequest{ClientID: client.Client.ClientID, ClientSecret: client.ClientSecret}

	t.Run("access token", func(t *testing.T) {
		resp := issue(t)
		require.NoError(t, env.engine.Revoke(ctx, auth, resp.AccessToken))
		_, err := env.engine.Verify(ctx, resp.AccessToken)
		assert.Error(t, err)
	})

	t.Run("refresh token kills the pair", func(t *testing.T) {
		resp := issue(t)
		require.NoError(t, env.engine.Revoke(ctx, auth, resp.RefreshToken))

		_, err := env.engine.Token(ctx, &TokenRequest{
			GrantType:    oauth.GrantTypeRefreshToken,
			ClientID:     client.Client.ClientID,
			ClientSecret: client.ClientSecret,
			RefreshToken: resp.RefreshToken,
		})
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidGrant)
		_, err = env.engine.Verify(ctx, resp.AccessToken)
		assert.Error(t, err)
	})

	t.Run("unknown token still succeeds", func(t *testing.T) {
		assert.NoError(t, env.engine.Revoke(ctx, auth, "never-issued"))
	})

	t.Run("requires client authentication", func(t *testing.T) {
		err := env.engine.Revoke(ctx, &TokenRequest{ClientID: client.Client.ClientID, ClientSecret: "bad"}, "x")
		assertOAuthCode(t, err, oauth.ErrorCodeInvalidClient)
	})
}

func TestIntrospect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")
	code := env.runToCode(t, client.Client.ClientID, "s")

	resp, err := env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		ClientID:     client.Client.ClientID,
		ClientSecret: client.ClientSecret,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	auth := &TokenRequest{ClientID: client.Client.ClientID, ClientSecret: client.ClientSecret}

	active, err := env.engine.Introspect(ctx, auth, resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, active.Active)
	assert.Equal(t, "42", active.Sub)
	assert.Equal(t, "alice", active.Username)
	assert.Equal(t, client.Client.ClientID, active.ClientID)
	assert.Equal(t, Audience, active.Aud)
	assert.Equal(t, testIssuer, active.Iss)

	require.NoError(t, env.engine.Revoke(ctx, auth, resp.AccessToken))
	revoked, err := env.engine.Introspect(ctx, auth, resp.AccessToken)
	require.NoError(t, err)
	assert.False(t, revoked.Active)

	garbage, err := env.engine.Introspect(ctx, auth, "not-a-jwt")
	require.NoError(t, err)
	assert.False(t, garbage.Active)
}

func TestRevokeClientTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)
	client := env.registerClient(t, "")

	var tokens []*TokenResponse
	for range 3 {
		code := env.runToCode(t, client.Client.ClientID, "s")
		resp, err := env.engine.Token(ctx, &TokenRequest{
			GrantType:    oauth.GrantTypeAuthorizationCode,
			ClientID:     client.Client.ClientID,
			ClientSecret: client.ClientSecret,
			Code:         code,
			RedirectURI:  testRedirect,
			CodeVerifier: testVerifier,
		})
		require.NoError(t, err)
		tokens = append(tokens, resp)
	}

	require.NoError(t, env.engine.RevokeClientTokens(ctx, client.Client.ClientID))
	for _, resp := range tokens {
		_, err := env.engine.Verify(ctx, resp.AccessToken)
		assert.Error(t, err)
	}

	members, err := env.store.SMembers(ctx, storage.ClientTokensKey(client.Client.ClientID))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestVerifyRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "*", testUserDoc)

	_, err := env.engine.Verify(ctx, "")
	assertOAuthCode(t, err, oauth.ErrorCodeInvalidToken)

	_, err = env.engine.Verify(ctx, "not-a-jwt")
	assertOAuthCode(t, err, oauth.ErrorCodeInvalidToken)

	// Signed by us but expired.
	env.engine.now = func() time.Time { return time.Now().Add(-2 * DefaultAccessTokenLifetime) }
	client := env.registerClient(t, "")
	code := env.runToCode(t, client.Client.ClientID, "s")
	resp, err := env.engine.Token(ctx, &TokenRequest{
		GrantType:    oauth.GrantTypeAuthorizationCode,
		ClientID:     client.Client.ClientID,
		ClientSecret: client.ClientSecret,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	_, err = env.engine.Verify(ctx, resp.AccessToken)
	assertOAuthCode(t, err, oauth.ErrorCodeInvalidToken)
}

func assertOAuthCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var oerr *oauth.Error
	require.True(t, errors.As(err, &oerr), "expected *oauth.Error, got %T: %v", err, err)
	assert.Equal(t, code, oerr.Code)
}
