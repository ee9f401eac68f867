package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/keygate-dev/keygate/internal/pkce"
	"github.com/keygate-dev/keygate/internal/service"

	"gotest.tools/v3/assert"
)

func authorizeQuery(challenge string) url.Values {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "test-client")
	query.Set("redirect_uri", "http://localhost:8080/callback")
	query.Set("scope", "openid")
	query.Set("state", "xyz")
	if challenge != "" {
		query.Set("code_challenge", challenge)
		query.Set("code_challenge_method", "S256")
	}
	return query
}

func newChallenge(t *testing.T) (string, string) {
	t.Helper()

	verifier, err := pkce.GenerateVerifier(64)
	assert.NilError(t, err)

	challenge, err := pkce.ComputeChallenge(verifier, pkce.MethodS256)
	assert.NilError(t, err)

	return verifier, challenge
}

func TestAuthorizeRedirectsAnonymousToLogin(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	_, challenge := newChallenge(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)
	location := recorder.Header().Get("Location")
	assert.Assert(t, strings.HasPrefix(location, "http://localhost:3000/login?redirect_uri="))
}

func TestAuthorizeUnknownClientIsDirectError(t *testing.T) {
	app := setupApp(t)

	_, challenge := newChallenge(t)
	query := authorizeQuery(challenge)
	query.Set("client_id", "missing")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+query.Encode(), nil)
	app.engine.ServeHTTP(recorder, req)

	// Never redirect before the client and redirect_uri are validated
	assert.Equal(t, recorder.Code, http.StatusUnauthorized)
	assert.Equal(t, recorder.Header().Get("Location"), "")

	var body map[string]string
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "invalid_client")
}

func TestAuthorizeBadRedirectURIIsDirectError(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	_, challenge := newChallenge(t)
	query := authorizeQuery(challenge)
	query.Set("redirect_uri", "http://evil.example/callback")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+query.Encode(), nil)
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Equal(t, recorder.Header().Get("Location"), "")
}

func TestAuthorizeStoreFailureIsDirectError(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	sqlDB, err := app.database.DB()
	assert.NilError(t, err)
	assert.NilError(t, sqlDB.Close())

	_, challenge := newChallenge(t)
	query := authorizeQuery(challenge)
	query.Set("redirect_uri", "http://evil.example/callback")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+query.Encode(), nil)
	app.engine.ServeHTTP(recorder, req)

	// The client lookup fails before the redirect_uri is validated, so an
	// internal error must never 302 to the caller-supplied target
	assert.Equal(t, recorder.Code, http.StatusInternalServerError)
	assert.Equal(t, recorder.Header().Get("Location"), "")

	var body map[string]string
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "server_error")
}

func TestAuthorizeInvalidScopeRedirects(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	_, challenge := newChallenge(t)
	query := authorizeQuery(challenge)
	query.Set("scope", "openid admin")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+query.Encode(), nil)
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Host, "localhost:8080")
	assert.Equal(t, location.Query().Get("error"), "invalid_scope")
	assert.Equal(t, location.Query().Get("state"), "xyz")
}

func TestAuthorizeRejectsPendingCredential(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	_, challenge := newChallenge(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+app.sessionToken(t, true))
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Query().Get("error"), "access_denied")
	assert.Equal(t, location.Query().Get("code"), "")
}

func exchangeForm(code string, verifier string) url.Values {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "http://localhost:8080/callback")
	form.Set("client_id", "test-client")
	form.Set("client_secret", "supersecret")
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}
	return form
}

func postToken(app *testApp, form url.Values) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.engine.ServeHTTP(recorder, req)
	return recorder
}

func TestAuthorizationCodeFlow(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	verifier, challenge := newChallenge(t)

	// Authorize with a full session
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+app.sessionToken(t, false))
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Host, "localhost:8080")
	assert.Equal(t, location.Query().Get("state"), "xyz")

	code := location.Query().Get("code")
	assert.Assert(t, code != "")

	// Exchange the code
	tokenRecorder := postToken(app, exchangeForm(code, verifier))
	assert.Equal(t, tokenRecorder.Code, http.StatusOK)
	assert.Equal(t, tokenRecorder.Header().Get("Cache-Control"), "no-store")

	var response service.TokenResponse
	assert.NilError(t, json.Unmarshal(tokenRecorder.Body.Bytes(), &response))
	assert.Equal(t, response.TokenType, "Bearer")
	assert.Assert(t, response.AccessToken != "")
	assert.Assert(t, response.IDToken != "")

	// Userinfo with the access token
	userinfoRecorder := httptest.NewRecorder()
	userinfoReq := httptest.NewRequest("GET", "/oauth2/userinfo", nil)
	userinfoReq.Header.Set("Authorization", "Bearer "+response.AccessToken)
	app.engine.ServeHTTP(userinfoRecorder, userinfoReq)

	assert.Equal(t, userinfoRecorder.Code, http.StatusOK)

	var claims map[string]any
	assert.NilError(t, json.Unmarshal(userinfoRecorder.Body.Bytes(), &claims))
	assert.Equal(t, claims["sub"], app.userID)
	assert.Equal(t, claims["preferred_username"], "testuser")

	// A second exchange of the same code fails
	replayRecorder := postToken(app, exchangeForm(code, verifier))
	assert.Equal(t, replayRecorder.Code, http.StatusBadRequest)

	var errorBody map[string]string
	assert.NilError(t, json.Unmarshal(replayRecorder.Body.Bytes(), &errorBody))
	assert.Equal(t, errorBody["error"], "invalid_grant")
}

func TestTokenEndpointBasicAuth(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	verifier, challenge := newChallenge(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+app.sessionToken(t, false))
	app.engine.ServeHTTP(recorder, req)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	code := location.Query().Get("code")

	form := exchangeForm(code, verifier)
	form.Del("client_id")
	form.Del("client_secret")

	tokenRecorder := httptest.NewRecorder()
	tokenReq := httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenReq.SetBasicAuth("test-client", "supersecret")
	app.engine.ServeHTTP(tokenRecorder, tokenReq)

	assert.Equal(t, tokenRecorder.Code, http.StatusOK)
}

func TestTokenEndpointRejectsRefreshTokenGrant(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", "whatever")
	form.Set("client_id", "test-client")
	form.Set("client_secret", "supersecret")

	recorder := postToken(app, form)
	assert.Equal(t, recorder.Code, http.StatusBadRequest)

	var body map[string]string
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "unsupported_grant_type")
}

func TestTokenEndpointRejectsWrongSecret(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	verifier, challenge := newChallenge(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+app.sessionToken(t, false))
	app.engine.ServeHTTP(recorder, req)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)

	form := exchangeForm(location.Query().Get("code"), verifier)
	form.Set("client_secret", "wrong")

	tokenRecorder := postToken(app, form)
	assert.Equal(t, tokenRecorder.Code, http.StatusUnauthorized)

	var body map[string]string
	assert.NilError(t, json.Unmarshal(tokenRecorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "invalid_client")
}

func TestTokenEndpointObscuresPKCEFailure(t *testing.T) {
	app := setupApp(t)
	app.registerClient(t)

	_, challenge := newChallenge(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/authorize?"+authorizeQuery(challenge).Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+app.sessionToken(t, false))
	app.engine.ServeHTTP(recorder, req)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)

	otherVerifier, err := pkce.GenerateVerifier(64)
	assert.NilError(t, err)

	tokenRecorder := postToken(app, exchangeForm(location.Query().Get("code"), otherVerifier))
	assert.Equal(t, tokenRecorder.Code, http.StatusBadRequest)

	// A failed verifier looks exactly like a dead code on the wire
	var body map[string]string
	assert.NilError(t, json.Unmarshal(tokenRecorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "invalid_grant")
}

func TestTokenEndpointEnforcesClientGrantTypes(t *testing.T) {
	app := setupApp(t)

	client, err := app.clients.Register("legacy-client", "Legacy", "supersecret", []string{"http://localhost:8080/callback"}, []string{"openid"}, []string{service.GrantTypeRefreshToken}, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := app.codes.Create(client, app.userID, "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	form := exchangeForm(authCode.Code, "")
	form.Set("client_id", "legacy-client")

	recorder := postToken(app, form)
	assert.Equal(t, recorder.Code, http.StatusBadRequest)

	var body map[string]string
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], "unauthorized_client")
}

func TestUserinfoRejectsMissingToken(t *testing.T) {
	app := setupApp(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/oauth2/userinfo", nil)
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusUnauthorized)
}

func TestDiscoveryDocument(t *testing.T) {
	app := setupApp(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/.well-known/openid-configuration", nil)
	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusOK)

	var doc map[string]any
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &doc))
	assert.Equal(t, doc["issuer"], "http://localhost:3000")
	assert.Equal(t, doc["token_endpoint"], "http://localhost:3000/oauth2/token")

	jwksRecorder := httptest.NewRecorder()
	jwksReq := httptest.NewRequest("GET", "/.well-known/jwks.json", nil)
	app.engine.ServeHTTP(jwksRecorder, jwksReq)

	assert.Equal(t, jwksRecorder.Code, http.StatusOK)

	var jwks map[string][]map[string]any
	assert.NilError(t, json.Unmarshal(jwksRecorder.Body.Bytes(), &jwks))
	assert.Equal(t, len(jwks["keys"]), 1)
	assert.Equal(t, jwks["keys"][0]["alg"], "RS256")
	assert.Equal(t, jwks["keys"][0]["use"], "sig")
}
