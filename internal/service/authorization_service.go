package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/keygate-dev/keygate/internal/model"
	"github.com/keygate-dev/keygate/internal/pkce"
)

type AuthorizationServiceConfig struct {
	AppURL string
}

// AuthorizationService validates authorize requests against the client
// registry and mints authorization codes for authenticated callers.
type AuthorizationService struct {
	config  AuthorizationServiceConfig
	clients *ClientService
	codes   *CodeService
	audit   *AuditService
}

// AuthorizationRequest carries the parsed query of an authorize call.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

func NewAuthorizationService(config AuthorizationServiceConfig, clients *ClientService, codes *CodeService, audit *AuditService) *AuthorizationService {
	return &AuthorizationService{
		config:  config,
		clients: clients,
		codes:   codes,
		audit:   audit,
	}
}

// ValidateRequest runs the checks in a fixed order and returns the client
// and the granted scopes. Errors up to and including the redirect URI check
// must be answered directly; the redirect target is untrusted until then.
func (authz *AuthorizationService) ValidateRequest(req AuthorizationRequest) (*model.Client, []string, error) {
	if req.ResponseType != "code" {
		return nil, nil, ErrUnsupportedResponseType
	}

	client, err := authz.clients.GetClient(req.ClientID)
	if err != nil {
		return nil, nil, err
	}

	if !client.Enabled {
		return nil, nil, ErrDisabledClient
	}

	if !authz.clients.ValidateRedirectURI(client, req.RedirectURI) {
		return nil, nil, ErrInvalidRedirectURI
	}

	// redirect_uri is trusted from here on; remaining failures may redirect

	granted, err := authz.clients.ValidateScope(client, strings.Fields(req.Scope))
	if err != nil {
		return client, nil, err
	}

	if client.RequirePKCE && req.CodeChallenge == "" {
		return client, nil, ErrMissingCodeChallenge
	}

	if req.CodeChallenge != "" {
		supported := false
		for _, method := range SupportedChallengeMethods {
			if challengeMethod(req) == method {
				supported = true
				break
			}
		}
		if !supported {
			return client, nil, ErrInvalidChallengeMethod
		}
	}

	return client, granted, nil
}

// challengeMethod applies the RFC 7636 default: a challenge sent without a
// method is treated as plain.
func challengeMethod(req AuthorizationRequest) string {
	if req.CodeChallengeMethod == "" {
		return pkce.MethodPlain
	}
	return req.CodeChallengeMethod
}

// IssueCode mints an authorization code for a validated request after the
// caller has been authenticated.
func (authz *AuthorizationService) IssueCode(client *model.Client, req AuthorizationRequest, grantedScopes []string, userID string, username string) (*model.AuthorizationCode, error) {
	method := challengeMethod(req)
	if req.CodeChallenge == "" {
		method = ""
	}

	authCode, err := authz.codes.Create(client, userID, username, req.RedirectURI, strings.Join(grantedScopes, " "), req.CodeChallenge, method, req.Nonce)
	if err != nil {
		return nil, err
	}

	authz.audit.Success(AuditCodeIssued, username, client.ClientID, authCode.Scope)

	return authCode, nil
}

// BuildSuccessRedirect appends code and state to the redirect URI while
// preserving any query string the client registered.
func (authz *AuthorizationService) BuildSuccessRedirect(redirectURI string, code string, state string) (string, error) {
	redirectURL, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect uri: %w", err)
	}

	query := redirectURL.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	redirectURL.RawQuery = query.Encode()

	return redirectURL.String(), nil
}

// BuildErrorRedirect delivers an OAuth2 error to a redirect URI that has
// already passed validation.
func (authz *AuthorizationService) BuildErrorRedirect(redirectURI string, errorCode string, description string, state string) (string, error) {
	redirectURL, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect uri: %w", err)
	}

	query := redirectURL.Query()
	query.Set("error", errorCode)
	if description != "" {
		query.Set("error_description", description)
	}
	if state != "" {
		query.Set("state", state)
	}
	redirectURL.RawQuery = query.Encode()

	return redirectURL.String(), nil
}

// BuildLoginRedirect suspends the flow for an unauthenticated caller by
// sending them to the login prompt with the original authorize query
// preserved, so the flow can resume after authentication.
func (authz *AuthorizationService) BuildLoginRedirect(originalPath string, rawQuery string) string {
	authorizeURL := fmt.Sprintf("%s%s", strings.TrimSuffix(authz.config.AppURL, "/"), originalPath)
	if rawQuery != "" {
		authorizeURL = fmt.Sprintf("%s?%s", authorizeURL, rawQuery)
	}
	return fmt.Sprintf("%s/login?redirect_uri=%s", strings.TrimSuffix(authz.config.AppURL, "/"), url.QueryEscape(authorizeURL))
}
