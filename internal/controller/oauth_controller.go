package controller

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/middleware"
	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type OAuthControllerConfig struct {
	AppURL string
}

type OAuthController struct {
	config OAuthControllerConfig
	router *gin.RouterGroup
	authz  *service.AuthorizationService
	tokens *service.TokenService
}

func NewOAuthController(config OAuthControllerConfig, router *gin.RouterGroup, authz *service.AuthorizationService, tokens *service.TokenService) *OAuthController {
	return &OAuthController{
		config: config,
		router: router,
		authz:  authz,
		tokens: tokens,
	}
}

func (controller *OAuthController) SetupRoutes() {
	oauthGroup := controller.router.Group("/oauth2")
	oauthGroup.GET("/authorize", controller.authorizeHandler)
	oauthGroup.POST("/token", controller.tokenHandler)
	oauthGroup.GET("/userinfo", controller.userinfoHandler)
}

func (controller *OAuthController) authorizeHandler(c *gin.Context) {
	req := service.AuthorizationRequest{
		ResponseType:        c.Query("response_type"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		Nonce:               c.Query("nonce"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}

	// Missing core parameters get a direct JSON answer, the redirect
	// target is not trusted yet
	if req.ClientID == "" || req.RedirectURI == "" || req.ResponseType == "" {
		c.JSON(http.StatusBadRequest, config.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Missing required parameters",
		})
		return
	}

	client, grantedScopes, err := controller.authz.ValidateRequest(req)
	if err != nil {
		controller.authorizeError(c, req, err)
		return
	}

	userContext := middleware.GetUserContext(c)

	if !userContext.IsLoggedIn {
		c.Redirect(http.StatusFound, controller.authz.BuildLoginRedirect(c.Request.URL.Path, c.Request.URL.RawQuery))
		return
	}

	if userContext.MfaPending {
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "access_denied", "Multi-factor verification required")
		return
	}

	authCode, err := controller.authz.IssueCode(client, req, grantedScopes, userContext.UserID, userContext.Username)
	if err != nil {
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("Failed to issue authorization code")
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "server_error", "Internal server error")
		return
	}

	location, err := controller.authz.BuildSuccessRedirect(req.RedirectURI, authCode.Code, req.State)
	if err != nil {
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "server_error", "Internal server error")
		return
	}

	c.Redirect(http.StatusFound, location)
}

// authorizeError answers validation failures: everything up to and
// including the redirect URI check is a direct JSON error, the rest is
// delivered on the (now trusted) redirect target. Internal failures are
// also answered directly, the redirect URI has not been validated when
// the client lookup itself fails.
func (controller *OAuthController) authorizeError(c *gin.Context, req service.AuthorizationRequest, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedResponseType):
		c.JSON(http.StatusBadRequest, config.ErrorResponse{
			Error:            "unsupported_response_type",
			ErrorDescription: "Only the code response type is supported",
		})
	case errors.Is(err, service.ErrUnknownClient), errors.Is(err, service.ErrDisabledClient):
		c.JSON(http.StatusUnauthorized, config.ErrorResponse{
			Error:            "invalid_client",
			ErrorDescription: "Unknown or disabled client",
		})
	case errors.Is(err, service.ErrInvalidRedirectURI):
		c.JSON(http.StatusBadRequest, config.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid redirect_uri",
		})
	case errors.Is(err, service.ErrInvalidScope):
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "invalid_scope", "Requested scope is not allowed for this client")
	case errors.Is(err, service.ErrMissingCodeChallenge):
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "invalid_request", "Client requires a PKCE code_challenge")
	case errors.Is(err, service.ErrInvalidChallengeMethod):
		controller.redirectOrJSON(c, req.RedirectURI, req.State, "invalid_request", "Unsupported code_challenge_method")
	default:
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("Authorize request validation failed")
		c.JSON(http.StatusInternalServerError, config.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Internal server error",
		})
	}
}

func (controller *OAuthController) redirectOrJSON(c *gin.Context, redirectURI string, state string, errorCode string, description string) {
	location, err := controller.authz.BuildErrorRedirect(redirectURI, errorCode, description, state)
	if err != nil {
		c.JSON(http.StatusBadRequest, config.ErrorResponse{
			Error:            errorCode,
			ErrorDescription: description,
		})
		return
	}

	c.Redirect(http.StatusFound, location)
}

// TokenEndpointRequest binds both form-encoded and JSON token requests.
type TokenEndpointRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	Code         string `form:"code" json:"code"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
}

func (controller *OAuthController) tokenHandler(c *gin.Context) {
	var body TokenEndpointRequest

	if err := c.ShouldBind(&body); err != nil {
		controller.tokenError(c, http.StatusBadRequest, "invalid_request", "Malformed token request")
		return
	}

	req := service.TokenRequest{
		GrantType:    body.GrantType,
		Code:         body.Code,
		RedirectURI:  body.RedirectURI,
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		CodeVerifier: body.CodeVerifier,
	}

	// Basic auth takes precedence over body credentials
	if basicID, basicSecret, ok := basicCredentials(c); ok {
		req.ClientID = basicID
		req.ClientSecret = basicSecret
	}

	if req.ClientID == "" {
		controller.tokenError(c, http.StatusUnauthorized, "invalid_client", "Missing client credentials")
		return
	}

	response, err := controller.tokens.Exchange(req, time.Now())
	if err != nil {
		controller.exchangeError(c, req, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, response)
}

func (controller *OAuthController) exchangeError(c *gin.Context, req service.TokenRequest, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedGrantType):
		controller.tokenError(c, http.StatusBadRequest, "unsupported_grant_type", "Only the authorization_code grant type is supported")
	case errors.Is(err, service.ErrUnknownClient), errors.Is(err, service.ErrDisabledClient), errors.Is(err, service.ErrInvalidClientSecret):
		controller.tokenError(c, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
	case errors.Is(err, service.ErrUnauthorizedClient):
		controller.tokenError(c, http.StatusBadRequest, "unauthorized_client", "Client is not allowed to use this grant type")
	case errors.Is(err, service.ErrInvalidGrant), errors.Is(err, service.ErrPKCEFailed):
		// Deliberately uninformative, a caller probing codes learns
		// nothing about why the redemption failed
		controller.tokenError(c, http.StatusBadRequest, "invalid_grant", "Invalid or expired authorization code")
	default:
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("Token exchange failed")
		controller.tokenError(c, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

func (controller *OAuthController) tokenError(c *gin.Context, status int, errorCode string, description string) {
	c.Header("Cache-Control", "no-store")
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="keygate"`)
	}
	c.JSON(status, config.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

func (controller *OAuthController) userinfoHandler(c *gin.Context) {
	accessToken := bearerToken(c)
	if accessToken == "" {
		c.Header("WWW-Authenticate", `Bearer realm="keygate"`)
		c.JSON(http.StatusUnauthorized, config.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Missing access token",
		})
		return
	}

	userContext, _, err := controller.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("Access token validation failed")
		c.Header("WWW-Authenticate", `Bearer realm="keygate", error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, config.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Invalid or expired access token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":                userContext.UserID,
		"preferred_username": userContext.Username,
		"roles":              userContext.Roles,
	})
}

// basicCredentials extracts client_secret_basic credentials. Query
// parameters are never accepted, they leak into access logs.
func basicCredentials(c *gin.Context) (string, string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Basic ") {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return "", "", false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	return parts[0], parts[1], true
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
