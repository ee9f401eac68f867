package controller

import (
	"fmt"
	"net/http"

	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type OpenIDConnectConfiguration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JwksUri                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

type WellKnownControllerConfig struct {
	AppURL string
}

type WellKnownController struct {
	config WellKnownControllerConfig
	engine *gin.Engine
	tokens *service.TokenService
}

func NewWellKnownController(config WellKnownControllerConfig, tokens *service.TokenService, engine *gin.Engine) *WellKnownController {
	return &WellKnownController{
		config: config,
		tokens: tokens,
		engine: engine,
	}
}

func (controller *WellKnownController) SetupRoutes() {
	controller.engine.GET("/.well-known/openid-configuration", controller.OpenIDConnectConfiguration)
	controller.engine.GET("/.well-known/jwks.json", controller.JWKS)
}

func (controller *WellKnownController) OpenIDConnectConfiguration(c *gin.Context) {
	issuer := controller.tokens.GetIssuer()

	c.JSON(http.StatusOK, OpenIDConnectConfiguration{
		Issuer:                            issuer,
		AuthorizationEndpoint:             fmt.Sprintf("%s/oauth2/authorize", controller.config.AppURL),
		TokenEndpoint:                     fmt.Sprintf("%s/oauth2/token", controller.config.AppURL),
		UserinfoEndpoint:                  fmt.Sprintf("%s/oauth2/userinfo", controller.config.AppURL),
		JwksUri:                           fmt.Sprintf("%s/.well-known/jwks.json", controller.config.AppURL),
		ScopesSupported:                   service.SupportedScopes,
		ResponseTypesSupported:            service.SupportedResponseTypes,
		GrantTypesSupported:               service.SupportedGrantTypes,
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		CodeChallengeMethodsSupported:     service.SupportedChallengeMethods,
		ClaimsSupported:                   []string{"sub", "preferred_username", "username", "roles", "nonce", "auth_time"},
	})
}

func (controller *WellKnownController) JWKS(c *gin.Context) {
	jwks, err := controller.tokens.JWKS()
	if err != nil {
		log.Error().Err(err).Msg("Failed to build JWKS")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	c.JSON(http.StatusOK, jwks)
}
