package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Status     int    `json:"status"`
	Message    string `json:"message"`
	Token      string `json:"token"`
	ExpiresIn  int    `json:"expires_in"`
	MfaPending bool   `json:"mfa_pending"`
}

type UserControllerConfig struct {
	SecureCookie bool
}

type UserController struct {
	config UserControllerConfig
	router *gin.RouterGroup
	auth   *service.AuthService
	users  *service.UserService
	tokens *service.TokenService
}

func NewUserController(config UserControllerConfig, router *gin.RouterGroup, auth *service.AuthService, users *service.UserService, tokens *service.TokenService) *UserController {
	return &UserController{
		config: config,
		router: router,
		auth:   auth,
		users:  users,
		tokens: tokens,
	}
}

func (controller *UserController) SetupRoutes() {
	userGroup := controller.router.Group("/user")
	userGroup.POST("/login", controller.loginHandler)
	userGroup.POST("/logout", controller.logoutHandler)
}

func (controller *UserController) loginHandler(c *gin.Context) {
	var req LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	log.Debug().Str("username", req.Username).Msg("Login attempt")

	isLocked, remaining := controller.auth.IsAccountLocked(req.Username)
	if isLocked {
		log.Warn().Str("username", req.Username).Msg("Account is locked due to too many failed login attempts")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":  429,
			"message": fmt.Sprintf("Too many failed login attempts. Try again in %d seconds", remaining),
		})
		return
	}

	user, ok := controller.auth.VerifyCredentials(req.Username, req.Password)
	if !ok {
		controller.auth.RecordLoginAttempt(req.Username, false)
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  401,
			"message": "Unauthorized",
		})
		return
	}

	controller.auth.RecordLoginAttempt(req.Username, true)

	roles := controller.users.Roles(user)

	// An enrolled user only gets a short-lived pending credential here;
	// the MFA verify endpoint promotes it to a full session
	token, expiresIn, err := controller.tokens.MintSessionToken(user.ID, user.Username, roles, user.MfaEnabled, time.Now())
	if err != nil {
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to mint session credential")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	c.SetCookie(config.SessionCookieName, token, expiresIn, "/", "", controller.config.SecureCookie, true)

	c.JSON(http.StatusOK, LoginResponse{
		Status:     200,
		Message:    "Logged in",
		Token:      token,
		ExpiresIn:  expiresIn,
		MfaPending: user.MfaEnabled,
	})
}

func (controller *UserController) logoutHandler(c *gin.Context) {
	c.SetCookie(config.SessionCookieName, "", -1, "/", "", controller.config.SecureCookie, true)

	c.JSON(http.StatusOK, gin.H{
		"status":  200,
		"message": "Logged out",
	})
}
