package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/middleware"
	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type MfaCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

type MfaSetupVerifyRequest struct {
	Secret string `json:"secret" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type MfaVerifyResponse struct {
	Status         int    `json:"status"`
	Message        string `json:"message"`
	Token          string `json:"token"`
	ExpiresIn      int    `json:"expires_in"`
	RemainingCodes *int   `json:"remaining_codes,omitempty"`
	LowCodes       bool   `json:"low_codes,omitempty"`
}

type MfaControllerConfig struct {
	SecureCookie bool
}

type MfaController struct {
	config MfaControllerConfig
	router *gin.RouterGroup
	mfa    *service.MfaService
	tokens *service.TokenService
}

func NewMfaController(config MfaControllerConfig, router *gin.RouterGroup, mfa *service.MfaService, tokens *service.TokenService) *MfaController {
	return &MfaController{
		config: config,
		router: router,
		mfa:    mfa,
		tokens: tokens,
	}
}

func (controller *MfaController) SetupRoutes() {
	mfaGroup := controller.router.Group("/mfa")
	mfaGroup.POST("/setup", controller.setupHandler)
	mfaGroup.POST("/setup/verify", controller.setupVerifyHandler)
	mfaGroup.POST("/verify", controller.verifyHandler)
	mfaGroup.POST("/backup", controller.backupHandler)
	mfaGroup.POST("/disable", controller.disableHandler)
	mfaGroup.POST("/backup-codes", controller.regenerateHandler)
	mfaGroup.GET("/status", controller.statusHandler)
}

// requireSession rejects anonymous and MFA-pending callers. Only the
// verify and backup handlers accept a pending credential.
func (controller *MfaController) requireSession(c *gin.Context) (config.UserContext, bool) {
	userContext := middleware.GetUserContext(c)

	if !userContext.IsLoggedIn || userContext.MfaPending {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  401,
			"message": "Unauthorized",
		})
		return config.UserContext{}, false
	}

	return userContext, true
}

func (controller *MfaController) requirePendingOrSession(c *gin.Context) (config.UserContext, bool) {
	userContext := middleware.GetUserContext(c)

	if !userContext.IsLoggedIn {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  401,
			"message": "Unauthorized",
		})
		return config.UserContext{}, false
	}

	return userContext, true
}

func (controller *MfaController) setupHandler(c *gin.Context) {
	userContext, ok := controller.requireSession(c)
	if !ok {
		return
	}

	setup, err := controller.mfa.InitiateSetup(userContext.UserID)
	if err != nil {
		controller.mfaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": 200,
		"secret": setup.Secret,
		"uri":    setup.URI,
	})
}

func (controller *MfaController) setupVerifyHandler(c *gin.Context) {
	userContext, ok := controller.requireSession(c)
	if !ok {
		return
	}

	var req MfaSetupVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	backupCodes, err := controller.mfa.CompleteSetup(userContext.UserID, req.Secret, req.Code)
	if err != nil {
		controller.mfaError(c, err)
		return
	}

	// Plaintext backup codes are shown exactly once
	c.JSON(http.StatusOK, gin.H{
		"status":       200,
		"message":      "Multi-factor authentication enabled",
		"backup_codes": backupCodes,
	})
}

func (controller *MfaController) verifyHandler(c *gin.Context) {
	userContext, ok := controller.requirePendingOrSession(c)
	if !ok {
		return
	}

	var req MfaCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	if err := controller.mfa.VerifyLoginCode(userContext.UserID, req.Code); err != nil {
		controller.mfaError(c, err)
		return
	}

	controller.promoteSession(c, userContext, nil)
}

func (controller *MfaController) backupHandler(c *gin.Context) {
	userContext, ok := controller.requirePendingOrSession(c)
	if !ok {
		return
	}

	var req MfaCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	remaining, err := controller.mfa.VerifyLoginBackupCode(userContext.UserID, req.Code)
	if err != nil {
		controller.mfaError(c, err)
		return
	}

	controller.promoteSession(c, userContext, &remaining)
}

// promoteSession swaps a pending credential for a full session after a
// successful second factor.
func (controller *MfaController) promoteSession(c *gin.Context, userContext config.UserContext, remaining *int) {
	token, expiresIn, err := controller.tokens.MintSessionToken(userContext.UserID, userContext.Username, userContext.Roles, false, time.Now())
	if err != nil {
		log.Error().Err(err).Str("username", userContext.Username).Msg("Failed to mint session credential")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
		return
	}

	c.SetCookie(config.SessionCookieName, token, expiresIn, "/", "", controller.config.SecureCookie, true)

	response := MfaVerifyResponse{
		Status:    200,
		Message:   "Verified",
		Token:     token,
		ExpiresIn: expiresIn,
	}

	if remaining != nil {
		response.RemainingCodes = remaining
		response.LowCodes = *remaining <= service.LowBackupCodeThreshold
	}

	c.JSON(http.StatusOK, response)
}

func (controller *MfaController) disableHandler(c *gin.Context) {
	userContext, ok := controller.requireSession(c)
	if !ok {
		return
	}

	var req MfaCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	if err := controller.mfa.Disable(userContext.UserID, req.Code); err != nil {
		controller.mfaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  200,
		"message": "Multi-factor authentication disabled",
	})
}

func (controller *MfaController) regenerateHandler(c *gin.Context) {
	userContext, ok := controller.requireSession(c)
	if !ok {
		return
	}

	var req MfaCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	backupCodes, err := controller.mfa.RegenerateBackupCodes(userContext.UserID, req.Code)
	if err != nil {
		controller.mfaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       200,
		"message":      "Backup codes regenerated",
		"backup_codes": backupCodes,
	})
}

func (controller *MfaController) statusHandler(c *gin.Context) {
	userContext, ok := controller.requireSession(c)
	if !ok {
		return
	}

	status, err := controller.mfa.Status(userContext.UserID)
	if err != nil {
		controller.mfaError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (controller *MfaController) mfaError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMfaAlreadyEnabled):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Multi-factor authentication is already enabled",
		})
	case errors.Is(err, service.ErrMfaNotEnabled):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  400,
			"message": "Multi-factor authentication is not enabled",
		})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  401,
			"message": "Invalid code",
		})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  401,
			"message": "Unauthorized",
		})
	default:
		log.Error().Err(err).Msg("MFA operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  500,
			"message": "Internal Server Error",
		})
	}
}
