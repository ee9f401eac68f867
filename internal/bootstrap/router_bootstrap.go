package bootstrap

import (
	"fmt"
	"strings"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/controller"
	"github.com/keygate-dev/keygate/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(app.config.TrustedProxies) > 0 {
		err := engine.SetTrustedProxies(strings.Split(app.config.TrustedProxies, ","))
		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	sessionMiddleware := middleware.NewSessionMiddleware(middleware.SessionMiddlewareConfig{
		CookieName: config.SessionCookieName,
	}, app.services.tokenService)

	if err := sessionMiddleware.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize session middleware: %w", err)
	}

	engine.Use(sessionMiddleware.Middleware())

	zerologMiddleware := middleware.NewZerologMiddleware()

	if err := zerologMiddleware.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize zerolog middleware: %w", err)
	}

	engine.Use(zerologMiddleware.Middleware())

	rateLimitMiddleware := middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
		RequestsPerSecond: app.config.RateLimit,
		Burst:             app.config.RateLimitBurst,
	})

	if err := rateLimitMiddleware.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limit middleware: %w", err)
	}

	// The credential-guessing surfaces get their own rate-limited group
	limited := engine.Group("/", rateLimitMiddleware.Middleware())

	oauthController := controller.NewOAuthController(controller.OAuthControllerConfig{
		AppURL: app.config.AppURL,
	}, limited, app.services.authorizationService, app.services.tokenService)

	oauthController.SetupRoutes()

	userController := controller.NewUserController(controller.UserControllerConfig{
		SecureCookie: app.config.SecureCookie,
	}, limited, app.services.authService, app.services.userService, app.services.tokenService)

	userController.SetupRoutes()

	mfaController := controller.NewMfaController(controller.MfaControllerConfig{
		SecureCookie: app.config.SecureCookie,
	}, limited, app.services.mfaService, app.services.tokenService)

	mfaController.SetupRoutes()

	wellKnownController := controller.NewWellKnownController(controller.WellKnownControllerConfig{
		AppURL: app.config.AppURL,
	}, app.services.tokenService, engine)

	wellKnownController.SetupRoutes()

	healthController := controller.NewHealthController(&engine.RouterGroup)

	healthController.SetupRoutes()

	return engine, nil
}
