package controller_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/controller"
	"github.com/keygate-dev/keygate/internal/middleware"
	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gotest.tools/v3/assert"
)

// bcrypt hash of "test"
const testPasswordHash = "$2a$10$ne6z693sTgzT3ePoQ05PgOecUHnBjM7sSNj6M.l5CLUP.f6NyCnt."

type testApp struct {
	engine   *gin.Engine
	database *gorm.DB
	users    *service.UserService
	clients  *service.ClientService
	codes    *service.CodeService
	tokens   *service.TokenService
	mfa      *service.MfaService
	userID   string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	gin.SetMode(gin.TestMode)

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})
	assert.NilError(t, databaseService.Init())
	database := databaseService.GetDatabase()

	audit := service.NewAuditService(service.AuditServiceConfig{Database: database})

	users := service.NewUserService(service.UserServiceConfig{Database: database})
	assert.NilError(t, users.SeedFromConfig([]config.User{
		{Username: "testuser", PasswordHash: testPasswordHash, Roles: []string{"admin"}},
	}))

	codes := service.NewCodeService(service.CodeServiceConfig{Database: database, CodeExpiry: 600})
	clients := service.NewClientService(service.ClientServiceConfig{Database: database}, codes)

	tokens := service.NewTokenService(service.TokenServiceConfig{
		Issuer:        "http://localhost:3000",
		SessionSecret: "test-session-secret",
		SessionExpiry: 3600,
		PendingExpiry: 300,
		Database:      database,
	}, clients, codes, audit)
	assert.NilError(t, tokens.Init())

	authz := service.NewAuthorizationService(service.AuthorizationServiceConfig{
		AppURL: "http://localhost:3000",
	}, clients, codes, audit)

	mfa := service.NewMfaService(service.MfaServiceConfig{Issuer: "Keygate"}, users, audit)
	auth := service.NewAuthService(service.AuthServiceConfig{
		LoginTimeout:    300,
		LoginMaxRetries: 3,
	}, users, audit)

	engine := gin.New()

	sessionMiddleware := middleware.NewSessionMiddleware(middleware.SessionMiddlewareConfig{
		CookieName: config.SessionCookieName,
	}, tokens)
	assert.NilError(t, sessionMiddleware.Init())
	engine.Use(sessionMiddleware.Middleware())

	root := &engine.RouterGroup

	controller.NewOAuthController(controller.OAuthControllerConfig{
		AppURL: "http://localhost:3000",
	}, root, authz, tokens).SetupRoutes()

	controller.NewUserController(controller.UserControllerConfig{}, root, auth, users, tokens).SetupRoutes()
	controller.NewMfaController(controller.MfaControllerConfig{}, root, mfa, tokens).SetupRoutes()
	controller.NewWellKnownController(controller.WellKnownControllerConfig{
		AppURL: "http://localhost:3000",
	}, tokens, engine).SetupRoutes()
	controller.NewHealthController(root).SetupRoutes()

	user, err := users.GetByUsername("testuser")
	assert.NilError(t, err)

	return &testApp{
		engine:   engine,
		database: database,
		users:    users,
		clients:  clients,
		codes:    codes,
		tokens:   tokens,
		mfa:      mfa,
		userID:   user.ID,
	}
}

func (app *testApp) registerClient(t *testing.T) {
	t.Helper()

	_, err := app.clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, []string{"openid", "profile"}, nil, true, 0, 0)
	assert.NilError(t, err)
}

func (app *testApp) sessionToken(t *testing.T, mfaPending bool) string {
	t.Helper()

	token, _, err := app.tokens.MintSessionToken(app.userID, "testuser", []string{"admin"}, mfaPending, time.Now())
	assert.NilError(t, err)

	return token
}
