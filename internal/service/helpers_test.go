package service_test

import (
	"path/filepath"
	"testing"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/service"

	"gorm.io/gorm"
	"gotest.tools/v3/assert"
)

// bcrypt hash of "test"
const testPasswordHash = "$2a$10$ne6z693sTgzT3ePoQ05PgOecUHnBjM7sSNj6M.l5CLUP.f6NyCnt."

func newDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})

	assert.NilError(t, databaseService.Init())

	return databaseService.GetDatabase()
}

func newUserService(t *testing.T, database *gorm.DB) *service.UserService {
	t.Helper()

	users := service.NewUserService(service.UserServiceConfig{Database: database})

	assert.NilError(t, users.SeedFromConfig([]config.User{
		{Username: "testuser", PasswordHash: testPasswordHash, Roles: []string{"admin"}},
	}))

	return users
}

func newTokenService(t *testing.T, database *gorm.DB, clients *service.ClientService, codes *service.CodeService, audit *service.AuditService) *service.TokenService {
	t.Helper()

	tokens := service.NewTokenService(service.TokenServiceConfig{
		Issuer:        "http://localhost:3000",
		SessionSecret: "test-session-secret",
		SessionExpiry: 3600,
		PendingExpiry: 300,
		Database:      database,
	}, clients, codes, audit)

	assert.NilError(t, tokens.Init())

	return tokens
}
