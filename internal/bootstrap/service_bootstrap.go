package bootstrap

import (
	"github.com/keygate-dev/keygate/internal/service"
	"github.com/keygate-dev/keygate/internal/utils"
)

type Services struct {
	databaseService      *service.DatabaseService
	auditService         *service.AuditService
	userService          *service.UserService
	codeService          *service.CodeService
	clientService        *service.ClientService
	tokenService         *service.TokenService
	authorizationService *service.AuthorizationService
	mfaService           *service.MfaService
	authService          *service.AuthService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: app.config.DatabasePath,
	})

	if err := databaseService.Init(); err != nil {
		return Services{}, err
	}

	services.databaseService = databaseService
	database := databaseService.GetDatabase()

	auditService := service.NewAuditService(service.AuditServiceConfig{
		Database: database,
	})

	services.auditService = auditService

	userService := service.NewUserService(service.UserServiceConfig{
		Database: database,
	})

	if err := userService.SeedFromConfig(app.context.users); err != nil {
		return Services{}, err
	}

	services.userService = userService

	codeService := service.NewCodeService(service.CodeServiceConfig{
		Database:      database,
		CodeExpiry:    app.config.CodeExpiry,
		SweepInterval: app.config.SweepInterval,
	})

	services.codeService = codeService

	clientService := service.NewClientService(service.ClientServiceConfig{
		Database: database,
	}, codeService)

	if err := clientService.SyncFromConfig(app.config.Clients, utils.GetSecret); err != nil {
		return Services{}, err
	}

	services.clientService = clientService

	tokenService := service.NewTokenService(service.TokenServiceConfig{
		Issuer:        app.config.Issuer,
		SessionSecret: app.context.sessionSecret,
		SessionExpiry: app.config.SessionExpiry,
		PendingExpiry: app.config.PendingExpiry,
		Database:      database,
	}, clientService, codeService, auditService)

	if err := tokenService.Init(); err != nil {
		return Services{}, err
	}

	services.tokenService = tokenService

	authorizationService := service.NewAuthorizationService(service.AuthorizationServiceConfig{
		AppURL: app.config.AppURL,
	}, clientService, codeService, auditService)

	services.authorizationService = authorizationService

	mfaService := service.NewMfaService(service.MfaServiceConfig{
		Issuer: app.config.Issuer,
	}, userService, auditService)

	services.mfaService = mfaService

	authService := service.NewAuthService(service.AuthServiceConfig{
		LoginTimeout:    app.config.LoginTimeout,
		LoginMaxRetries: app.config.LoginMaxRetries,
	}, userService, auditService)

	services.authService = authService

	return services, nil
}
