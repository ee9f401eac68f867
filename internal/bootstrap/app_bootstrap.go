package bootstrap

import (
	"fmt"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/utils"

	"github.com/rs/zerolog/log"
)

type BootstrapApp struct {
	config  config.Config
	context struct {
		users         []config.User
		sessionSecret string
	}
	services Services
}

func NewBootstrapApp(config config.Config) *BootstrapApp {
	return &BootstrapApp{
		config: config,
	}
}

func (app *BootstrapApp) Setup() error {
	// Parse users
	users, err := utils.GetUsers(app.config.Users, app.config.UsersFile)
	if err != nil {
		return fmt.Errorf("failed to parse users: %w", err)
	}

	app.context.users = users

	// Session secret
	app.context.sessionSecret = utils.GetSecret(app.config.SessionSecret, app.config.SessionSecretFile)

	if app.context.sessionSecret == "" {
		return fmt.Errorf("no session secret configured")
	}

	log.Trace().Interface("config", app.config).Msg("Config dump")
	log.Trace().Interface("users", app.context.users).Msg("Users dump")

	// Services
	services, err := app.initServices()
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services

	// Setup router
	router, err := app.setupRouter()
	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	// Start expired code sweeper
	log.Debug().Msg("Starting authorization code sweeper")
	app.services.codeService.StartSweeper()
	defer app.services.codeService.Stop()

	// Start server
	address := fmt.Sprintf("%s:%d", app.config.Address, app.config.Port)
	log.Info().Msgf("Starting server on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	return nil
}
