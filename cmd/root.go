package cmd

import (
	"os"
	"strings"

	clientCmd "github.com/keygate-dev/keygate/cmd/client"
	totpCmd "github.com/keygate-dev/keygate/cmd/totp"
	userCmd "github.com/keygate-dev/keygate/cmd/user"
	"github.com/keygate-dev/keygate/internal/bootstrap"
	"github.com/keygate-dev/keygate/internal/config"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "A small OAuth 2.0 and OpenID Connect authorization server.",
	Long:  `Keygate is a small OAuth 2.0 and OpenID Connect authorization server with PKCE and TOTP multi-factor authentication built in.`,
	Run: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				log.Fatal().Err(err).Msg("Failed to read config file")
			}
		}

		log.Info().Msg("Parsing config")
		var conf config.Config
		err := viper.Unmarshal(&conf)
		HandleError(err, "Failed to parse config")

		logLevel, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel))
		if err != nil {
			log.Error().Err(err).Msg("Invalid or missing log level, defaulting to info")
			logLevel = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(logLevel)

		if conf.LogJSON {
			log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}

		// The issuer defaults to the public URL
		if conf.Issuer == "" {
			conf.Issuer = conf.AppURL
		}

		log.Info().Msg("Validating config")
		validate := validator.New()
		err = validate.Struct(conf)
		HandleError(err, "Invalid config")

		log.Info().Str("version", config.Version).Msg("Starting keygate")

		app := bootstrap.NewBootstrapApp(conf)
		HandleError(app.Setup(), "Failed to start keygate")
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func HandleError(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(userCmd.UserCmd())
	rootCmd.AddCommand(totpCmd.TotpCmd())
	rootCmd.AddCommand(clientCmd.ClientCmd())

	viper.AutomaticEnv()
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (yaml), used for declaring clients.")
	rootCmd.Flags().Int("port", 3000, "Port to run the server on.")
	rootCmd.Flags().String("address", "0.0.0.0", "Address to bind the server to.")
	rootCmd.Flags().String("app-url", "", "The public URL of the server.")
	rootCmd.Flags().String("issuer", "", "Token issuer, defaults to the app URL.")
	rootCmd.Flags().String("database-path", "keygate.db", "Path to the sqlite database.")
	rootCmd.Flags().String("users", "", "Comma separated list of users in the format username:bcrypt-hashed-password[:role|role].")
	rootCmd.Flags().String("users-file", "", "Path to a file containing users, one per line.")
	rootCmd.Flags().String("session-secret", "", "Secret used to sign session credentials.")
	rootCmd.Flags().String("session-secret-file", "", "Path to a file containing the session secret.")
	rootCmd.Flags().Bool("secure-cookie", false, "Send session cookie over secure connections only.")
	rootCmd.Flags().Int("session-expiry", 86400, "Session credential lifetime in seconds.")
	rootCmd.Flags().Int("pending-expiry", 300, "MFA-pending credential lifetime in seconds.")
	rootCmd.Flags().Int("code-expiry", 600, "Authorization code lifetime in seconds.")
	rootCmd.Flags().Int("sweep-interval", 300, "Expired authorization code sweep interval in seconds.")
	rootCmd.Flags().Int("login-timeout", 300, "Lockout duration in seconds after too many failed logins.")
	rootCmd.Flags().Int("login-max-retries", 5, "Failed login attempts before lockout, 0 disables the lockout.")
	rootCmd.Flags().Int("rate-limit", 10, "Requests per second allowed on authentication endpoints, 0 disables rate limiting.")
	rootCmd.Flags().Int("rate-limit-burst", 20, "Burst size for the rate limiter.")
	rootCmd.Flags().String("trusted-proxies", "", "Comma separated list of trusted proxy addresses.")
	rootCmd.Flags().String("log-level", "info", "Log level.")
	rootCmd.Flags().Bool("log-json", false, "Log in JSON format instead of the console writer.")

	viper.BindEnv("port", "PORT")
	viper.BindEnv("address", "ADDRESS")
	viper.BindEnv("app-url", "APP_URL")
	viper.BindEnv("issuer", "ISSUER")
	viper.BindEnv("database-path", "DATABASE_PATH")
	viper.BindEnv("users", "USERS")
	viper.BindEnv("users-file", "USERS_FILE")
	viper.BindEnv("session-secret", "SESSION_SECRET")
	viper.BindEnv("session-secret-file", "SESSION_SECRET_FILE")
	viper.BindEnv("secure-cookie", "SECURE_COOKIE")
	viper.BindEnv("session-expiry", "SESSION_EXPIRY")
	viper.BindEnv("pending-expiry", "PENDING_EXPIRY")
	viper.BindEnv("code-expiry", "CODE_EXPIRY")
	viper.BindEnv("sweep-interval", "SWEEP_INTERVAL")
	viper.BindEnv("login-timeout", "LOGIN_TIMEOUT")
	viper.BindEnv("login-max-retries", "LOGIN_MAX_RETRIES")
	viper.BindEnv("rate-limit", "RATE_LIMIT")
	viper.BindEnv("rate-limit-burst", "RATE_LIMIT_BURST")
	viper.BindEnv("trusted-proxies", "TRUSTED_PROXIES")
	viper.BindEnv("log-level", "LOG_LEVEL")
	viper.BindEnv("log-json", "LOG_JSON")

	viper.BindPFlags(rootCmd.Flags())
}
