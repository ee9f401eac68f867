package generate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/keygate-dev/keygate/internal/totp"

	"github.com/charmbracelet/huh"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var issuer string

var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a totp secret",
	Run: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Level(zerolog.InfoLevel)

		var account string
		var totpCode string

		var baseTheme *huh.Theme = huh.ThemeBase()

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Account (username)").Value(&account).Validate(func(s string) error {
					if s == "" {
						return errors.New("account cannot be empty")
					}
					return nil
				}),
			),
		)

		if err := form.WithTheme(baseTheme).Run(); err != nil {
			log.Fatal().Err(err).Msg("Form failed")
		}

		secret, err := totp.GenerateSecret()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate totp secret")
		}

		uri, err := totp.KeyURI(secret, issuer, account)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build key URI")
		}

		log.Info().Str("secret", secret).Msg("Generated totp secret")

		config := qrterminal.Config{
			Level:     qrterminal.L,
			Writer:    os.Stdout,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
			QuietZone: 2,
		}

		qrterminal.GenerateWithConfig(uri, config)

		log.Info().Msg("Scan the QR code with your authenticator app then press enter to verify")

		var input string
		_, _ = fmt.Scanln(&input)

		fmt.Print("\033[F\033[K")

		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Code").Value(&totpCode).Validate(func(s string) error {
					if s == "" {
						return errors.New("code cannot be empty")
					}
					return nil
				}),
			),
		)

		if err := form.WithTheme(baseTheme).Run(); err != nil {
			log.Fatal().Err(err).Msg("Form failed")
		}

		if !totp.Verify(secret, totpCode, time.Now(), totp.DefaultDriftSteps) {
			log.Fatal().Msg("Code does not match, try again")
		}

		log.Info().Msg("Code verified, secret is ready to use")
	},
}

func init() {
	GenerateCmd.Flags().StringVar(&issuer, "issuer", "Keygate", "Issuer shown in the authenticator app")
}
