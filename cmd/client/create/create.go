package create

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var interactive bool
var clientID string
var public bool

var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a client",
	Long:  `Generate a client id and secret for the clients section of the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if interactive {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Client ID (blank for random)").Value(&clientID),
					huh.NewSelect[bool]().Title("Public client (no secret)?").Options(huh.NewOption("Yes", true), huh.NewOption("No", false)).Value(&public),
				),
			)

			var baseTheme *huh.Theme = huh.ThemeBase()

			if err := form.WithTheme(baseTheme).Run(); err != nil {
				log.Fatal().Err(err).Msg("Form failed")
			}
		}

		if clientID == "" {
			clientID = uuid.NewString()
		}

		log.Info().Str("clientId", clientID).Msg("Client created")

		if public {
			fmt.Printf("clients:\n  %s:\n    public: true\n    redirect-uris: []\n", clientID)
			return
		}

		secret := uuid.NewString()

		log.Info().Str("clientSecret", secret).Msg("Store the secret, it is not shown again")
		fmt.Printf("clients:\n  %s:\n    client-secret: %s\n    redirect-uris: []\n", clientID, secret)
	},
}

func init() {
	CreateCmd.Flags().BoolVar(&interactive, "interactive", false, "Create a client interactively")
	CreateCmd.Flags().StringVar(&clientID, "client-id", "", "Client ID, random when empty")
	CreateCmd.Flags().BoolVar(&public, "public", false, "Create a public client without a secret")
}
