package cmd

import (
	"github.com/keygate-dev/keygate/cmd/totp/generate"

	"github.com/spf13/cobra"
)

func TotpCmd() *cobra.Command {
	totpCmd := &cobra.Command{
		Use:   "totp",
		Short: "Totp utilities",
		Long:  `Utilities for generating totp secrets.`,
	}
	totpCmd.AddCommand(generate.GenerateCmd)
	return totpCmd
}
