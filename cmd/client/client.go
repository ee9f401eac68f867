package cmd

import (
	"github.com/keygate-dev/keygate/cmd/client/create"

	"github.com/spf13/cobra"
)

func ClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Client utilities",
		Long:  `Utilities for declaring OAuth2 clients.`,
	}
	clientCmd.AddCommand(create.CreateCmd)
	return clientCmd
}
