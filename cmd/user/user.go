package cmd

import (
	"github.com/keygate-dev/keygate/cmd/user/create"

	"github.com/spf13/cobra"
)

func UserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User utilities",
		Long:  `Utilities for creating keygate compatible users.`,
	}
	userCmd.AddCommand(create.CreateCmd)
	return userCmd
}
