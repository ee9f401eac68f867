package cmd

import (
	"fmt"

	"github.com/keygate-dev/keygate/internal/config"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("keygate %s (commit %s, built %s)\n", config.Version, config.CommitHash, config.BuildTimestamp)
	},
}
