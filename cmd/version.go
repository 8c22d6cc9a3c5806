package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sda version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sda %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
