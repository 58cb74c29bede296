package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version will be set by build flags during release builds
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of MedChat CLI",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MedChat CLI %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
