package cmd

import (
	"fmt"
	"os"

	"medchat-cli/cmd/utils"

	"github.com/spf13/cobra"
)

var debug bool
var serverURL string = "http://localhost:5000"
var dataDirOverride string

var rootCmd = &cobra.Command{
	Use:   "medchat",
	Short: "MedChat CLI - Talk to your medical chatbot from the terminal",
	Long: `MedChat CLI is a terminal client for a medical RAG chatbot service.
It streams answers token-by-token, falls back to the non-streaming API when
streaming is unavailable, and keeps your reactions and history at hand.

Getting started:
  # Start an interactive chat session
  medchat chat

  # Ask a one-time question
  medchat chat "What are common symptoms of diabetes?"

  # Show your conversation history
  medchat history`,

	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to MedChat!")
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags are parsed at this point; honor --debug
		if debug {
			InitDebugLogger("")
		}
		if dataDirOverride != "" {
			utils.DataDirOverride = dataDirOverride
		}
		if cfg := loadCLIConfig(); cfg != nil {
			if cfg.ServerURL != "" && !cmd.Root().PersistentFlags().Changed("server-url") {
				serverURL = cfg.ServerURL
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer CloseDebugLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", serverURL, "Chatbot server URL")
	rootCmd.PersistentFlags().StringVar(&dataDirOverride, "data-dir", "", "Override the directory for local state (default: ~/.medchat)")
}
