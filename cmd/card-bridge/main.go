package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "card-bridge",
	Short: "Smartcard reader state bridge",
	Long: `card-bridge watches a PC/SC reader and publishes its card state to
websocket and server-sent event clients.

Running without a subcommand is the same as "card-bridge serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default is configs/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
