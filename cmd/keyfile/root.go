package main

import (
	"os"

	"github.com/sensiblebit/keyfile/internal"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "keyfile",
	Short: "KeePass key file tool",
	Long:  "Load, inspect, generate, and catalog KeePass key files, and derive composite keys from them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.SetupLogger(os.Stderr, logLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "Log level: debug, info, warn, error")
	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(compositeCmd)
}
