package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rentflow-system/config"
	"rentflow-system/internal/app"
	"rentflow-system/internal/logger"
)

var version = "1.0.0"

var appConfig config.Config

var rootCmd = &cobra.Command{
	Use:   "rentctl",
	Short: "Operator tools for the rental invoicing backend",
	Long: `rentctl runs maintenance tasks against the same database and scanner
engines as the HTTP gateway: schema migration, slip scanning, invoice
total audits and commission exports.

Configuration is read from the environment and an optional .env file.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// openRuntime connects with a bounded startup time; callers must Close it.
func openRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	return app.Open(ctx, appConfig)
}

func init() {
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Overall command timeout")
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}
