package main

import (
	"github.com/spf13/cobra"

	"rentflow-system/internal/database"
	"rentflow-system/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("migrate")

	db, err := database.NewConnection(appConfig.DB.DSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info().Msg("Schema is up to date")
	return nil
}
