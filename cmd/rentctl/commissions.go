package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rentflow-system/internal/logger"
)

var commissionsCmd = &cobra.Command{
	Use:   "commissions",
	Short: "Commission reports",
}

var commissionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export commission assignments to an Excel workbook",
	Example: `  # Every employee
  rentctl commissions export -o commissions.xlsx

  # One employee
  rentctl commissions export --employee 12 -o maria.xlsx`,
	Args: cobra.NoArgs,
	RunE: runCommissionsExport,
}

func init() {
	rootCmd.AddCommand(commissionsCmd)
	commissionsCmd.AddCommand(commissionsExportCmd)

	commissionsExportCmd.Flags().Int64("employee", 0, "Only export this employee's assignments")
	commissionsExportCmd.Flags().StringP("output", "o", "commissions.xlsx", "Output workbook path")
}

func runCommissionsExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("commissions")

	employeeID, _ := cmd.Flags().GetInt64("employee")
	outputPath, _ := cmd.Flags().GetString("output")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	var filter *int64
	if employeeID > 0 {
		filter = &employeeID
	}
	if err := rt.Services.Commissions.ExportXLSX(ctx, filter, f); err != nil {
		return err
	}
	log.Info().Str("file", outputPath).Msg("Commission export written")
	return nil
}
