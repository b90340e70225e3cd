package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rentflow-system/internal/logger"
	"rentflow-system/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan [image-file]",
	Short: "Extract a draft invoice from a rental slip image",
	Long: `Run one scanner engine over a photographed rental slip and print the
draft as JSON, with every line resolved against the active equipment
catalog. Nothing is written to the database.`,
	Example: `  # Scan with the default engine
  rentctl scan slip.jpg

  # Use OpenAI and save the draft
  rentctl scan slip.jpg --engine openai -o draft.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("engine", "e", "", "Scanner engine: gemini, openai or ocr (default from SCAN_DEFAULT_ENGINE)")
	scanCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan")

	engine, _ := cmd.Flags().GetString("engine")
	outputPath, _ := cmd.Flags().GetString("output")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := rt.Services.Scanner.Scan(ctx, scanner.Image{Data: data}, engine)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if outputPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Info().Str("file", outputPath).Int("items", len(result.Items)).Msg("Draft saved")
	return nil
}
