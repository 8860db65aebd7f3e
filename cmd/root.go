package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/config"
)

var (
	cfg        *config.Config
	schemaPath string
)

var rootCmd = &cobra.Command{
	Use:   "reporteval",
	Short: "Correction and accuracy evaluation for LLM-extracted report data",
	Long:  "Extracts structured fields from clinical report text via Claude, reconciles the raw output against a field schema, and scores the corrected records cell by cell against ground truth.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schema.yaml", "path to the field schema file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
