package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/truth"
)

var correctOutDir string

var correctCmd = &cobra.Command{
	Use:   "correct <raw.json> [raw.json ...]",
	Short: "Correct raw extraction JSON files against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		engine := newEngine()

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read raw file %s", path)
			}
			raw, err := model.ParseRawRecord(data)
			if err != nil {
				return err
			}

			id := reportIDFromFilename(path)
			rec, log := engine.Correct(raw, s)

			payload := struct {
				ReportID      string              `json:"report_id"`
				Record        *model.Record       `json:"record"`
				CorrectionLog model.CorrectionLog `json:"correction_log"`
			}{id, rec, log}
			out, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return eris.Wrapf(err, "marshal corrected %s", id)
			}

			dest := filepath.Join(correctOutDir, id+"_extracted_data.json")
			if err := os.MkdirAll(correctOutDir, 0o755); err != nil {
				return eris.Wrapf(err, "mkdir %s", correctOutDir)
			}
			if err := os.WriteFile(dest, out, 0o644); err != nil {
				return eris.Wrapf(err, "write corrected %s", dest)
			}

			zap.L().Info("corrected",
				zap.String("report_id", id),
				zap.Int("log_entries", len(log)),
				zap.String("output", dest),
			)
		}
		return nil
	},
}

// reportIDFromFilename recovers the report ID from a raw or corrected
// extraction file name.
func reportIDFromFilename(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, "_extracted_data")
	return truth.CanonicalID(base)
}

func init() {
	correctCmd.Flags().StringVar(&correctOutDir, "out", "results/extracted_data/json", "directory for corrected JSON files")
	rootCmd.AddCommand(correctCmd)
}
