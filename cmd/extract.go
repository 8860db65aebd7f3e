package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/pipeline"
	"github.com/Gatsby0916/reporteval/internal/store"
)

var (
	extractTruthPath string
	extractNoStore   bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <report.txt> [report.txt ...]",
	Short: "Extract, correct and evaluate individual report text files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		s, err := loadSchema()
		if err != nil {
			return err
		}
		tbl, err := loadTruth(s, extractTruthPath)
		if err != nil {
			return err
		}

		var st store.Store
		if !extractNoStore {
			st, err = initStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
		}

		p := buildPipeline(s, tbl, st)
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read report %s", path)
			}
			rep := pipeline.Report{ID: reportIDFromFilename(path), Text: string(data)}

			res, err := p.ProcessReport(cmd.Context(), rep)
			if err != nil {
				return err
			}
			fields := []zap.Field{
				zap.String("report_id", res.ReportID),
				zap.Duration("elapsed", res.Elapsed),
			}
			if res.Accuracy != nil {
				fields = append(fields, zap.Float64("accuracy", res.Accuracy.AccuracyRatio))
			}
			zap.L().Info("report processed", fields...)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractTruthPath, "truth", "", "ground truth workbook (default from config)")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-store", false, "skip database persistence")
	rootCmd.AddCommand(extractCmd)
}
