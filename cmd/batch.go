package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/pipeline"
	"github.com/Gatsby0916/reporteval/internal/store"
)

var (
	batchTruthPath   string
	batchConcurrency int
	batchNoStore     bool
	batchUseAPI      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <reports-dir>",
	Short: "Process a directory of report text files concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
		}
		s, err := loadSchema()
		if err != nil {
			return err
		}
		tbl, err := loadTruth(s, batchTruthPath)
		if err != nil {
			return err
		}
		reports, err := listReports(args[0])
		if err != nil {
			return err
		}

		var st store.Store
		if !batchNoStore {
			st, err = initStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
		}

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrentReports
		}

		p := buildPipeline(s, tbl, st)
		zap.L().Info("starting batch",
			zap.Int("reports", len(reports)),
			zap.Int("concurrency", concurrency),
		)

		var results []*pipeline.Result
		if batchUseAPI {
			results, err = p.RunBatchAPI(cmd.Context(), reports)
		} else {
			results, err = p.RunBatch(cmd.Context(), reports, concurrency)
		}
		if err != nil {
			return err
		}
		sum, err := p.WriteBatchArtifacts(results)
		if err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("processed", len(results)),
			zap.Int("evaluated", sum.Reports),
			zap.Float64("mean_accuracy", sum.Mean),
			zap.Float64("median_accuracy", sum.Median),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTruthPath, "truth", "", "ground truth workbook (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max reports in flight (default from config)")
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "skip database persistence")
	batchCmd.Flags().BoolVar(&batchUseAPI, "batch-api", false, "submit through the Message Batches API instead of concurrent requests")
	rootCmd.AddCommand(batchCmd)
}
