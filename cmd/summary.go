package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/eval"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate stored accuracy results into the summary artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		accs, err := st.ListAccuracies(cmd.Context())
		if err != nil {
			return err
		}
		if len(accs) == 0 {
			return eris.New("no stored accuracy results to summarize")
		}

		sum := eval.Summarize(accs, s)
		out := defaultOutputs()

		if err := writeArtifact(out.SummaryFile, func(f *os.File) error {
			return eval.WriteSummaryReport(f, sum, accs)
		}); err != nil {
			return err
		}
		if len(sum.FieldErrors) > 0 {
			if err := writeArtifact(out.ErrorCSVFile, func(f *os.File) error {
				return eval.WriteErrorDistributionCSV(f, sum.FieldErrors)
			}); err != nil {
				return err
			}
		}

		zap.L().Info("summary written",
			zap.Int("reports", sum.Reports),
			zap.Float64("mean_accuracy", sum.Mean),
			zap.Float64("median_accuracy", sum.Median),
			zap.String("summary_file", out.SummaryFile),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
