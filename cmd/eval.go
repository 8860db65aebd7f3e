package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/eval"
	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/pipeline"
)

var evalTruthPath string

var evalCmd = &cobra.Command{
	Use:   "eval <corrected-dir>",
	Short: "Score corrected JSON records against the ground truth workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		tbl, err := loadTruth(s, evalTruthPath)
		if err != nil {
			return err
		}
		if tbl == nil {
			return eris.New("ground truth workbook is required (--truth or truth.path)")
		}

		entries, err := os.ReadDir(args[0])
		if err != nil {
			return eris.Wrapf(err, "read corrected dir %s", args[0])
		}

		ev := eval.NewEvaluator()
		out := defaultOutputs()
		var results []*pipeline.Result

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			path := filepath.Join(args[0], e.Name())
			id, rec, err := readCorrected(path, s.Names())
			if err != nil {
				return err
			}

			truthRec, ok := tbl.Get(id)
			if !ok {
				zap.L().Warn("no ground truth row", zap.String("report_id", id))
				continue
			}
			acc, err := ev.Evaluate(id, s, truthRec, rec)
			if err != nil {
				return err
			}

			dest := filepath.Join(out.AccuracyDir, id+"_accuracy.txt")
			if err := writeArtifact(dest, func(f *os.File) error {
				return eval.WriteAccuracyReport(f, acc)
			}); err != nil {
				return err
			}
			results = append(results, &pipeline.Result{ReportID: id, Record: rec, Accuracy: &acc})
		}

		p := &pipeline.Pipeline{Schema: s, Out: out}
		sum, err := p.WriteBatchArtifacts(results)
		if err != nil {
			return err
		}
		zap.L().Info("evaluation complete",
			zap.Int("evaluated", sum.Reports),
			zap.Float64("mean_accuracy", sum.Mean),
		)
		return nil
	},
}

// readCorrected loads a corrected extraction payload and rebuilds the
// record in schema order.
func readCorrected(path string, names []string) (string, *model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, eris.Wrapf(err, "read corrected %s", path)
	}
	var payload struct {
		ReportID string            `json:"report_id"`
		Record   map[string]string `json:"record"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, eris.Wrapf(err, "parse corrected %s", path)
	}
	id := payload.ReportID
	if id == "" {
		id = reportIDFromFilename(path)
	}
	return id, model.RecordFromValues(names, payload.Record), nil
}

func writeArtifact(path string, render func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return render(f)
}

func init() {
	evalCmd.Flags().StringVar(&evalTruthPath, "truth", "", "ground truth workbook (default from config)")
	rootCmd.AddCommand(evalCmd)
}
