package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Gatsby0916/reporteval/internal/correct"
	"github.com/Gatsby0916/reporteval/internal/eval"
	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
	"github.com/Gatsby0916/reporteval/internal/store"
	"github.com/Gatsby0916/reporteval/internal/truth"
)

// Outputs names the artifact locations a pipeline run writes to. Empty
// fields disable the corresponding artifact.
type Outputs struct {
	CorrectedJSONDir string
	CorrectedXLSXDir string
	AccuracyDir      string
	SummaryFile      string
	ErrorCSVFile     string
	TimingLog        string
}

// Report is one unit of pipeline input.
type Report struct {
	ID   string
	Text string
}

// Result is the outcome of processing one report.
type Result struct {
	ReportID string
	Record   *model.Record
	Log      model.CorrectionLog
	Accuracy *model.ReportAccuracy
	Elapsed  time.Duration
}

// Pipeline wires extraction, correction and evaluation together.
type Pipeline struct {
	Schema    *schema.Schema
	Truth     *truth.Table
	Extractor Extractor
	Engine    *correct.Engine
	Evaluator *eval.Evaluator
	Store     store.Store // optional
	Model     string      // recorded in timing rows
	Out       Outputs
}

// ProcessReport runs one report end to end: extract, correct, export,
// evaluate against ground truth when available, and persist.
func (p *Pipeline) ProcessReport(ctx context.Context, rep Report) (*Result, error) {
	id := truth.CanonicalID(rep.ID)
	log := zap.L().With(zap.String("report_id", id))

	start := time.Now()
	raw, err := p.Extractor.Extract(ctx, id, rep.Text)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.Info("extraction complete", zap.Duration("elapsed", elapsed))

	return p.processExtracted(ctx, id, raw, elapsed)
}

// processExtracted runs every stage after extraction: correction, artifact
// export, evaluation against ground truth when available, and persistence.
func (p *Pipeline) processExtracted(ctx context.Context, id string, raw model.RawRecord, elapsed time.Duration) (*Result, error) {
	log := zap.L().With(zap.String("report_id", id))

	res := &Result{ReportID: id, Elapsed: elapsed}
	res.Record, res.Log = p.Engine.Correct(raw, p.Schema)
	log.Info("correction complete", zap.Int("log_entries", len(res.Log)))

	if err := p.writeCorrected(id, res); err != nil {
		return nil, err
	}

	if p.Truth != nil {
		if truthRec, ok := p.Truth.Get(id); ok {
			acc, err := p.Evaluator.Evaluate(id, p.Schema, truthRec, res.Record)
			if err != nil {
				return nil, err
			}
			res.Accuracy = &acc
			log.Info("evaluation complete", zap.Float64("accuracy", acc.AccuracyRatio))

			if err := p.writeAccuracy(acc); err != nil {
				return nil, err
			}
		} else {
			log.Warn("no ground truth row; skipping evaluation")
		}
	}

	if err := p.persist(ctx, res); err != nil {
		return nil, err
	}
	if p.Out.TimingLog != "" {
		t := model.Timing{ReportID: id, Model: p.Model, Elapsed: elapsed}
		if err := AppendTimingLog(p.Out.TimingLog, t); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RunBatch processes reports concurrently, at most maxConcurrent at a
// time. A failed report is logged and skipped; the batch keeps going.
// The returned results keep the input order of the reports that
// succeeded.
func (p *Pipeline) RunBatch(ctx context.Context, reports []Report, maxConcurrent int) ([]*Result, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]*Result, len(reports))
	failures := make([]error, len(reports))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, rep := range reports {
		g.Go(func() error {
			res, err := p.ProcessReport(ctx, rep)
			if err != nil {
				zap.L().Error("report failed",
					zap.String("report_id", rep.ID),
					zap.Error(err),
				)
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ok := make([]*Result, 0, len(results))
	failed := 0
	for i, res := range results {
		if res != nil {
			ok = append(ok, res)
			continue
		}
		if failures[i] != nil {
			failed++
		}
	}
	if failed > 0 {
		zap.L().Warn("batch finished with failures",
			zap.Int("failed", failed),
			zap.Int("succeeded", len(ok)),
		)
	}
	return ok, nil
}

// WriteBatchArtifacts renders the summary report and error distribution
// CSV from the evaluated results of a batch.
func (p *Pipeline) WriteBatchArtifacts(results []*Result) (model.Summary, error) {
	accs := make([]model.ReportAccuracy, 0, len(results))
	for _, res := range results {
		if res.Accuracy != nil {
			accs = append(accs, *res.Accuracy)
		}
	}
	sum := eval.Summarize(accs, p.Schema)

	if p.Out.SummaryFile != "" {
		f, err := createFile(p.Out.SummaryFile)
		if err != nil {
			return sum, err
		}
		defer f.Close()
		if err := eval.WriteSummaryReport(f, sum, accs); err != nil {
			return sum, err
		}
	}
	if p.Out.ErrorCSVFile != "" && len(sum.FieldErrors) > 0 {
		f, err := createFile(p.Out.ErrorCSVFile)
		if err != nil {
			return sum, err
		}
		defer f.Close()
		if err := eval.WriteErrorDistributionCSV(f, sum.FieldErrors); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (p *Pipeline) writeCorrected(id string, res *Result) error {
	if p.Out.CorrectedJSONDir != "" {
		payload := struct {
			ReportID      string              `json:"report_id"`
			Record        *model.Record       `json:"record"`
			CorrectionLog model.CorrectionLog `json:"correction_log"`
		}{id, res.Record, res.Log}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "pipeline: marshal corrected %s", id)
		}
		path := filepath.Join(p.Out.CorrectedJSONDir, id+"_extracted_data.json")
		if err := writeFile(path, data); err != nil {
			return err
		}
	}
	if p.Out.CorrectedXLSXDir != "" {
		path := filepath.Join(p.Out.CorrectedXLSXDir, id+"_extracted_data.xlsx")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrapf(err, "pipeline: mkdir %s", filepath.Dir(path))
		}
		if err := truth.WriteRecordsXLSX(path, "extracted", []string{id}, []*model.Record{res.Record}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) writeAccuracy(acc model.ReportAccuracy) error {
	if p.Out.AccuracyDir == "" {
		return nil
	}
	path := filepath.Join(p.Out.AccuracyDir, acc.ReportID+"_accuracy.txt")
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return eval.WriteAccuracyReport(f, acc)
}

func (p *Pipeline) persist(ctx context.Context, res *Result) error {
	if p.Store == nil {
		return nil
	}
	if err := p.Store.SaveCorrected(ctx, res.ReportID, res.Record, res.Log); err != nil {
		return err
	}
	if res.Accuracy != nil {
		if err := p.Store.SaveAccuracy(ctx, *res.Accuracy); err != nil {
			return err
		}
	}
	return p.Store.SaveTiming(ctx, model.Timing{
		ReportID: res.ReportID,
		Model:    p.Model,
		Elapsed:  res.Elapsed,
	})
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	return f, eris.Wrapf(err, "pipeline: create %s", path)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: mkdir %s", filepath.Dir(path))
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "pipeline: write %s", path)
}
