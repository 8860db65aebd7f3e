package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/correct"
	"github.com/Gatsby0916/reporteval/internal/eval"
	"github.com/Gatsby0916/reporteval/internal/pipeline"
	"github.com/Gatsby0916/reporteval/internal/schema"
	"github.com/Gatsby0916/reporteval/internal/store"
	"github.com/Gatsby0916/reporteval/internal/truth"
	"github.com/Gatsby0916/reporteval/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "reporteval.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadSchema() (*schema.Schema, error) {
	return schema.Load(schemaPath)
}

func loadTruth(s *schema.Schema, path string) (*truth.Table, error) {
	if path == "" {
		path = cfg.Truth.Path
	}
	if path == "" {
		return nil, nil
	}
	return truth.Load(path, s, truth.LoadOptions{
		SheetName:           cfg.Truth.Sheet,
		IDColumns:           cfg.Truth.IDColumns,
		SimilarityThreshold: cfg.Correct.SimilarityThreshold,
		AmbiguityMargin:     cfg.Correct.AmbiguityMargin,
	})
}

func newEngine() *correct.Engine {
	rec := correct.NewReconciler(correct.NewLevenshtein(),
		cfg.Correct.SimilarityThreshold, cfg.Correct.AmbiguityMargin)
	return correct.NewEngine(correct.WithReconciler(rec))
}

func defaultOutputs() pipeline.Outputs {
	return pipeline.Outputs{
		CorrectedJSONDir: cfg.Output.JSONDir,
		CorrectedXLSXDir: cfg.Output.ExcelDir,
		AccuracyDir:      cfg.Output.AccuracyDir,
		SummaryFile:      filepath.Join(cfg.Output.AnalysisDir, "accuracy_summary.txt"),
		ErrorCSVFile:     filepath.Join(cfg.Output.AnalysisDir, "error_distribution.csv"),
		TimingLog:        cfg.Output.TimingLog,
	}
}

func buildPipeline(s *schema.Schema, tbl *truth.Table, st store.Store) *pipeline.Pipeline {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	ex := pipeline.NewAnthropicExtractor(client, s, cfg.Anthropic.Model,
		cfg.Anthropic.MaxTokens, float64(cfg.Anthropic.RateLimit))

	return &pipeline.Pipeline{
		Schema:    s,
		Truth:     tbl,
		Extractor: ex,
		Engine:    newEngine(),
		Evaluator: eval.NewEvaluator(),
		Store:     st,
		Model:     cfg.Anthropic.Model,
		Out:       defaultOutputs(),
	}
}

// listReports collects the text reports in dir, one pipeline.Report per
// .txt file, with the report ID taken from the file name.
func listReports(dir string) ([]pipeline.Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read reports dir %s", dir)
	}

	var reports []pipeline.Report
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "read report %s", e.Name())
		}
		reports = append(reports, pipeline.Report{
			ID:   truth.CanonicalID(strings.TrimSuffix(e.Name(), ".txt")),
			Text: string(data),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, nil
}
