// Package store persists corrected records, accuracy results and
// extraction timings, on SQLite for local runs and PostgreSQL for shared
// deployments.
package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// Store defines the persistence interface for the evaluation pipeline.
type Store interface {
	// Corrected records
	SaveCorrected(ctx context.Context, reportID string, rec *model.Record, log model.CorrectionLog) error
	GetCorrected(ctx context.Context, reportID string) (*model.Record, model.CorrectionLog, error)
	ListReportIDs(ctx context.Context) ([]string, error)

	// Accuracy results
	SaveAccuracy(ctx context.Context, acc model.ReportAccuracy) error
	GetAccuracy(ctx context.Context, reportID string) (*model.ReportAccuracy, error)
	ListAccuracies(ctx context.Context) ([]model.ReportAccuracy, error)

	// Timings
	SaveTiming(ctx context.Context, t model.Timing) error
	ListTimings(ctx context.Context) ([]model.Timing, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// encodeRecord serializes a record as a JSON object whose key order is the
// schema order, so decoding can restore the record exactly.
func encodeRecord(rec *model.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	return data, eris.Wrap(err, "store: encode record")
}

// decodeRecord rebuilds a record from its ordered JSON object form.
func decodeRecord(data []byte) (*model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "store: decode record")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.New("store: record is not a JSON object")
	}

	var names []string
	values := make(map[string]string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "store: decode record key")
		}
		key := keyTok.(string)

		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, eris.Wrapf(err, "store: decode record value %q", key)
		}
		names = append(names, key)
		values[key] = value
	}

	return model.RecordFromValues(names, values), nil
}
