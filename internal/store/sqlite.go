package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS corrected_records (
	report_id      TEXT PRIMARY KEY,
	record         TEXT NOT NULL,
	correction_log TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS accuracy_results (
	report_id  TEXT PRIMARY KEY,
	verdicts   TEXT NOT NULL,
	accuracy   REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_timings (
	id         TEXT PRIMARY KEY,
	report_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timings_report_id ON extraction_timings(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCorrected(ctx context.Context, reportID string, rec *model.Record, log model.CorrectionLog) error {
	recJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction log")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO corrected_records (report_id, record, correction_log, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (report_id) DO UPDATE SET
		   record = excluded.record, correction_log = excluded.correction_log, updated_at = excluded.updated_at`,
		reportID, string(recJSON), string(logJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: save corrected %s", reportID)
}

func (s *SQLiteStore) GetCorrected(ctx context.Context, reportID string) (*model.Record, model.CorrectionLog, error) {
	var recJSON, logJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record, correction_log FROM corrected_records WHERE report_id = ?`,
		reportID,
	).Scan(&recJSON, &logJSON)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: get corrected %s", reportID)
	}

	rec, err := decodeRecord([]byte(recJSON))
	if err != nil {
		return nil, nil, err
	}
	var log model.CorrectionLog
	if err := json.Unmarshal([]byte(logJSON), &log); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: unmarshal correction log")
	}
	return rec, log, nil
}

func (s *SQLiteStore) ListReportIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id FROM corrected_records ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list report ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list report ids iterate")
}

func (s *SQLiteStore) SaveAccuracy(ctx context.Context, acc model.ReportAccuracy) error {
	verdictsJSON, err := json.Marshal(acc.Verdicts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdicts")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accuracy_results (report_id, verdicts, accuracy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (report_id) DO UPDATE SET
		   verdicts = excluded.verdicts, accuracy = excluded.accuracy, updated_at = excluded.updated_at`,
		acc.ReportID, string(verdictsJSON), acc.AccuracyRatio, now, now,
	)
	return eris.Wrapf(err, "sqlite: save accuracy %s", acc.ReportID)
}

func (s *SQLiteStore) GetAccuracy(ctx context.Context, reportID string) (*model.ReportAccuracy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report_id, verdicts, accuracy FROM accuracy_results WHERE report_id = ?`,
		reportID,
	)
	acc, err := scanAccuracy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return acc, err
}

func (s *SQLiteStore) ListAccuracies(ctx context.Context) ([]model.ReportAccuracy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, verdicts, accuracy FROM accuracy_results ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accuracies")
	}
	defer rows.Close()

	var out []model.ReportAccuracy
	for rows.Next() {
		acc, err := scanAccuracy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list accuracies iterate")
}

func (s *SQLiteStore) SaveTiming(ctx context.Context, t model.Timing) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_timings (id, report_id, model, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), t.ReportID, t.Model, t.Elapsed.Milliseconds(), created,
	)
	return eris.Wrapf(err, "sqlite: save timing %s", t.ReportID)
}

func (s *SQLiteStore) ListTimings(ctx context.Context) ([]model.Timing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, model, elapsed_ms, created_at FROM extraction_timings ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list timings")
	}
	defer rows.Close()

	var out []model.Timing
	for rows.Next() {
		var t model.Timing
		var ms int64
		if err := rows.Scan(&t.ReportID, &t.Model, &ms, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan timing")
		}
		t.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list timings iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAccuracy(row scannable) (*model.ReportAccuracy, error) {
	var acc model.ReportAccuracy
	var verdictsJSON string

	err := row.Scan(&acc.ReportID, &verdictsJSON, &acc.AccuracyRatio)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan accuracy")
	}
	if err := json.Unmarshal([]byte(verdictsJSON), &acc.Verdicts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal verdicts")
	}
	return &acc, nil
}
