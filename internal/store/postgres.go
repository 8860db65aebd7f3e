package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs, so tests can swap
// in a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS corrected_records (
	report_id      TEXT PRIMARY KEY,
	record         JSONB NOT NULL,
	correction_log JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accuracy_results (
	report_id  TEXT PRIMARY KEY,
	verdicts   JSONB NOT NULL,
	accuracy   DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_timings (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_timings_report_id ON extraction_timings(report_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveCorrected(ctx context.Context, reportID string, rec *model.Record, log model.CorrectionLog) error {
	recJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction log")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO corrected_records (report_id, record, correction_log, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (report_id) DO UPDATE SET record = $2, correction_log = $3, updated_at = now()`,
		reportID, recJSON, logJSON,
	)
	return eris.Wrapf(err, "postgres: save corrected %s", reportID)
}

func (s *PostgresStore) GetCorrected(ctx context.Context, reportID string) (*model.Record, model.CorrectionLog, error) {
	var recJSON, logJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record, correction_log FROM corrected_records WHERE report_id = $1`,
		reportID,
	).Scan(&recJSON, &logJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: get corrected %s", reportID)
	}

	rec, err := decodeRecord(recJSON)
	if err != nil {
		return nil, nil, err
	}
	var log model.CorrectionLog
	if err := json.Unmarshal(logJSON, &log); err != nil {
		return nil, nil, eris.Wrap(err, "postgres: unmarshal correction log")
	}
	return rec, log, nil
}

func (s *PostgresStore) ListReportIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT report_id FROM corrected_records ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list report ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list report ids iterate")
}

func (s *PostgresStore) SaveAccuracy(ctx context.Context, acc model.ReportAccuracy) error {
	verdictsJSON, err := json.Marshal(acc.Verdicts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdicts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accuracy_results (report_id, verdicts, accuracy, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (report_id) DO UPDATE SET verdicts = $2, accuracy = $3, updated_at = now()`,
		acc.ReportID, verdictsJSON, acc.AccuracyRatio,
	)
	return eris.Wrapf(err, "postgres: save accuracy %s", acc.ReportID)
}

func (s *PostgresStore) GetAccuracy(ctx context.Context, reportID string) (*model.ReportAccuracy, error) {
	var acc model.ReportAccuracy
	var verdictsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT report_id, verdicts, accuracy FROM accuracy_results WHERE report_id = $1`,
		reportID,
	).Scan(&acc.ReportID, &verdictsJSON, &acc.AccuracyRatio)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get accuracy %s", reportID)
	}
	if err := json.Unmarshal(verdictsJSON, &acc.Verdicts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal verdicts")
	}
	return &acc, nil
}

func (s *PostgresStore) ListAccuracies(ctx context.Context) ([]model.ReportAccuracy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT report_id, verdicts, accuracy FROM accuracy_results ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accuracies")
	}
	defer rows.Close()

	var out []model.ReportAccuracy
	for rows.Next() {
		var acc model.ReportAccuracy
		var verdictsJSON []byte
		if err := rows.Scan(&acc.ReportID, &verdictsJSON, &acc.AccuracyRatio); err != nil {
			return nil, eris.Wrap(err, "postgres: scan accuracy")
		}
		if err := json.Unmarshal(verdictsJSON, &acc.Verdicts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal verdicts")
		}
		out = append(out, acc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list accuracies iterate")
}

func (s *PostgresStore) SaveTiming(ctx context.Context, t model.Timing) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_timings (id, report_id, model, elapsed_ms, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), t.ReportID, t.Model, t.Elapsed.Milliseconds(), created,
	)
	return eris.Wrapf(err, "postgres: save timing %s", t.ReportID)
}

func (s *PostgresStore) ListTimings(ctx context.Context) ([]model.Timing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT report_id, model, elapsed_ms, created_at FROM extraction_timings ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list timings")
	}
	defer rows.Close()

	var out []model.Timing
	for rows.Next() {
		var t model.Timing
		var ms int64
		if err := rows.Scan(&t.ReportID, &t.Model, &ms, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan timing")
		}
		t.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list timings iterate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}
