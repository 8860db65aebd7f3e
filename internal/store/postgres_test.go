package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgres_SaveCorrected(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO corrected_records`).
		WithArgs("101", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveCorrected(context.Background(), "101", sampleRecord(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCorrected_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record, correction_log FROM corrected_records WHERE report_id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	rec, log, err := s.GetCorrected(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Nil(t, log)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCorrected(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	recJSON, err := encodeRecord(sampleRecord())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT record, correction_log FROM corrected_records`).
		WithArgs("101").
		WillReturnRows(pgxmock.NewRows([]string{"record", "correction_log"}).
			AddRow(recJSON, []byte(`[]`)))

	rec, _, err := s.GetCorrected(context.Background(), "101")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, sampleRecord().Names(), rec.Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAccuracy_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report_id, verdicts, accuracy FROM accuracy_results`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	acc, err := s.GetAccuracy(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, acc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListAccuracies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report_id, verdicts, accuracy FROM accuracy_results ORDER BY report_id`).
		WillReturnRows(pgxmock.NewRows([]string{"report_id", "verdicts", "accuracy"}).
			AddRow("101", []byte(`[{"field_name":"size_mm","equal":false}]`), 0.75).
			AddRow("102", []byte(`[]`), 1.0))

	all, err := s.ListAccuracies(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "101", all[0].ReportID)
	assert.InDelta(t, 0.75, all[0].AccuracyRatio, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveTiming(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extraction_timings`).
		WithArgs(pgxmock.AnyArg(), "101", "claude-sonnet-4-5", int64(2300), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveTiming(context.Background(), model.Timing{
		ReportID: "101",
		Model:    "claude-sonnet-4-5",
		Elapsed:  2300 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS corrected_records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
