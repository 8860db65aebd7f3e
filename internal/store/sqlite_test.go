package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gatsby0916/reporteval/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord() *model.Record {
	return model.RecordFromValues(
		[]string{"Adenomyosis", "size_mm", "Comment"},
		map[string]string{"Adenomyosis": "1", "size_mm": "80", "Comment": "clear"},
	)
}

func TestSQLite_Corrected_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	log := model.CorrectionLog{
		{OriginalKey: "Adenomyosis ", MatchedField: "Adenomyosis", Action: model.ActionExactMatch},
	}
	require.NoError(t, st.SaveCorrected(ctx, "101", sampleRecord(), log))

	rec, gotLog, err := st.GetCorrected(ctx, "101")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"Adenomyosis", "size_mm", "Comment"}, rec.Names())
	assert.Equal(t, sampleRecord().Values(), rec.Values())
	assert.Equal(t, log, gotLog)
}

func TestSQLite_Corrected_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec, log, err := st.GetCorrected(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Nil(t, log)
}

func TestSQLite_Corrected_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveCorrected(ctx, "101", sampleRecord(), nil))

	updated := sampleRecord()
	updated.Set("size_mm", "75")
	require.NoError(t, st.SaveCorrected(ctx, "101", updated, nil))

	rec, _, err := st.GetCorrected(ctx, "101")
	require.NoError(t, err)
	v, _ := rec.Get("size_mm")
	assert.Equal(t, "75", v)

	ids, err := st.ListReportIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, ids)
}

func TestSQLite_Accuracy_SaveGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	acc := model.ReportAccuracy{
		ReportID:      "101",
		AccuracyRatio: 0.75,
		Verdicts: []model.FieldVerdict{
			{FieldName: "size_mm", TruthValue: "80", ExtractedValue: "75", Equal: false},
		},
	}
	require.NoError(t, st.SaveAccuracy(ctx, acc))
	require.NoError(t, st.SaveAccuracy(ctx, model.ReportAccuracy{ReportID: "102", AccuracyRatio: 1}))

	got, err := st.GetAccuracy(ctx, "101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.Verdicts, got.Verdicts)
	assert.InDelta(t, 0.75, got.AccuracyRatio, 1e-9)

	missing, err := st.GetAccuracy(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := st.ListAccuracies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "101", all[0].ReportID)
	assert.Equal(t, "102", all[1].ReportID)
}

func TestSQLite_Timings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveTiming(ctx, model.Timing{
		ReportID: "101",
		Model:    "claude-sonnet-4-5",
		Elapsed:  2300 * time.Millisecond,
	}))

	timings, err := st.ListTimings(ctx)
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, "101", timings[0].ReportID)
	assert.Equal(t, 2300*time.Millisecond, timings[0].Elapsed)
	assert.False(t, timings[0].CreatedAt.IsZero())
}

func TestDecodeRecordPreservesOrder(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	data, err := encodeRecord(rec)
	require.NoError(t, err)

	got, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Names(), got.Names())
	assert.Equal(t, rec.Values(), got.Values())
}

func TestDecodeRecordRejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := decodeRecord([]byte(`["not", "an", "object"]`))
	require.Error(t, err)
}
