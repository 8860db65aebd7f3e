package correct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

func pelvicSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldSpec{
		{
			Name:          "Endometriosis",
			Type:          schema.TypeEnum,
			AllowedValues: []string{"0", "1"},
			Mapping: map[string]string{
				"yes": "1", "present": "1",
				"no": "0", "absent": "0",
			},
			DefaultMissing: "0",
		},
		{Name: "length", Type: schema.TypeNumeric, DefaultMissing: "NA"},
		{Name: "width", Type: schema.TypeNumeric, DefaultMissing: "NA"},
		{Name: "height", Type: schema.TypeNumeric, DefaultMissing: "NA"},
		{
			Name:           "volume",
			Type:           schema.TypeFormula,
			Formula:        "((length*width*height)/1000)*0.53",
			DecimalPlaces:  1,
			DefaultMissing: "NA",
		},
		{Name: "Report Date", Type: schema.TypeDate, DefaultMissing: ""},
		{Name: "Comment", Type: schema.TypeString, DefaultMissing: ""},
	})
	require.NoError(t, err)
	return s
}

func TestCorrectEndToEnd(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	raw := model.RawRecord{
		"Endometriosis ": "Yes", // trailing space in the key
		"length":         "40",
		"width":          "30",
		"height":         "20",
		"Report Date":    "12/03/2024",
		"Comment":        "posterior compartment",
		"Study Quality":  "good", // not a schema field
	}

	rec, log := NewEngine().Correct(raw, s)

	require.Equal(t, s.Names(), rec.Names())
	got := rec.Values()
	assert.Equal(t, "1", got["Endometriosis"])
	assert.Equal(t, "40", got["length"])
	assert.Equal(t, "12.7", got["volume"])
	assert.Equal(t, "2024-03-12", got["Report Date"])
	assert.Equal(t, "posterior compartment", got["Comment"])

	var endo, discarded *model.LogEntry
	for i := range log {
		switch {
		case log[i].MatchedField == "Endometriosis":
			endo = &log[i]
		case log[i].OriginalKey == "Study Quality":
			discarded = &log[i]
		}
	}
	require.NotNil(t, endo)
	assert.Equal(t, model.ActionExactMatch, endo.Action)
	assert.Equal(t, "Endometriosis ", endo.OriginalKey)
	require.NotNil(t, discarded)
	assert.Equal(t, model.ActionUnmatchedDiscarded, discarded.Action)
}

func TestCorrectFuzzyKey(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	raw := model.RawRecord{"Endometroisis": "present"}

	rec, log := NewEngine().Correct(raw, s)

	v, ok := rec.Get("Endometriosis")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	require.NotEmpty(t, log)
	assert.Equal(t, model.ActionFuzzyMatch, log[0].Action)
	assert.Equal(t, "Endometroisis", log[0].OriginalKey)
	assert.Equal(t, "Endometriosis", log[0].MatchedField)
}

func TestCorrectMissingOperandDefaultsFormula(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	raw := model.RawRecord{"length": "40", "width": "30"}

	rec, _ := NewEngine().Correct(raw, s)

	v, _ := rec.Get("height")
	assert.Equal(t, "NA", v)
	v, _ = rec.Get("volume")
	assert.Equal(t, "NA", v)
}

func TestCorrectTotality(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)

	for name, raw := range map[string]model.RawRecord{
		"empty":     {},
		"garbage":   {"zzz": "1", "qqq": map[string]any{"nested": true}},
		"all wrong": {"Endometriosis": "maybe", "length": "tiny", "Report Date": "someday"},
	} {
		raw := raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec, _ := NewEngine().Correct(raw, s)
			require.Equal(t, s.Names(), rec.Names())
			for _, n := range rec.Names() {
				_, ok := rec.Get(n)
				assert.True(t, ok, n)
			}
		})
	}
}

func TestCorrectIdempotent(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	raw := model.RawRecord{
		"endometriosis": "YES",
		"Length":        "40.2",
		"width":         "30",
		"height":        "0",
		"Report  Date":  "1 March 2024",
		"Comment":       " with whitespace ",
	}

	first, log1 := NewEngine().Correct(raw, s)
	require.NotEmpty(t, log1)

	again := make(model.RawRecord, first.Len())
	for k, v := range first.Values() {
		again[k] = v
	}
	second, log2 := NewEngine().Correct(again, s)

	assert.Equal(t, first.Values(), second.Values())
	assert.Empty(t, log2, "re-correcting a corrected record must be a no-op")
}

func TestReconcileAmbiguousKeyDiscarded(t *testing.T) {
	t.Parallel()

	s, err := schema.New([]schema.FieldSpec{
		{Name: "lesion left", Type: schema.TypeString, DefaultMissing: ""},
		{Name: "lesion lift", Type: schema.TypeString, DefaultMissing: ""},
	})
	require.NoError(t, err)

	r := NewReconciler(NewLevenshtein(), 0.8, 0.05)
	m := r.Reconcile([]string{"lesion laft"}, s)

	require.Contains(t, m, "lesion laft")
	assert.Equal(t, MatchNone, m["lesion laft"].Kind)
	assert.True(t, m["lesion laft"].Ambiguous)
}

func TestReconcileBelowThreshold(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	r := NewReconciler(NewLevenshtein(), 0.8, 0.05)
	m := r.Reconcile([]string{"completely unrelated"}, s)

	assert.Equal(t, MatchNone, m["completely unrelated"].Kind)
	assert.False(t, m["completely unrelated"].Ambiguous)
}

func TestReconcileDeterministic(t *testing.T) {
	t.Parallel()

	s := pelvicSchema(t)
	r := NewReconciler(NewLevenshtein(), 0.8, 0.05)
	keys := []string{"height", "width", "lenght", "Endometriosis"}

	first := r.Reconcile(keys, s)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, r.Reconcile(keys, s))
	}
}
