package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gatsby0916/reporteval/internal/schema"
)

func TestBuildExtractionPrompt(t *testing.T) {
	t.Parallel()

	s, err := schema.New([]schema.FieldSpec{
		{
			Name:           "Adenomyosis",
			Type:           schema.TypeEnum,
			AllowedValues:  []string{"0", "1"},
			Mapping:        map[string]string{"yes": "1"},
			DefaultMissing: "0",
			Description:    "Presence of adenomyosis.",
		},
		{Name: "size_mm", Type: schema.TypeNumeric, DefaultMissing: "NA"},
		{
			Name:           "volume",
			Type:           schema.TypeFormula,
			Formula:        "size_mm*2",
			DefaultMissing: "NA",
		},
	})
	require.NoError(t, err)

	prompt := BuildExtractionPrompt(s)

	assert.Contains(t, prompt, `"Adenomyosis": ""`)
	assert.Contains(t, prompt, `"size_mm": ""`)
	assert.Contains(t, prompt, "Presence of adenomyosis.")
	assert.Contains(t, prompt, "bare number")
	assert.Contains(t, prompt, "computed afterwards")
	assert.Contains(t, prompt, "only the JSON object")
}

func TestParseModelJSON(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"a": "1"}`,
		"```json\n{\"a\": \"1\"}\n```",
		"```\n{\"a\": \"1\"}\n```",
		"  {\"a\": \"1\"}  ",
	}
	for _, in := range cases {
		raw, err := ParseModelJSON(in)
		require.NoError(t, err, in)
		assert.Equal(t, "1", raw["a"], in)
	}
}

func TestParseModelJSONRejectsProse(t *testing.T) {
	t.Parallel()

	_, err := ParseModelJSON("Here is the extraction you asked for.")
	require.Error(t, err)
}
