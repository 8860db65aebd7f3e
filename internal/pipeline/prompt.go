// Package pipeline orchestrates extraction, correction, evaluation and
// artifact writing for single reports and batches.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// BuildExtractionPrompt renders the schema as a JSON template plus filling
// rules, instructing the model to return one strictly formatted JSON
// object covering every field.
func BuildExtractionPrompt(s *schema.Schema) string {
	var b strings.Builder

	b.WriteString("# Task Objective\n")
	b.WriteString("Accurately extract information from the provided clinical report and populate it strictly according to the JSON template and field rules below. The final output must be a single, complete, correctly formatted JSON object.\n\n")

	b.WriteString("# JSON Output Template\n")
	b.WriteString("Fill the extracted information into the following structure. Every field must be present:\n```json\n{\n")
	names := s.Names()
	for i, name := range names {
		fmt.Fprintf(&b, "  %q: \"\"", name)
		if i < len(names)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n```\n\n")

	b.WriteString("# Field Rules\n")
	for i := range s.Fields() {
		f := &s.Fields()[i]
		fmt.Fprintf(&b, "- %q: %s", f.Name, fieldRule(f))
		if f.Description != "" {
			fmt.Fprintf(&b, " %s", f.Description)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n# General Instructions\n")
	b.WriteString("- Extract only what the report states; make no external inferences.\n")
	b.WriteString("- Include every field from the template, using the field's missing value when the report does not mention it.\n")
	b.WriteString("- Respond with only the JSON object, without any additional text, explanations, or Markdown tags.\n")

	return b.String()
}

func fieldRule(f *schema.FieldSpec) string {
	switch f.Type {
	case schema.TypeEnum:
		rule := fmt.Sprintf("one of %s.", strings.Join(quoteAll(f.AllowedValues), ", "))
		if len(f.Mapping) > 0 {
			rule += " Map synonymous report wording onto those values."
		}
		return rule + missingClause(f)
	case schema.TypeNumeric:
		return "the numeric value as a bare number, no units." + missingClause(f)
	case schema.TypeDate:
		return "the date in YYYY-MM-DD form." + missingClause(f)
	case schema.TypeFormula:
		return fmt.Sprintf("leave as %q; it is computed afterwards.", f.DefaultMissing)
	default:
		return "the report's own wording, copied exactly." + missingClause(f)
	}
}

func missingClause(f *schema.FieldSpec) string {
	return fmt.Sprintf(" Use %q when the report does not mention it.", f.DefaultMissing)
}

func quoteAll(vals []string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}

// ParseModelJSON decodes the model's reply into a raw record, tolerating
// a Markdown code fence around the object.
func ParseModelJSON(text string) (model.RawRecord, error) {
	t := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(t, "```json"); ok {
		t = rest
	} else if rest, ok := strings.CutPrefix(t, "```"); ok {
		t = rest
	}
	t = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))

	if !strings.HasPrefix(t, "{") {
		return nil, eris.Errorf("pipeline: model reply is not a JSON object: %.80s", t)
	}
	return model.ParseRawRecord([]byte(t))
}
