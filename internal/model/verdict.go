package model

// Action classifies what the correction engine did with a key or field.
type Action string

const (
	ActionExactMatch         Action = "exact_match"
	ActionFuzzyMatch         Action = "fuzzy_match"
	ActionDefaultFilled      Action = "default_filled"
	ActionFormulaComputed    Action = "formula_computed"
	ActionUnmatchedDiscarded Action = "unmatched_discarded"
)

// LogEntry records one correction decision for audit.
type LogEntry struct {
	OriginalKey  string `json:"original_key"`
	MatchedField string `json:"matched_field,omitempty"`
	Action       Action `json:"action"`
	Note         string `json:"note,omitempty"`
}

// CorrectionLog is the ordered list of decisions made while correcting a
// single raw record.
type CorrectionLog []LogEntry

// FieldVerdict is the equality outcome for one field of one report.
type FieldVerdict struct {
	FieldName      string `json:"field_name"`
	TruthValue     string `json:"ground_truth_value"`
	ExtractedValue string `json:"extracted_value"`
	Equal          bool   `json:"equal"`
}

// ReportAccuracy is the cell-level comparison result for one report.
type ReportAccuracy struct {
	ReportID      string         `json:"report_id"`
	Verdicts      []FieldVerdict `json:"field_verdicts"`
	AccuracyRatio float64        `json:"accuracy_ratio"`
}

// CorrectCells returns the number of fields judged equal.
func (a ReportAccuracy) CorrectCells() int {
	n := 0
	for _, v := range a.Verdicts {
		if v.Equal {
			n++
		}
	}
	return n
}

// FieldErrorCount pairs a field name with the number of reports in which
// that field's verdict was unequal.
type FieldErrorCount struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// Summary aggregates accuracy ratios across a batch of reports. Statistics
// are NaN when the batch is empty.
type Summary struct {
	Reports     int               `json:"reports"`
	Mean        float64           `json:"mean"`
	Median      float64           `json:"median"`
	StdDev      float64           `json:"stdev"`
	Min         float64           `json:"min"`
	Max         float64           `json:"max"`
	MinReportID string            `json:"min_report_id,omitempty"`
	MaxReportID string            `json:"max_report_id,omitempty"`
	FieldErrors []FieldErrorCount `json:"per_field_error_counts"`
}
