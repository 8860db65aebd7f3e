package eval

import (
	"fmt"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// MismatchError reports that the two records being evaluated do not share
// the schema's column set.
type MismatchError struct {
	Missing []string
	Side    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("eval: %s record is missing schema fields %v", e.Side, e.Missing)
}

// Evaluator produces per-report accuracy results.
type Evaluator struct {
	cmp *Comparator
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cmp: NewComparator()}
}

// Evaluate compares extracted against truth cell by cell, in schema order.
// Every schema field yields exactly one verdict; the accuracy ratio is
// correct cells over total cells.
func (e *Evaluator) Evaluate(reportID string, s *schema.Schema, truth, extracted *model.Record) (model.ReportAccuracy, error) {
	if err := checkColumns(s, truth, "ground truth"); err != nil {
		return model.ReportAccuracy{}, err
	}
	if err := checkColumns(s, extracted, "extracted"); err != nil {
		return model.ReportAccuracy{}, err
	}

	acc := model.ReportAccuracy{
		ReportID: reportID,
		Verdicts: make([]model.FieldVerdict, 0, s.Len()),
	}
	for i := range s.Fields() {
		f := &s.Fields()[i]
		tv, _ := truth.Get(f.Name)
		ev, _ := extracted.Get(f.Name)
		acc.Verdicts = append(acc.Verdicts, model.FieldVerdict{
			FieldName:      f.Name,
			TruthValue:     tv,
			ExtractedValue: ev,
			Equal:          e.cmp.Equal(f, tv, ev),
		})
	}
	if s.Len() > 0 {
		acc.AccuracyRatio = float64(acc.CorrectCells()) / float64(s.Len())
	}
	return acc, nil
}

func checkColumns(s *schema.Schema, rec *model.Record, side string) error {
	var missing []string
	for _, name := range s.Names() {
		if _, ok := rec.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MismatchError{Missing: missing, Side: side}
	}
	return nil
}
