package eval

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// WriteAccuracyReport renders the per-report accuracy artifact: header,
// cell counts, the overall ratio and, when any cell disagreed, a
// differences table.
func WriteAccuracyReport(w io.Writer, acc model.ReportAccuracy) error {
	cols := make([]string, 0, len(acc.Verdicts))
	for _, v := range acc.Verdicts {
		cols = append(cols, v.FieldName)
	}
	total := len(acc.Verdicts)
	correct := acc.CorrectCells()

	var b strings.Builder
	fmt.Fprintf(&b, "Report ID: %s\n", acc.ReportID)
	fmt.Fprintf(&b, "Compared Columns (%d):\n", total)
	fmt.Fprintf(&b, "%s\n\n", strings.Join(cols, ", "))
	fmt.Fprintf(&b, "Total comparable cells: %d\n", total)
	fmt.Fprintf(&b, "Correct cells: %d\n", correct)
	fmt.Fprintf(&b, "Incorrect cells: %d\n", total-correct)
	fmt.Fprintf(&b, "Overall accuracy: %.4f\n", acc.AccuracyRatio)

	if total-correct > 0 {
		b.WriteString("\n--- Differences ---\n")
		writeDifferences(&b, acc.Verdicts)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrapf(err, "eval: write accuracy report %s", acc.ReportID)
	}
	return nil
}

func writeDifferences(b *strings.Builder, verdicts []model.FieldVerdict) {
	headers := [3]string{"Column", "True Value", "Extracted Value"}
	widths := [3]int{len(headers[0]), len(headers[1]), len(headers[2])}

	type row [3]string
	var rows []row
	for _, v := range verdicts {
		if v.Equal {
			continue
		}
		r := row{v.FieldName, cellOrNA(v.TruthValue), cellOrNA(v.ExtractedValue)}
		for i, c := range r {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
		rows = append(rows, r)
	}

	line := func(cells [3]string) {
		for i, c := range cells {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(b, "%-*s", widths[i], c)
		}
		b.WriteByte('\n')
	}
	line(headers)
	fmt.Fprintf(b, "%s-+-%s-+-%s\n",
		strings.Repeat("-", widths[0]),
		strings.Repeat("-", widths[1]),
		strings.Repeat("-", widths[2]))
	for _, r := range rows {
		line(r)
	}
}

func cellOrNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "<NA>"
	}
	return v
}

// WriteSummaryReport renders batch statistics followed by each report's
// accuracy, sorted by report ID.
func WriteSummaryReport(w io.Writer, sum model.Summary, results []model.ReportAccuracy) error {
	var b strings.Builder
	b.WriteString("--- Accuracy Summary ---\n")
	fmt.Fprintf(&b, "Processed Reports : %d\n", sum.Reports)
	fmt.Fprintf(&b, "Average Accuracy  : %.4f\n", sum.Mean)
	fmt.Fprintf(&b, "Median Accuracy   : %.4f\n", sum.Median)
	fmt.Fprintf(&b, "Std Deviation     : %.4f\n", sum.StdDev)
	fmt.Fprintf(&b, "Minimum Accuracy  : %.4f (Report: %s)\n", sum.Min, sum.MinReportID)
	fmt.Fprintf(&b, "Maximum Accuracy  : %.4f (Report: %s)\n\n", sum.Max, sum.MaxReportID)

	b.WriteString("--- Individual Report Accuracies ---\n")
	ordered := make([]model.ReportAccuracy, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ReportID < ordered[j].ReportID })
	for _, r := range ordered {
		fmt.Fprintf(&b, "%s: %.4f\n", r.ReportID, r.AccuracyRatio)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "eval: write summary report")
	}
	return nil
}

// WriteErrorDistributionCSV writes the ranked per-field error counts.
func WriteErrorDistributionCSV(w io.Writer, counts []model.FieldErrorCount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Column", "Error_Frequency"}); err != nil {
		return eris.Wrap(err, "eval: write error distribution header")
	}
	for _, c := range counts {
		if err := cw.Write([]string{c.Field, strconv.Itoa(c.Count)}); err != nil {
			return eris.Wrapf(err, "eval: write error distribution row %s", c.Field)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "eval: flush error distribution")
}
