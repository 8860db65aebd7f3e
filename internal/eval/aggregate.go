package eval

import (
	"math"
	"sort"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// Summarize aggregates per-report accuracies into batch statistics and a
// per-field error ranking. With no reports every statistic is NaN.
func Summarize(results []model.ReportAccuracy, s *schema.Schema) model.Summary {
	sum := model.Summary{
		Reports: len(results),
		Mean:    math.NaN(),
		Median:  math.NaN(),
		StdDev:  math.NaN(),
		Min:     math.NaN(),
		Max:     math.NaN(),
	}
	if s != nil {
		sum.FieldErrors = fieldErrors(results, s)
	}
	if len(results) == 0 {
		return sum
	}

	ratios := make([]float64, len(results))
	var total float64
	minIdx, maxIdx := 0, 0
	for i, r := range results {
		ratios[i] = r.AccuracyRatio
		total += r.AccuracyRatio
		if r.AccuracyRatio < results[minIdx].AccuracyRatio {
			minIdx = i
		}
		if r.AccuracyRatio > results[maxIdx].AccuracyRatio {
			maxIdx = i
		}
	}
	sum.Mean = total / float64(len(ratios))
	sum.Min = results[minIdx].AccuracyRatio
	sum.Max = results[maxIdx].AccuracyRatio
	sum.MinReportID = results[minIdx].ReportID
	sum.MaxReportID = results[maxIdx].ReportID

	sorted := make([]float64, len(ratios))
	copy(sorted, ratios)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		sum.Median = sorted[mid]
	} else {
		sum.Median = (sorted[mid-1] + sorted[mid]) / 2
	}

	var sq float64
	for _, r := range ratios {
		d := r - sum.Mean
		sq += d * d
	}
	// Population standard deviation.
	sum.StdDev = math.Sqrt(sq / float64(len(ratios)))

	return sum
}

// fieldErrors counts, per field, the reports where that field's verdict
// was unequal, ranked by count descending with schema order breaking ties.
func fieldErrors(results []model.ReportAccuracy, s *schema.Schema) []model.FieldErrorCount {
	counts := make(map[string]int, s.Len())
	for _, r := range results {
		for _, v := range r.Verdicts {
			if !v.Equal {
				counts[v.FieldName]++
			}
		}
	}

	order := make(map[string]int, s.Len())
	out := make([]model.FieldErrorCount, 0, s.Len())
	for i, name := range s.Names() {
		order[name] = i
		if counts[name] > 0 {
			out = append(out, model.FieldErrorCount{Field: name, Count: counts[name]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return order[out[i].Field] < order[out[j].Field]
	})
	return out
}
