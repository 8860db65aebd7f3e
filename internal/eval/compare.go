// Package eval measures cell-level agreement between corrected extraction
// output and ground truth, and aggregates the results across a batch.
package eval

import (
	"math"
	"strconv"

	"github.com/Gatsby0916/reporteval/internal/correct"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// missingSpellings are the ways source systems spell an absent value.
var missingSpellings = map[string]bool{
	"":              true,
	"nan":           true,
	"none":          true,
	"na":            true,
	"n/a":           true,
	"nat":           true,
	"null":          true,
	"unspecified":   true,
	"not specified": true,
}

// trueSpellings and falseSpellings let enum comparison recognize boolean
// synonyms that a field's own mapping does not cover.
var trueSpellings = map[string]bool{
	"1": true, "true": true, "yes": true, "present": true,
	"active": true, "positive": true, "complete": true, "conventional": true,
}

var falseSpellings = map[string]bool{
	"0": true, "false": true, "no": true, "absent": true,
	"inactive": true, "negative": true, "normal": true,
}

// Comparator decides cell equality using the field's declared type. It is
// symmetric: swapping the two values never changes the verdict.
type Comparator struct{}

// NewComparator creates a Comparator.
func NewComparator() *Comparator { return &Comparator{} }

// Equal reports whether truth and extracted denote the same cell value
// under f's type rules.
func (c *Comparator) Equal(f *schema.FieldSpec, truth, extracted string) bool {
	tm := missingSpellings[schema.Normalize(truth)]
	em := missingSpellings[schema.Normalize(extracted)]
	if tm && em {
		return true
	}
	if tm != em {
		// One side abstained outright. The other agrees only when it
		// holds the field's default fill, which also denotes absence.
		present := truth
		if tm {
			present = extracted
		}
		return schema.Normalize(present) == schema.Normalize(f.DefaultMissing)
	}

	switch f.Type {
	case schema.TypeEnum:
		return canonicalEnum(f, truth) == canonicalEnum(f, extracted)
	case schema.TypeNumeric, schema.TypeFormula:
		return numericEqual(f, truth, extracted)
	case schema.TypeDate:
		return dateEqual(truth, extracted)
	default:
		return schema.Normalize(truth) == schema.Normalize(extracted)
	}
}

func canonicalEnum(f *schema.FieldSpec, v string) string {
	if m, ok := f.MapValue(v); ok {
		return schema.Normalize(m)
	}
	if a, ok := f.CanonicalAllowed(v); ok {
		return schema.Normalize(a)
	}
	n := schema.Normalize(v)
	switch {
	case trueSpellings[n]:
		return "1"
	case falseSpellings[n]:
		return "0"
	}
	return n
}

// numericEqual compares within half a unit of the field's last declared
// decimal place, so values that round to the same representation agree.
func numericEqual(f *schema.FieldSpec, a, b string) bool {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return schema.Normalize(a) == schema.Normalize(b)
	}
	tol := 0.5*math.Pow(10, -float64(f.DecimalPlaces)) + 1e-9
	return math.Abs(x-y) <= tol
}

func dateEqual(a, b string) bool {
	x, okA := correct.ParseDate(a)
	y, okB := correct.ParseDate(b)
	if !okA || !okB {
		return schema.Normalize(a) == schema.Normalize(b)
	}
	return x.Year() == y.Year() && x.Month() == y.Month() && x.Day() == y.Day()
}
