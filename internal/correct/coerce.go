package correct

import (
	"math"
	"strconv"
	"strings"

	"github.com/Gatsby0916/reporteval/internal/schema"
)

// Coercion is the outcome of forcing one raw value into the form a field
// requires.
type Coercion struct {
	Value string
	// Fell reports that the raw value was unusable and the field's
	// default_missing was substituted.
	Fell bool
	Note string
}

// Coerce produces the schema-conformant value for one field. present is
// false when no raw key matched the field. resolved holds already-coerced
// values of earlier fields, for formula evaluation; formula fields ignore
// the raw value entirely.
func Coerce(f *schema.FieldSpec, raw string, present bool, resolved map[string]string) Coercion {
	if f.Type == schema.TypeFormula {
		return coerceFormula(f, resolved)
	}

	raw = strings.TrimSpace(raw)
	if !present || raw == "" {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "missing value"}
	}

	switch f.Type {
	case schema.TypeEnum:
		return coerceEnum(f, raw)
	case schema.TypeNumeric:
		return coerceNumeric(f, raw)
	case schema.TypeDate:
		return coerceDate(f, raw)
	default:
		return coerceString(f, raw)
	}
}

func coerceEnum(f *schema.FieldSpec, raw string) Coercion {
	if v, ok := f.MapValue(raw); ok {
		return Coercion{Value: v}
	}
	if v, ok := f.CanonicalAllowed(raw); ok {
		return Coercion{Value: v}
	}
	return Coercion{Value: f.DefaultMissing, Fell: true, Note: "value not in allowed set"}
}

func coerceNumeric(f *schema.FieldSpec, raw string) Coercion {
	n, err := parseNumber(raw)
	if err != nil {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "unparsable number"}
	}
	v := formatNumber(n, f.DecimalPlaces)
	if !f.MatchFormat(v) {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "format mismatch"}
	}
	return Coercion{Value: v}
}

func coerceDate(f *schema.FieldSpec, raw string) Coercion {
	t, ok := ParseDate(raw)
	if !ok {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "unparsable date"}
	}
	v := FormatDate(t)
	if !f.MatchFormat(v) {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "format mismatch"}
	}
	return Coercion{Value: v}
}

func coerceString(f *schema.FieldSpec, raw string) Coercion {
	if !f.MatchFormat(raw) {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "format mismatch"}
	}
	return Coercion{Value: raw}
}

func coerceFormula(f *schema.FieldSpec, resolved map[string]string) Coercion {
	expr := f.Expr()
	vars := make(map[string]float64)
	for _, name := range expr.Vars() {
		n, err := parseNumber(resolved[name])
		if err != nil {
			return Coercion{Value: f.DefaultMissing, Fell: true, Note: "operand " + strconv.Quote(name) + " unavailable"}
		}
		vars[name] = n
	}
	n, ok := expr.Eval(vars)
	if !ok {
		return Coercion{Value: f.DefaultMissing, Fell: true, Note: "formula evaluation failed"}
	}
	return Coercion{Value: formatNumber(n, f.DecimalPlaces)}
}

// parseNumber accepts the numeric spellings extraction output contains:
// plain floats, thousands separators, and a trailing unit suffix.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if i := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E'
	}); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strconv.ParseFloat(s, 64)
}

// formatNumber rounds half away from zero to dp decimal places.
func formatNumber(n float64, dp int) string {
	shift := math.Pow(10, float64(dp))
	r := math.Floor(n*shift+0.5) / shift
	if math.Signbit(n) {
		r = -math.Floor(-n*shift+0.5) / shift
	}
	return strconv.FormatFloat(r, 'f', dp, 64)
}
