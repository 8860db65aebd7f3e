package correct

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// Engine turns raw extracted objects into schema-conformant records.
type Engine struct {
	rec *Reconciler
}

// Option configures an Engine.
type Option func(*Engine)

// WithReconciler replaces the default key reconciler.
func WithReconciler(r *Reconciler) Option {
	return func(e *Engine) { e.rec = r }
}

// NewEngine creates an Engine with the default Levenshtein reconciler.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rec: NewReconciler(NewLevenshtein(), DefaultSimilarityThreshold, DefaultAmbiguityMargin)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Correct forces raw into conformance with s. The returned record has
// exactly the schema's fields in schema order; the log records every
// observable correction, in field order, with discarded keys last.
// Correcting an already-corrected record changes nothing and yields an
// empty log.
func (e *Engine) Correct(raw model.RawRecord, s *schema.Schema) (*model.Record, model.CorrectionLog) {
	matches := e.rec.Reconcile(raw.Keys(), s)

	keyFor := make(map[string]string, len(matches))
	kindFor := make(map[string]MatchKind, len(matches))
	for key, m := range matches {
		if m.Kind == MatchNone {
			continue
		}
		keyFor[m.Field] = key
		kindFor[m.Field] = m.Kind
	}

	rec := model.NewRecord(s.Names())
	resolved := make(map[string]string, s.Len())
	var log model.CorrectionLog

	for i := range s.Fields() {
		f := &s.Fields()[i]
		key, matched := keyFor[f.Name]
		var rawVal string
		if matched {
			rawVal = stringify(raw[key])
		}

		c := Coerce(f, rawVal, matched, resolved)
		rec.Set(f.Name, c.Value)
		resolved[f.Name] = c.Value

		if entry, changed := logEntry(f, key, kindFor[f.Name], matched, rawVal, c); changed {
			log = append(log, entry)
		}
	}

	// Discarded raw keys, in sorted order.
	keys := make([]string, 0, len(matches))
	for key, m := range matches {
		if m.Kind == MatchNone {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		note := "no schema field within similarity threshold"
		if matches[key].Ambiguous {
			note = "ambiguous between multiple schema fields"
		}
		log = append(log, model.LogEntry{
			OriginalKey: key,
			Action:      model.ActionUnmatchedDiscarded,
			Note:        note,
		})
	}

	return rec, log
}

// logEntry reports whether the field's coercion changed anything
// observable, and the log entry describing it when it did.
func logEntry(f *schema.FieldSpec, key string, kind MatchKind, matched bool, rawVal string, c Coercion) (model.LogEntry, bool) {
	entry := model.LogEntry{OriginalKey: key, MatchedField: f.Name, Note: c.Note}

	if f.Type == schema.TypeFormula {
		if matched && rawVal == c.Value {
			return model.LogEntry{}, false
		}
		entry.Action = model.ActionFormulaComputed
		if c.Fell {
			entry.Action = model.ActionDefaultFilled
		}
		return entry, true
	}

	if !matched {
		entry.Action = model.ActionDefaultFilled
		if entry.Note == "" {
			entry.Note = "field absent from input"
		}
		return entry, true
	}
	if c.Fell {
		entry.Action = model.ActionDefaultFilled
		return entry, true
	}

	keyChanged := key != f.Name
	valueChanged := rawVal != c.Value
	if !keyChanged && !valueChanged {
		return model.LogEntry{}, false
	}

	entry.Action = model.ActionExactMatch
	if kind == MatchFuzzy {
		entry.Action = model.ActionFuzzyMatch
	}
	switch {
	case keyChanged && valueChanged:
		entry.Note = "key and value normalized"
	case keyChanged:
		entry.Note = "key normalized"
	default:
		entry.Note = "value normalized"
	}
	return entry, true
}

// stringify renders a decoded JSON value the way it would appear in a
// corrected record.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
