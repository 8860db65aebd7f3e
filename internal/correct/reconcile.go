// Package correct forces an arbitrary extracted key/value object into
// conformance with a schema: near-miss keys are reconciled onto schema
// field names, values are coerced to schema-conformant form, and every
// decision is recorded in a correction log.
package correct

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/Gatsby0916/reporteval/internal/schema"
)

// MatchKind classifies how a raw key relates to a schema field.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
	MatchNone  MatchKind = "unmatched_by_schema"
)

// Match is the reconciliation outcome for a single raw key.
type Match struct {
	Field     string
	Kind      MatchKind
	Score     float64
	Ambiguous bool
}

// Similarity scores how alike two normalized strings are, in [0, 1].
// It is a strategy interface so the matching policy is swappable and
// independently testable.
type Similarity interface {
	Score(a, b string) float64
}

// Levenshtein scores strings by Levenshtein similarity ratio.
type Levenshtein struct {
	params *levenshtein.Params
}

// NewLevenshtein creates the default similarity metric.
func NewLevenshtein() *Levenshtein {
	return &Levenshtein{params: levenshtein.NewParams()}
}

// Score returns the Levenshtein similarity of a and b.
func (l *Levenshtein) Score(a, b string) float64 {
	return levenshtein.Similarity(a, b, l.params)
}

// Default reconciliation thresholds: a raw key one transposition away
// from a field name clears 0.8, and a runner-up within 0.05 of the best
// score makes the key ambiguous.
const (
	DefaultSimilarityThreshold = 0.8
	DefaultAmbiguityMargin     = 0.05
)

// Reconciler matches raw input keys onto schema field names.
type Reconciler struct {
	sim       Similarity
	threshold float64
	margin    float64
}

// NewReconciler creates a Reconciler. threshold is the minimum similarity
// for a fuzzy match; a runner-up scoring within margin of the best
// candidate makes the key ambiguous, which is never guessed.
func NewReconciler(sim Similarity, threshold, margin float64) *Reconciler {
	if sim == nil {
		sim = NewLevenshtein()
	}
	return &Reconciler{sim: sim, threshold: threshold, margin: margin}
}

// Reconcile maps every raw key to a schema field or to MatchNone. Each
// schema field is claimed by at most one raw key. The result is
// deterministic for identical inputs: raw keys are visited in sorted
// order and candidate fields in schema declaration order.
func (r *Reconciler) Reconcile(rawKeys []string, s *schema.Schema) map[string]Match {
	keys := make([]string, len(rawKeys))
	copy(keys, rawKeys)
	sort.Strings(keys)

	fields := s.Names()
	normField := make(map[string]string, len(fields))
	for _, name := range fields {
		n := schema.Normalize(name)
		if _, ok := normField[n]; !ok {
			normField[n] = name
		}
	}

	matches := make(map[string]Match, len(keys))
	claimed := make(map[string]bool, len(fields))

	// Pass 1: case/whitespace-insensitive exact matches.
	for _, key := range keys {
		field, ok := normField[schema.Normalize(key)]
		if !ok {
			continue
		}
		if claimed[field] {
			matches[key] = Match{Kind: MatchNone, Score: 1}
			continue
		}
		claimed[field] = true
		matches[key] = Match{Field: field, Kind: MatchExact, Score: 1}
	}

	// Pass 2: similarity against every unclaimed field.
	for _, key := range keys {
		if _, done := matches[key]; done {
			continue
		}
		normKey := schema.Normalize(key)

		var (
			best      float64
			bestField string
			runnerUp  float64
		)
		for _, field := range fields {
			if claimed[field] {
				continue
			}
			score := r.sim.Score(normKey, schema.Normalize(field))
			if score > best {
				runnerUp = best
				best = score
				bestField = field
			} else if score > runnerUp {
				runnerUp = score
			}
		}

		if bestField == "" || best < r.threshold {
			matches[key] = Match{Kind: MatchNone, Score: best}
			continue
		}
		if best-runnerUp < r.margin {
			// Two candidates are too close to call: refuse to guess.
			matches[key] = Match{Kind: MatchNone, Score: best, Ambiguous: true}
			continue
		}

		claimed[bestField] = true
		matches[key] = Match{Field: bestField, Kind: MatchFuzzy, Score: best}
	}

	return matches
}
