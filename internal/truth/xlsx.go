// Package truth loads ground truth workbooks and writes corrected records
// back out as spreadsheets.
package truth

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Gatsby0916/reporteval/internal/correct"
	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
)

// LoadOptions configures the ground truth loader.
type LoadOptions struct {
	SheetIndex int      // default 0
	SheetName  string   // if set, overrides SheetIndex
	IDColumns  []string // candidate report-ID headers, tried in order

	// Header reconciliation thresholds; zero values take the same
	// defaults the correction engine uses.
	SimilarityThreshold float64
	AmbiguityMargin     float64
}

var defaultIDColumns = []string{"Report ID", "Report"}

// Table is a ground truth workbook: one schema-conformant record per
// report ID, plus the original row order.
type Table struct {
	ids     []string
	records map[string]*model.Record
}

// Load reads a ground truth workbook. Headers are reconciled onto schema
// field names the same way extracted keys are, so a slightly renamed
// column still lands on its field; cell values are coerced to canonical
// form before comparison ever sees them.
func Load(path string, s *schema.Schema, opts LoadOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "truth: open %s", path)
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("truth: sheet in %s is empty", path)
	}

	header := rowStrings(sheet.Rows[0])
	idCol, err := findIDColumn(header, opts.IDColumns)
	if err != nil {
		return nil, err
	}

	// Map column index -> schema field via key reconciliation. The ID
	// column is left out so it can never be mistaken for a field.
	var keys []string
	for i, h := range header {
		if i == idCol || strings.TrimSpace(h) == "" {
			continue
		}
		keys = append(keys, h)
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = correct.DefaultSimilarityThreshold
	}
	margin := opts.AmbiguityMargin
	if margin == 0 {
		margin = correct.DefaultAmbiguityMargin
	}
	matches := correct.NewReconciler(correct.NewLevenshtein(), threshold, margin).Reconcile(keys, s)
	fieldByHeader := make(map[string]string, len(matches))
	for key, m := range matches {
		if m.Kind != correct.MatchNone {
			fieldByHeader[key] = m.Field
		}
	}

	tbl := &Table{records: make(map[string]*model.Record)}
	for _, row := range sheet.Rows[1:] {
		cells := rowStrings(row)
		if idCol >= len(cells) {
			continue
		}
		id := CanonicalID(cells[idCol])
		if id == "" {
			continue
		}

		rec := model.NewRecord(s.Names())
		resolved := make(map[string]string, s.Len())
		for i := range s.Fields() {
			fs := &s.Fields()[i]
			raw, present := cellFor(fs.Name, header, cells, idCol, fieldByHeader)
			c := correct.Coerce(fs, raw, present, resolved)
			rec.Set(fs.Name, c.Value)
			resolved[fs.Name] = c.Value
		}

		if _, dup := tbl.records[id]; !dup {
			tbl.ids = append(tbl.ids, id)
		}
		tbl.records[id] = rec
	}
	return tbl, nil
}

// Get returns the record for a report ID, matching canonical forms.
func (t *Table) Get(reportID string) (*model.Record, bool) {
	rec, ok := t.records[CanonicalID(reportID)]
	return rec, ok
}

// IDs returns the report IDs in workbook order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of reports in the table.
func (t *Table) Len() int { return len(t.ids) }

// CanonicalID normalizes a report identifier. Spreadsheet round-trips
// turn integer IDs into floats, so a trailing ".0" is stripped.
func CanonicalID(raw string) string {
	id := strings.TrimSpace(raw)
	if rest, ok := strings.CutSuffix(id, ".0"); ok && isDigits(rest) {
		id = rest
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func findIDColumn(header []string, candidates []string) (int, error) {
	if len(candidates) == 0 {
		candidates = defaultIDColumns
	}
	for _, cand := range candidates {
		want := schema.Normalize(cand)
		for i, h := range header {
			if schema.Normalize(h) == want {
				return i, nil
			}
		}
	}
	return 0, eris.Errorf("truth: no report-ID column among headers %v", header)
}

func cellFor(field string, header, cells []string, idCol int, fieldByHeader map[string]string) (string, bool) {
	for i, h := range header {
		if i == idCol || i >= len(cells) {
			continue
		}
		if fieldByHeader[h] == field {
			return cells[i], strings.TrimSpace(cells[i]) != ""
		}
	}
	return "", false
}

func pickSheet(f *xlsx.File, opts LoadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("truth: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("truth: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
