package truth

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// WriteRecordXLSX writes a single corrected record as a two-row sheet:
// field names then values, in schema order.
func WriteRecordXLSX(path, sheetName string, rec *model.Record) error {
	return WriteRecordsXLSX(path, sheetName, nil, []*model.Record{rec})
}

// WriteRecordsXLSX writes one row per record. When ids is non-nil it must
// be parallel to recs and a leading "Report ID" column is added.
func WriteRecordsXLSX(path, sheetName string, ids []string, recs []*model.Record) error {
	if len(recs) == 0 {
		return eris.New("truth: no records to write")
	}
	if ids != nil && len(ids) != len(recs) {
		return eris.Errorf("truth: %d ids for %d records", len(ids), len(recs))
	}
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "truth: add sheet %q", sheetName)
	}

	header := sheet.AddRow()
	if ids != nil {
		header.AddCell().SetString("Report ID")
	}
	for _, name := range recs[0].Names() {
		header.AddCell().SetString(name)
	}

	for i, rec := range recs {
		row := sheet.AddRow()
		if ids != nil {
			row.AddCell().SetString(ids[i])
		}
		for _, name := range rec.Names() {
			v, _ := rec.Get(name)
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "truth: save %s", path)
	}
	return nil
}
