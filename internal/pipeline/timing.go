package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rotisserie/eris"

	"github.com/Gatsby0916/reporteval/internal/model"
)

// AppendTimingLog appends a row to the extraction timing CSV, writing the
// header first when the file is new.
func AppendTimingLog(path string, t model.Timing) error {
	info, statErr := os.Stat(path)
	newFile := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "pipeline: open timing log %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write([]string{"report_id", "model", "elapsed_sec"}); err != nil {
			return eris.Wrap(err, "pipeline: write timing header")
		}
	}
	if err := w.Write([]string{t.ReportID, t.Model, fmt.Sprintf("%.3f", t.Elapsed.Seconds())}); err != nil {
		return eris.Wrapf(err, "pipeline: write timing row %s", t.ReportID)
	}
	w.Flush()
	return eris.Wrap(w.Error(), "pipeline: flush timing log")
}
