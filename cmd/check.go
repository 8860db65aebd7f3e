package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Gatsby0916/reporteval/internal/truth"
)

var checkTruthPath string

var checkCmd = &cobra.Command{
	Use:   "check <reports-dir>",
	Short: "Cross-check report files, ground truth rows and accuracy artifacts",
	Long:  "Compares the report IDs found in the input directory against the ground truth workbook and the accuracy artifacts already written, and lists every ID that is missing from one of the three.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		tbl, err := loadTruth(s, checkTruthPath)
		if err != nil {
			return err
		}
		if tbl == nil {
			return eris.New("ground truth workbook is required (--truth or truth.path)")
		}

		expected, err := idSetFromDir(args[0], ".txt", "")
		if err != nil {
			return err
		}
		evaluated, err := idSetFromDir(cfg.Output.AccuracyDir, ".txt", "_accuracy")
		if err != nil {
			if !os.IsNotExist(eris.Cause(err)) {
				return err
			}
			evaluated = map[string]bool{}
		}
		inTruth := make(map[string]bool, tbl.Len())
		for _, id := range tbl.IDs() {
			inTruth[id] = true
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Report files found      : %d\n", len(expected))
		fmt.Fprintf(w, "Ground truth rows       : %d\n", len(inTruth))
		fmt.Fprintf(w, "Accuracy artifacts found: %d\n", len(evaluated))

		printDiff(w, "report files without a ground truth row", diff(expected, inTruth))
		printDiff(w, "report files without an accuracy artifact", diff(expected, evaluated))
		printDiff(w, "ground truth rows without a report file", diff(inTruth, expected))
		return nil
	},
}

// idSetFromDir collects canonical report IDs from file names in dir with
// the given extension, trimming an artifact suffix such as "_accuracy".
func idSetFromDir(dir, ext, trim string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}
	ids := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ext)
		if trim != "" {
			base = strings.TrimSuffix(base, trim)
		}
		ids[truth.CanonicalID(base)] = true
	}
	return ids, nil
}

func diff(a, b map[string]bool) []string {
	var out []string
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func printDiff(w io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintf(w, "\nOK: no %s.\n", label)
		return
	}
	fmt.Fprintf(w, "\n%d %s:\n", len(ids), label)
	for _, id := range ids {
		fmt.Fprintf(w, "  - %s\n", id)
	}
}

func init() {
	checkCmd.Flags().StringVar(&checkTruthPath, "truth", "", "ground truth workbook (default from config)")
	rootCmd.AddCommand(checkCmd)
}
