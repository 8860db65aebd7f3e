package correct

import (
	"strconv"
	"strings"
	"time"
)

// ISODate is the canonical output format for date fields.
const ISODate = "2006-01-02"

var textualLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2006/01/02",
}

// ParseDate parses the date formats seen in clinical report exports.
// Numeric day/month/year dates are read day-first; when the first
// component cannot be a day the month-first reading is used instead.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseNumericDate(s); ok {
		return t, true
	}
	for _, layout := range textualLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t in the canonical ISO form.
func FormatDate(t time.Time) string {
	return t.Format(ISODate)
}

func parseNumericDate(s string) (time.Time, bool) {
	sep := ""
	switch {
	case strings.Contains(s, "/"):
		sep = "/"
	case strings.Contains(s, "-"):
		sep = "-"
	case strings.Contains(s, "."):
		sep = "."
	default:
		return time.Time{}, false
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var day, month, year int
	switch {
	case len(parts[0]) == 4:
		// year-first
		year, month, day = nums[0], nums[1], nums[2]
	case nums[0] > 12 && nums[1] <= 12:
		day, month, year = nums[0], nums[1], nums[2]
	case nums[1] > 12 && nums[0] <= 12:
		month, day, year = nums[0], nums[1], nums[2]
	default:
		// Ambiguous: read day-first.
		day, month, year = nums[0], nums[1], nums[2]
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}
