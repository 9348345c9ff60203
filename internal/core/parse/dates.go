package parse

import (
	"strings"
	"time"
)

// explicitLayouts are tried first and in this order, so an ambiguous numeric
// date such as 01/02/2020 reads month-first (2 January 2020).
var explicitLayouts = []string{
	"01/02/2006",       // MM/dd/yyyy
	"02/01/2006",       // dd/MM/yyyy
	"2006-01-02",       // yyyy-MM-dd
	"Jan 02, 2006",     // MMM dd, yyyy
	"02 Jan 2006",      // dd MMM yyyy
	"January 02, 2006", // MMMM dd, yyyy
}

// fallbackLayouts cover the looser spellings OCR tends to produce.
var fallbackLayouts = []string{
	"1/2/2006",
	"2/1/2006",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"01-02-2006",
	"1-2-2006",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

var dateLabels = []string{"date:", "dated:", "prescribed:"}

// parseDate reads a whole line as a calendar date. A leading label such as
// "Date:" is ignored.
func parseDate(line string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(line)
	for _, l := range dateLabels {
		if len(s) >= len(l) && strings.EqualFold(s[:len(l)], l) {
			s = strings.TrimSpace(s[len(l):])
			break
		}
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, layouts := range [][]string{explicitLayouts, fallbackLayouts} {
		for _, layout := range layouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
