// Package parse turns recognized prescription text into a structured record.
package parse

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/entity"
)

var (
	doctorPrefixes      = []string{"dr.", "doctor"}
	patientPrefixes     = []string{"patient:", "name:"}
	dosageMarkers       = []string{"dosage", "dose"}
	instructionsMarkers = []string{"instructions", "directions"}
)

// Extractor is a line-oriented field extractor. It never fails: fields it
// cannot find are filled with placeholders.
type Extractor struct {
	now func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the clock used for the default prescription date and
// the location dates are parsed in.
func WithClock(now func() time.Time) Option {
	return func(x *Extractor) {
		if now != nil {
			x.now = now
		}
	}
}

func NewExtractor(opts ...Option) *Extractor {
	x := &Extractor{now: time.Now}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Extract scans text line by line. Scalar fields resolve to the last matching
// line; medications keep every matching line in document order.
func (x *Extractor) Extract(text string) entity.PrescriptionRecord {
	now := x.now()
	rec := entity.PrescriptionRecord{RawText: text}
	if strings.TrimSpace(text) == "" {
		rec.RawText = ""
	}

	var (
		medications []string
		date        time.Time
		dateFound   bool
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if containsAny(line, doctorPrefixes) {
			rec.DoctorName = extractDoctor(line)
		}
		if containsAny(line, patientPrefixes) {
			rec.PatientName = strings.TrimSpace(afterPrefix(line, patientPrefixes))
		}
		if d, ok := parseDate(line, now.Location()); ok {
			date, dateFound = d, true
		}
		if isMedicationLine(line) {
			medications = append(medications, line)
		}
		if containsAny(line, dosageMarkers) {
			rec.Dosage = afterColon(line)
		}
		if containsAny(line, instructionsMarkers) {
			rec.Instructions = afterColon(line)
		}
	}

	if strings.TrimSpace(rec.DoctorName) == "" {
		rec.DoctorName = constants.UnknownDoctor
	}
	if strings.TrimSpace(rec.PatientName) == "" {
		rec.PatientName = constants.UnknownPatient
	}
	if len(medications) == 0 {
		medications = []string{constants.MedicationNotDetected}
	}
	rec.Medications = medications
	if !dateFound {
		date = now
	}
	rec.PrescriptionDate = date
	return rec
}

// extractDoctor takes the remainder after the first matching prefix, drops a
// leading colon and cuts at the first comma ("Dr. Jane Roe, MD" -> "Jane Roe").
func extractDoctor(line string) string {
	v := strings.TrimSpace(afterPrefix(line, doctorPrefixes))
	v = strings.TrimSpace(strings.TrimPrefix(v, ":"))
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func isMedicationLine(line string) bool {
	return containsAny(line, constants.MedicationIndicators)
}

func afterColon(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// afterPrefix returns what follows the first prefix (tried in order) found in
// line, or line itself when none match.
func afterPrefix(line string, prefixes []string) string {
	for _, p := range prefixes {
		if i := indexFold(line, p); i >= 0 {
			return line[i+len(p):]
		}
	}
	return line
}

func containsAny(line string, needles []string) bool {
	for _, n := range needles {
		if indexFold(line, n) >= 0 {
			return true
		}
	}
	return false
}

// indexFold is a case-insensitive strings.Index for ASCII needles. Offsets
// refer to s itself, so slicing after a match is safe for any input.
func indexFold(s, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], needle) {
			return i
		}
	}
	return -1
}
