package parse

import (
	"reflect"
	"testing"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewExtractor(WithClock(func() time.Time { return fixedNow }))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtract_BasicPrescription(t *testing.T) {
	text := "Dr. Sarah Johnson\nPatient: John Doe\n01/02/2020\nAmoxicillin 500mg"
	rec := newTestExtractor().Extract(text)

	if rec.DoctorName != "Sarah Johnson" {
		t.Errorf("doctor = %q, want %q", rec.DoctorName, "Sarah Johnson")
	}
	if rec.PatientName != "John Doe" {
		t.Errorf("patient = %q, want %q", rec.PatientName, "John Doe")
	}
	if !rec.PrescriptionDate.Equal(day(2020, time.January, 2)) {
		t.Errorf("date = %v, want 2020-01-02", rec.PrescriptionDate)
	}
	if want := []string{"Amoxicillin 500mg"}; !reflect.DeepEqual(rec.Medications, want) {
		t.Errorf("medications = %v, want %v", rec.Medications, want)
	}
	if rec.RawText != text {
		t.Errorf("raw text was modified: %q", rec.RawText)
	}
	if rec.Fingerprint != "" || rec.OCRConfidence != nil {
		t.Errorf("extractor must not set fingerprint or confidence")
	}
}

func TestExtract_EmptyInputYieldsDefaults(t *testing.T) {
	for _, in := range []string{"", "   \n\t\n  "} {
		rec := newTestExtractor().Extract(in)
		if rec.DoctorName != constants.UnknownDoctor {
			t.Errorf("doctor = %q", rec.DoctorName)
		}
		if rec.PatientName != constants.UnknownPatient {
			t.Errorf("patient = %q", rec.PatientName)
		}
		if want := []string{constants.MedicationNotDetected}; !reflect.DeepEqual(rec.Medications, want) {
			t.Errorf("medications = %v, want %v", rec.Medications, want)
		}
		if !rec.PrescriptionDate.Equal(fixedNow) {
			t.Errorf("date = %v, want clock time", rec.PrescriptionDate)
		}
		if rec.RawText != "" {
			t.Errorf("raw text = %q, want empty", rec.RawText)
		}
	}
}

func TestExtract_LastLineWinsForScalars(t *testing.T) {
	text := `Dr. First Doctor
Patient: Alice
2021-05-01
Dr. Second Doctor, MD
Name: Bob
2022-06-02
Dosage: 1 daily
Dosage: 2 daily
Instructions: with water
Directions: after meals`
	rec := newTestExtractor().Extract(text)

	if rec.DoctorName != "Second Doctor" {
		t.Errorf("doctor = %q", rec.DoctorName)
	}
	if rec.PatientName != "Bob" {
		t.Errorf("patient = %q", rec.PatientName)
	}
	if !rec.PrescriptionDate.Equal(day(2022, time.June, 2)) {
		t.Errorf("date = %v", rec.PrescriptionDate)
	}
	if rec.Dosage != "2 daily" {
		t.Errorf("dosage = %q", rec.Dosage)
	}
	if rec.Instructions != "after meals" {
		t.Errorf("instructions = %q", rec.Instructions)
	}
}

func TestExtract_MedicationsKeepOrderAndDuplicates(t *testing.T) {
	text := "Ibuprofen 200mg\nCough syrup 10 ML\nibuprofen 200mg\nHydrocortisone cream\nnothing here"
	rec := newTestExtractor().Extract(text)
	want := []string{"Ibuprofen 200mg", "Cough syrup 10 ML", "ibuprofen 200mg", "Hydrocortisone cream"}
	if !reflect.DeepEqual(rec.Medications, want) {
		t.Fatalf("medications = %v, want %v", rec.Medications, want)
	}
}

func TestExtract_DoctorVariants(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Dr. Jane Roe", "Jane Roe"},
		{"DR. JANE ROE, MBBS", "JANE ROE"},
		{"Doctor: Ada Smith", "Ada Smith"},
		{"Prescribing doctor: Ada Smith, Cardiology", "Ada Smith"},
		{"Dr.", constants.UnknownDoctor},
	}
	for _, tt := range tests {
		rec := newTestExtractor().Extract(tt.line)
		if rec.DoctorName != tt.want {
			t.Errorf("Extract(%q).DoctorName = %q, want %q", tt.line, rec.DoctorName, tt.want)
		}
	}
}

func TestExtract_PatientKeepsTextAfterLabel(t *testing.T) {
	rec := newTestExtractor().Extract("Patient Name: Doe, John")
	if rec.PatientName != "Doe, John" {
		t.Fatalf("patient = %q", rec.PatientName)
	}
}

func TestExtract_DosageWithoutColonKeepsLine(t *testing.T) {
	rec := newTestExtractor().Extract("take one dose nightly")
	if rec.Dosage != "take one dose nightly" {
		t.Fatalf("dosage = %q", rec.Dosage)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"01/02/2020", day(2020, time.January, 2), true},
		{"13/02/2020", day(2020, time.February, 13), true},
		{"2020-12-31", day(2020, time.December, 31), true},
		{"Mar 05, 2021", day(2021, time.March, 5), true},
		{"05 Mar 2021", day(2021, time.March, 5), true},
		{"March 05, 2021", day(2021, time.March, 5), true},
		{"March 5, 2021", day(2021, time.March, 5), true},
		{"Date: 07/04/2019", day(2019, time.July, 4), true},
		{"dated: 2019/07/04", day(2019, time.July, 4), true},
		{"1/9/2023", day(2023, time.January, 9), true},
		{"Amoxicillin 500mg", time.Time{}, false},
		{"Patient: John Doe", time.Time{}, false},
		{"Date:", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.in, time.UTC)
		if ok != tt.ok {
			t.Errorf("parseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIndexFold(t *testing.T) {
	if got := indexFold("Prescribed by DR. Who", "dr."); got != 14 {
		t.Errorf("indexFold = %d, want 14", got)
	}
	if got := indexFold("abc", "abcd"); got != -1 {
		t.Errorf("indexFold = %d, want -1", got)
	}
}
