package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/audit"
	"github.com/joseph-ayodele/rxverify/internal/core/ocr"
	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/registry"
)

const sampleText = `Dr. Alice Smith, MD
Patient: John Doe
Date: 03/15/2024
Amoxicillin 500mg
Dosage: 2 daily
Instructions: take with food`

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRecognizer struct {
	text string
	conf float64
	err  error
}

func (f fakeRecognizer) Recognize(context.Context, []byte) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Confidence: f.conf, Method: "image-ocr"}, nil
}

type brokenRegistry struct {
	lookupErr error
	insertErr error
	panicMsg  string
}

func (b brokenRegistry) ExistsAndValid(context.Context, string) (bool, error) {
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	return false, b.lookupErr
}

func (b brokenRegistry) Insert(context.Context, entity.RegistryEntry) (string, error) {
	return "", b.insertErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func newProcessor(rec ocr.Recognizer, reg registry.Registry, opts ...Option) *Processor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewProcessor(rec, reg, logger, opts...)
}

func TestVerifyUnregistered(t *testing.T) {
	p := newProcessor(fakeRecognizer{text: sampleText, conf: 0.9}, registry.NewMemory())

	v := p.Verify(context.Background(), []byte("img"))
	if v.Status != constants.StatusFake || v.IsAuthentic {
		t.Fatalf("status = %s authentic=%v, want Fake", v.Status, v.IsAuthentic)
	}
	if v.ConfidenceScore != 0 {
		t.Errorf("confidence = %v, want 0", v.ConfidenceScore)
	}
	if v.Message != "Prescription not found in registry" {
		t.Errorf("message = %q", v.Message)
	}
	if v.Anomalies == nil || len(v.Anomalies) != 0 {
		t.Errorf("anomalies = %#v, want empty non-nil", v.Anomalies)
	}
	if v.ExtractedData == nil {
		t.Fatal("ExtractedData is nil")
	}
	if v.ExtractedData.DoctorName != "Alice Smith" || v.ExtractedData.PatientName != "John Doe" {
		t.Errorf("extracted doctor=%q patient=%q", v.ExtractedData.DoctorName, v.ExtractedData.PatientName)
	}
	if v.ExtractedData.OCRConfidence == nil || *v.ExtractedData.OCRConfidence != 0.9 {
		t.Errorf("OCRConfidence = %v, want 0.9", v.ExtractedData.OCRConfidence)
	}
}

func TestRegisterThenVerify(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	p := newProcessor(fakeRecognizer{text: sampleText, conf: 0.9}, registry.NewMemory(), WithPublisher(pub))

	res, err := p.Register(ctx, []byte("img"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(res.Fingerprint) != 64 || res.Fingerprint != res.Prescription.Fingerprint {
		t.Errorf("fingerprint %q does not match record %q", res.Fingerprint, res.Prescription.Fingerprint)
	}

	v := p.Verify(ctx, []byte("img"))
	if v.Status != constants.StatusAuthentic || !v.IsAuthentic {
		t.Fatalf("status = %s, want Authentic", v.Status)
	}
	if v.ConfidenceScore != 0.7 {
		t.Errorf("confidence = %v, want 0.7", v.ConfidenceScore)
	}
	if v.Message != "Prescription verified as authentic" {
		t.Errorf("message = %q", v.Message)
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if pub.events[0].Type != audit.EventRegistered || pub.events[1].Type != audit.EventVerified {
		t.Errorf("event types = %s, %s", pub.events[0].Type, pub.events[1].Type)
	}
	if pub.events[1].Status != string(constants.StatusAuthentic) {
		t.Errorf("verified event status = %q", pub.events[1].Status)
	}
}

func TestVerifySuspiciousRegistered(t *testing.T) {
	ctx := context.Background()
	text := sampleText + "\nTEST COPY"
	p := newProcessor(fakeRecognizer{text: text, conf: 0.9}, registry.NewMemory())

	if _, err := p.Register(ctx, nil); err != nil {
		t.Fatal(err)
	}
	v := p.Verify(ctx, nil)
	if v.Status != constants.StatusSuspicious || v.IsAuthentic {
		t.Fatalf("status = %s, want Suspicious", v.Status)
	}
	if v.ConfidenceScore != 0.6 {
		t.Errorf("confidence = %v, want 0.6", v.ConfidenceScore)
	}
	want := "Prescription shows suspicious patterns: " + constants.AnomalySuspiciousPatterns
	if v.Message != want {
		t.Errorf("message = %q, want %q", v.Message, want)
	}
}

func TestVerifyRecognitionFailure(t *testing.T) {
	p := newProcessor(fakeRecognizer{err: errors.New("engine exploded")}, registry.NewMemory())

	v := p.Verify(context.Background(), []byte("img"))
	if v.Status != constants.StatusFake {
		t.Fatalf("status = %s, want Fake", v.Status)
	}
	rec := v.ExtractedData
	if rec == nil {
		t.Fatal("ExtractedData is nil")
	}
	if rec.RawText != "OCR Error: engine exploded" {
		t.Errorf("RawText = %q", rec.RawText)
	}
	if rec.DoctorName != constants.UnknownDoctor || rec.PatientName != constants.UnknownPatient {
		t.Errorf("placeholders not applied: %q / %q", rec.DoctorName, rec.PatientName)
	}
	if len(rec.Medications) != 1 || rec.Medications[0] != constants.MedicationNotDetected {
		t.Errorf("medications = %v", rec.Medications)
	}
	if !rec.PrescriptionDate.Equal(fixedNow) {
		t.Errorf("date = %v, want clock time", rec.PrescriptionDate)
	}
	if rec.OCRConfidence != nil {
		t.Errorf("OCRConfidence = %v, want nil", *rec.OCRConfidence)
	}
}

func TestVerifyProcessingErrors(t *testing.T) {
	tests := []struct {
		name    string
		reg     brokenRegistry
		message string
	}{
		{"lookup error", brokenRegistry{lookupErr: errors.New("db down")}, "Error processing prescription: db down"},
		{"panic", brokenRegistry{panicMsg: "boom"}, "Error processing prescription: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newProcessor(fakeRecognizer{text: sampleText}, tc.reg)
			v := p.Verify(context.Background(), nil)
			if v.Status != constants.StatusError || v.IsAuthentic || v.ConfidenceScore != 0 {
				t.Errorf("verdict = %+v, want Error/false/0", v)
			}
			if v.Message != tc.message {
				t.Errorf("message = %q, want %q", v.Message, tc.message)
			}
			if len(v.Anomalies) != 1 || v.Anomalies[0] != "Processing error" {
				t.Errorf("anomalies = %v", v.Anomalies)
			}
		})
	}
}

func TestRegisterInsertError(t *testing.T) {
	p := newProcessor(fakeRecognizer{text: sampleText}, brokenRegistry{insertErr: errors.New("disk full")})
	_, err := p.Register(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want wrapped insert error", err)
	}
}

func TestRegisterRecordRecomputesFingerprint(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	p := newProcessor(fakeRecognizer{text: sampleText}, reg)

	extracted := p.Extract(ctx, nil)
	manual := entity.PrescriptionRecord{
		DoctorName:       extracted.DoctorName,
		PatientName:      extracted.PatientName,
		PrescriptionDate: extracted.PrescriptionDate,
		Medications:      extracted.Medications,
		Fingerprint:      "stale",
	}
	res, err := p.RegisterRecord(ctx, manual)
	if err != nil {
		t.Fatalf("RegisterRecord: %v", err)
	}
	if res.Fingerprint != extracted.Fingerprint {
		t.Errorf("fingerprint = %s, want %s", res.Fingerprint, extracted.Fingerprint)
	}
	if ok, err := p.Lookup(ctx, res.Fingerprint); err != nil || !ok {
		t.Errorf("Lookup = %v, %v", ok, err)
	}
	if _, err := p.Lookup(ctx, "not-hex"); err == nil {
		t.Error("Lookup accepted malformed fingerprint")
	}
}

func TestPublishFailureDoesNotAffectVerdict(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unreachable")}
	p := newProcessor(fakeRecognizer{text: sampleText, conf: 0.3}, registry.NewMemory(), WithPublisher(pub))
	v := p.Verify(context.Background(), nil)
	if v.Status != constants.StatusFake {
		t.Errorf("status = %s, want Fake", v.Status)
	}
}
