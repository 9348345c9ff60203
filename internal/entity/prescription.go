package entity

import (
	"time"
)

// PrescriptionRecord is the structured candidate produced from recognized text.
type PrescriptionRecord struct {
	DoctorName       string    `json:"doctor_name"`
	PatientName      string    `json:"patient_name"`
	PrescriptionDate time.Time `json:"prescription_date"`
	Medications      []string  `json:"medications"`
	Dosage           string    `json:"dosage"`
	Instructions     string    `json:"instructions"`
	RawText          string    `json:"raw_text"`
	Fingerprint      string    `json:"fingerprint"`
	OCRConfidence    *float64  `json:"ocr_confidence,omitempty"`
}

// RegistrationResult is returned after a prescription is written to the registry.
type RegistrationResult struct {
	Fingerprint  string             `json:"fingerprint"`
	Prescription PrescriptionRecord `json:"prescription"`
}
