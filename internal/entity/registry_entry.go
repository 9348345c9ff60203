package entity

import (
	"time"

	"github.com/google/uuid"
)

// RegistryEntry represents one issued prescription held by a registry backend.
type RegistryEntry struct {
	ID               uuid.UUID `json:"id"`
	Fingerprint      string    `json:"fingerprint"`
	DoctorName       string    `json:"doctor_name"`
	PatientName      string    `json:"patient_name"`
	PrescriptionDate time.Time `json:"prescription_date"`
	RegisteredAt     time.Time `json:"registered_at"`
	Valid            bool      `json:"valid"`
}

// NewRegistryEntry builds an entry for rec; Insert stamps RegisteredAt and Valid.
func NewRegistryEntry(rec PrescriptionRecord) RegistryEntry {
	return RegistryEntry{
		ID:               uuid.New(),
		Fingerprint:      rec.Fingerprint,
		DoctorName:       rec.DoctorName,
		PatientName:      rec.PatientName,
		PrescriptionDate: rec.PrescriptionDate,
	}
}

// Stamped returns a copy marked valid and registered at now. A nil ID is filled.
func (e RegistryEntry) Stamped(now time.Time) RegistryEntry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Valid = true
	e.RegisteredAt = now.UTC()
	return e
}
