// Package fingerprint derives the registry identity of a prescription.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// DateLayout is the date-only form used in the canonical string.
const DateLayout = "2006-01-02"

// Canonical returns "doctor|patient|yyyy-mm-dd|med1,med2,...". Raw text,
// dosage and instructions are not part of a prescription's identity.
func Canonical(rec entity.PrescriptionRecord) string {
	return strings.Join([]string{
		rec.DoctorName,
		rec.PatientName,
		rec.PrescriptionDate.Format(DateLayout),
		strings.Join(rec.Medications, ","),
	}, "|")
}

// Compute returns the lowercase hex SHA-256 of Canonical(rec).
func Compute(rec entity.PrescriptionRecord) string {
	sum := sha256.Sum256([]byte(Canonical(rec)))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s looks like a fingerprint produced by Compute.
func Valid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
