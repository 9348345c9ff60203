// Package anomaly flags structural inconsistencies in an extracted prescription.
package anomaly

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/entity"
)

type Detector struct {
	now func() time.Time
}

// NewDetector returns a detector using now as its clock; nil means time.Now.
func NewDetector(now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{now: now}
}

// Detect runs every check independently and returns the findings in a fixed
// order. The result is never nil.
func (d *Detector) Detect(rec entity.PrescriptionRecord) []string {
	anomalies := make([]string, 0, 5)
	if strings.TrimSpace(rec.DoctorName) == "" {
		anomalies = append(anomalies, constants.AnomalyMissingDoctor)
	}
	if strings.TrimSpace(rec.PatientName) == "" {
		anomalies = append(anomalies, constants.AnomalyMissingPatient)
	}
	if rec.PrescriptionDate.After(d.now()) {
		anomalies = append(anomalies, constants.AnomalyFutureDate)
	}
	// only records built outside parse.Extractor can reach this
	if len(rec.Medications) == 0 {
		anomalies = append(anomalies, constants.AnomalyNoMedications)
	}
	if hasSuspiciousMarker(rec.RawText) {
		anomalies = append(anomalies, constants.AnomalySuspiciousPatterns)
	}
	return anomalies
}

func hasSuspiciousMarker(text string) bool {
	for _, m := range constants.SuspiciousMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
