package entity

import "github.com/joseph-ayodele/rxverify/constants"

// VerificationVerdict is the response bundle for a verification request.
type VerificationVerdict struct {
	IsAuthentic     bool                    `json:"is_authentic"`
	Status          constants.VerdictStatus `json:"status"`
	ConfidenceScore float64                 `json:"confidence_score"`
	Message         string                  `json:"message"`
	ExtractedData   *PrescriptionRecord     `json:"extracted_data,omitempty"`
	Anomalies       []string                `json:"anomalies"`
}
