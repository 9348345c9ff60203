// Package verdict turns a registry lookup and an anomaly list into a verdict.
package verdict

import (
	"strings"

	"github.com/joseph-ayodele/rxverify/constants"
)

// Scores are kept in tenths so that 0.7 - 2*0.1 is exactly 0.5.
const (
	baseTenths      = 7
	penaltyPerTenth = 1
)

// Result is the composed part of a verification verdict.
type Result struct {
	IsAuthentic     bool
	Status          constants.VerdictStatus
	ConfidenceScore float64
	Message         string
}

// Compose derives status, confidence and message. IsAuthentic is true exactly
// when Status is Authentic.
func Compose(registryValid bool, anomalies []string) Result {
	var r Result
	switch {
	case registryValid && len(anomalies) == 0:
		r.Status = constants.StatusAuthentic
		r.Message = "Prescription verified as authentic"
	case len(anomalies) > 0:
		r.Status = constants.StatusSuspicious
		r.Message = "Prescription shows suspicious patterns: " + strings.Join(anomalies, ", ")
	default:
		r.Status = constants.StatusFake
		r.Message = "Prescription not found in registry"
	}
	r.IsAuthentic = r.Status == constants.StatusAuthentic
	r.ConfidenceScore = score(registryValid, len(anomalies))
	return r
}

func score(registryValid bool, anomalies int) float64 {
	tenths := 0
	if registryValid {
		tenths = baseTenths
	}
	tenths -= penaltyPerTenth * anomalies
	if tenths < 0 {
		tenths = 0
	}
	if tenths > 10 {
		tenths = 10
	}
	return float64(tenths) / 10
}
