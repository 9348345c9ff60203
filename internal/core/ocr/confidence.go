package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)
	reDose   = regexp.MustCompile(`\b\d+(\.\d+)?\s?(mg|ml|mcg|g|iu)\b`)
	reRxWord = regexp.MustCompile(`\bdr\.|\b(doctor|patient|rx|tablet|capsule|sig)\b`)
)

// heuristicConfidence scores decoded text by how much it looks like a
// prescription.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reDose.MatchString(txtL) {
		score += 0.15
	}
	if reRxWord.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	return clamp01(score)
}

// blendConfidence weights the engine's own confidence higher when present.
func blendConfidence(ocrConf, heurConf float64) float64 {
	if ocrConf > 0 {
		return clamp01(0.7*ocrConf + 0.3*heurConf)
	}
	return heurConf
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
