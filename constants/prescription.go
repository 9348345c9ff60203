package constants

// Placeholders used when the extractor cannot find a field.
const (
	UnknownDoctor         = "Dr. Unknown"
	UnknownPatient        = "Patient Unknown"
	MedicationNotDetected = "Medication not detected"
)

// Anomaly descriptions, reported in this order.
const (
	AnomalyMissingDoctor      = "Missing doctor name"
	AnomalyMissingPatient     = "Missing patient name"
	AnomalyFutureDate         = "Future prescription date"
	AnomalyNoMedications      = "No medications listed"
	AnomalySuspiciousPatterns = "Suspicious text patterns detected"
	AnomalyProcessingError    = "Processing error"
)

// MedicationIndicators mark a line as a medication entry (matched lowercase).
var MedicationIndicators = []string{"mg", "ml", "tablet", "capsule", "syrup", "injection", "cream", "ointment"}

// SuspiciousMarkers are matched case-sensitively against the raw OCR text.
var SuspiciousMarkers = []string{"FAKE", "TEST"}

// Roles carried in bearer tokens.
const (
	RoleIssuer   = "issuer"
	RoleVerifier = "verifier"
)

// OCRErrorPrefix prefixes the raw text of a record built after an OCR failure.
const OCRErrorPrefix = "OCR Error: "

// LowConfidenceThreshold flags OCR results for manual review.
const LowConfidenceThreshold = 0.6
