package constants

// VerdictStatus is the status category carried by every verification verdict.
type VerdictStatus string

// Stable values (returned verbatim to API clients).
const (
	StatusAuthentic  VerdictStatus = "Authentic"
	StatusSuspicious VerdictStatus = "Suspicious"
	StatusFake       VerdictStatus = "Fake"
	StatusError      VerdictStatus = "Error"
)

// Stage names a step of the verification/registration pipeline.
type Stage string

const (
	StageReceived       Stage = "RECEIVED"
	StageExtracting     Stage = "EXTRACTING"
	StageFingerprinting Stage = "FINGERPRINTING"
	StageRegistryCheck  Stage = "REGISTRY_CHECK"
	StageRegistryInsert Stage = "REGISTRY_INSERT"
	StageAnomalyScan    Stage = "ANOMALY_SCAN"
	StageComposed       Stage = "COMPOSED"
	StageReturned       Stage = "RETURNED"
	StageFailed         Stage = "FAILED" // terminal failure
)
