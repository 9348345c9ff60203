// Package pipeline runs an uploaded prescription image through recognition,
// extraction, fingerprinting, registry lookup, anomaly scan and verdict
// composition.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/audit"
	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/core/anomaly"
	"github.com/joseph-ayodele/rxverify/internal/core/fingerprint"
	"github.com/joseph-ayodele/rxverify/internal/core/ocr"
	"github.com/joseph-ayodele/rxverify/internal/core/parse"
	"github.com/joseph-ayodele/rxverify/internal/core/verdict"
	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/registry"
)

const defaultAuditTimeout = 5 * time.Second

// Processor coordinates the verification and registration flows. It holds no
// per-request state and is safe for concurrent use as long as its registry is.
type Processor struct {
	logger       *slog.Logger
	recognizer   ocr.Recognizer
	registry     registry.Registry
	publisher    audit.Publisher
	now          func() time.Time
	auditTimeout time.Duration

	parser   *parse.Extractor
	detector *anomaly.Detector
}

type Option func(*Processor)

// WithClock sets the clock shared by extraction (default date) and anomaly
// detection (future-date check).
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPublisher sends an audit event for every registration and verification.
func WithPublisher(pub audit.Publisher) Option {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func WithAuditTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.auditTimeout = d
		}
	}
}

func NewProcessor(recognizer ocr.Recognizer, reg registry.Registry, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:       logger,
		recognizer:   recognizer,
		registry:     reg,
		publisher:    audit.NopPublisher{},
		now:          time.Now,
		auditTimeout: defaultAuditTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	p.parser = parse.NewExtractor(parse.WithClock(p.now))
	p.detector = anomaly.NewDetector(p.now)
	return p
}

// Verify never returns an error: recognition failures degrade to a
// placeholder record, and registry or scoring failures yield an Error verdict.
func (p *Processor) Verify(ctx context.Context, image []byte) (v entity.VerificationVerdict) {
	log := p.requestLogger(ctx)
	stage(log, constants.StageReceived, "bytes", len(image))

	defer func() {
		if r := recover(); r != nil {
			v = p.fail(log, fmt.Errorf("%v", r))
		}
	}()

	rec := p.extract(ctx, log, image)

	stage(log, constants.StageRegistryCheck, "fingerprint", rec.Fingerprint)
	valid, err := p.registry.ExistsAndValid(ctx, rec.Fingerprint)
	if err != nil {
		return p.fail(log, err)
	}

	stage(log, constants.StageAnomalyScan)
	anomalies := p.detector.Detect(rec)

	res := verdict.Compose(valid, anomalies)
	stage(log, constants.StageComposed,
		"status", res.Status,
		"confidence", res.ConfidenceScore,
		"anomalies", len(anomalies),
	)
	v = entity.VerificationVerdict{
		IsAuthentic:     res.IsAuthentic,
		Status:          res.Status,
		ConfidenceScore: res.ConfidenceScore,
		Message:         res.Message,
		ExtractedData:   &rec,
		Anomalies:       anomalies,
	}

	p.publish(ctx, log, audit.Event{
		Type:            audit.EventVerified,
		Fingerprint:     rec.Fingerprint,
		Status:          string(res.Status),
		ConfidenceScore: res.ConfidenceScore,
		Anomalies:       anomalies,
	})
	stage(log, constants.StageReturned, "status", res.Status)
	return v
}

// Register extracts the record from image and appends it to the registry.
// Only a registry failure is returned; recognition failures register the
// placeholder record like any other.
func (p *Processor) Register(ctx context.Context, image []byte) (entity.RegistrationResult, error) {
	log := p.requestLogger(ctx)
	stage(log, constants.StageReceived, "bytes", len(image))
	rec := p.extract(ctx, log, image)
	return p.insert(ctx, log, rec)
}

// RegisterRecord registers a record issued without an image. The fingerprint
// is always recomputed.
func (p *Processor) RegisterRecord(ctx context.Context, rec entity.PrescriptionRecord) (entity.RegistrationResult, error) {
	log := p.requestLogger(ctx)
	stage(log, constants.StageReceived, "source", "manual")
	stage(log, constants.StageFingerprinting)
	rec.Fingerprint = fingerprint.Compute(rec)
	return p.insert(ctx, log, rec)
}

// Extract runs recognition, field extraction and fingerprinting only.
func (p *Processor) Extract(ctx context.Context, image []byte) entity.PrescriptionRecord {
	log := p.requestLogger(ctx)
	stage(log, constants.StageReceived, "bytes", len(image))
	rec := p.extract(ctx, log, image)
	stage(log, constants.StageReturned)
	return rec
}

// Lookup reports whether fp is registered and valid.
func (p *Processor) Lookup(ctx context.Context, fp string) (bool, error) {
	if !fingerprint.Valid(fp) {
		return false, fmt.Errorf("%w: invalid fingerprint %q", common.ErrInvalidInput, fp)
	}
	return p.registry.ExistsAndValid(ctx, fp)
}

func (p *Processor) extract(ctx context.Context, log *slog.Logger, image []byte) entity.PrescriptionRecord {
	stage(log, constants.StageExtracting)

	var rec entity.PrescriptionRecord
	res, err := p.recognizer.Recognize(ctx, image)
	if err != nil {
		log.Warn("recognition failed; using placeholder record", "error", err)
		rec = p.parser.Extract("")
		rec.RawText = constants.OCRErrorPrefix + err.Error()
	} else {
		rec = p.parser.Extract(res.Text)
		conf := res.Confidence
		rec.OCRConfidence = &conf
		if conf < constants.LowConfidenceThreshold {
			log.Warn("ocr confidence low; needs review", "confidence", conf, "method", res.Method)
		}
	}

	stage(log, constants.StageFingerprinting)
	rec.Fingerprint = fingerprint.Compute(rec)
	return rec
}

func (p *Processor) insert(ctx context.Context, log *slog.Logger, rec entity.PrescriptionRecord) (entity.RegistrationResult, error) {
	stage(log, constants.StageRegistryInsert, "fingerprint", rec.Fingerprint)
	fp, err := p.registry.Insert(ctx, entity.NewRegistryEntry(rec))
	if err != nil {
		stage(log, constants.StageFailed, "error", err)
		return entity.RegistrationResult{}, common.WrapError(err, "register prescription")
	}

	p.publish(ctx, log, audit.Event{Type: audit.EventRegistered, Fingerprint: fp})
	stage(log, constants.StageReturned, "fingerprint", fp)
	return entity.RegistrationResult{Fingerprint: fp, Prescription: rec}, nil
}

func (p *Processor) fail(log *slog.Logger, err error) entity.VerificationVerdict {
	log.Error("verification failed", "stage", constants.StageFailed, "error", err)
	return entity.VerificationVerdict{
		Status:    constants.StatusError,
		Message:   "Error processing prescription: " + err.Error(),
		Anomalies: []string{constants.AnomalyProcessingError},
	}
}

// publish outlives the request context; failures are logged only.
func (p *Processor) publish(ctx context.Context, log *slog.Logger, ev audit.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.auditTimeout)
	defer cancel()
	if err := p.publisher.Publish(ctx, ev); err != nil {
		log.Warn("audit publish failed", "event_type", ev.Type, "error", err)
	}
}

func (p *Processor) requestLogger(ctx context.Context) *slog.Logger {
	log := p.logger
	if id := common.RequestIDFromContext(ctx); id != "" {
		log = log.With("request_id", id)
	}
	if sub := common.SubjectFromContext(ctx); sub != "" {
		log = log.With("subject", sub)
	}
	return log
}

func stage(log *slog.Logger, s constants.Stage, args ...any) {
	log.Debug("pipeline stage", append([]any{"stage", s}, args...)...)
}
