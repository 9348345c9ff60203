// Package ocr wraps the Tesseract command line (plus poppler and a HEIC
// converter) behind a bytes-in, text-out recognizer.
package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
)

// MinImageBytes is the smallest upload treated as a real image.
const MinImageBytes = 100

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	HeicConverter       string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	ArtifactCacheDir string
}

type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float64 // 0..1
}

// Recognizer turns an uploaded image into text. Extractor is the production
// implementation.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner (tests use a fake).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Recognize runs OCR over an uploaded image or PDF held in memory.
func (e *Extractor) Recognize(ctx context.Context, image []byte) (Result, error) {
	if len(image) < MinImageBytes {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrInvalidImage, len(image))
	}
	kind := DetectFormat(image)
	if kind == "" {
		return Result{}, fmt.Errorf("%w: unrecognized content", ErrInvalidImage)
	}
	if err := e.checkTessdata(); err != nil {
		return Result{}, err
	}

	sum := sha256.Sum256(image)
	ctx = WithContentHash(ctx, hex.EncodeToString(sum[:]))

	f, err := os.CreateTemp("", "rx-upload-*."+kind)
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			e.logger.Warn("failed to remove temp upload", "path", path, "error", rmErr)
		}
	}()
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}
	return e.RecognizeFile(ctx, path)
}

// RecognizeFile picks a strategy based on file extension.
func (e *Extractor) RecognizeFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting ocr extraction", "path", path, "ext", ext)

	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		var warns []string
		if constants.IsHEICExt(ext) {
			hashHex, _ := contentHashFromCtx(ctx)
			out, w, cleanup, err := convertHEICtoPNG(ctx, e.runner, e.logger, e.cfg.HeicConverter, path, e.cfg.ArtifactCacheDir, hashHex)
			warns = append(warns, w...)
			if cleanup != nil {
				defer cleanup()
			}
			if err != nil {
				e.logger.Error("heic conversion failed", "path", path, "error", err)
				return Result{SourceType: constants.IMAGE, Warnings: warns}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
			path = out
		}
		res, err := e.extractImage(ctx, path)
		res.Duration = time.Since(start)
		res.Warnings = append(res.Warnings, warns...)
		return res, err
	default:
		e.logger.Error("unsupported ocr extension", "extension", ext)
		return Result{}, fmt.Errorf("%w: unsupported extension %q", ErrInvalidImage, ext)
	}
}

func (e *Extractor) checkTessdata() error {
	if e.cfg.TessdataDir == "" {
		return nil
	}
	st, err := os.Stat(e.cfg.TessdataDir)
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%w: tessdata directory %q not found", ErrLanguageDataMissing, e.cfg.TessdataDir)
	}
	return nil
}

type boundedRecognizer struct {
	inner   Recognizer
	timeout time.Duration
}

// Bounded caps every Recognize call at timeout. A non-positive timeout
// returns r unchanged.
func Bounded(r Recognizer, timeout time.Duration) Recognizer {
	if timeout <= 0 {
		return r
	}
	return boundedRecognizer{inner: r, timeout: timeout}
}

func (b boundedRecognizer) Recognize(ctx context.Context, image []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Recognize(ctx, image)
}
