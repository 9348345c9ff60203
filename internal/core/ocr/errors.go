package ocr

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	ErrEngineUnavailable   = errors.New("ocr engine unavailable")
	ErrInvalidImage        = errors.New("invalid image")
	ErrLanguageDataMissing = errors.New("ocr language data missing")
)

// classify maps a failed tesseract invocation onto the package errors.
func classify(err error, stderr []byte) error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	case strings.Contains(string(stderr), "Failed loading language"),
		strings.Contains(string(stderr), "Error opening data file"):
		return fmt.Errorf("%w: %s", ErrLanguageDataMissing, strings.TrimSpace(truncate(string(stderr), 512)))
	case strings.Contains(string(stderr), "Error in pixRead"),
		strings.Contains(string(stderr), "Image file") && strings.Contains(string(stderr), "cannot be read"):
		return fmt.Errorf("%w: %s", ErrInvalidImage, strings.TrimSpace(truncate(string(stderr), 512)))
	default:
		return fmt.Errorf("tesseract: %w", err)
	}
}
