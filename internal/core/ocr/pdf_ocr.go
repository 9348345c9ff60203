package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/rxverify/constants"
)

// minTextLayerChars is how much text pdftotext must find before the
// rasterize-and-OCR path is skipped.
const minTextLayerChars = 32

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	res := Result{SourceType: constants.PDF, Language: e.cfg.TesseractLang}

	txt, pages, warns, err := e.pdfToText(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if err == nil && len(strings.Join(strings.Fields(txt), "")) >= minTextLayerChars {
		res.Text = Normalize(txt)
		res.Pages = pages
		res.Method = "pdf-text"
		res.Confidence = blendConfidence(0.95, heuristicConfidence(res.Text))
		return res, nil
	}
	if err != nil {
		e.logger.Debug("pdftotext failed, falling back to ocr", "path", path, "error", err)
	}

	txt, pages, warns, err = e.pdfToOCR(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		return res, err
	}
	res.Text = Normalize(txt)
	res.Pages = pages
	res.Method = "pdf-ocr"
	res.Confidence = heuristicConfidence(res.Text)
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, e.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = string(out)
	// form feed separates pages
	pages = 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return text, pages, nil, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "rx-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, []string{string(errb)}, fmt.Errorf("%w: pdftoppm: %v", ErrInvalidImage, err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("%w: no pages rendered", ErrInvalidImage)
	}

	var b strings.Builder
	var firstErr error
	for _, img := range matches {
		txt, w, err := e.tesseractOCR(ctx, img)
		warnings = append(warnings, w...)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			warnings = append(warnings, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(txt)
	}
	if b.Len() == 0 && firstErr != nil {
		return "", len(matches), warnings, firstErr
	}
	return b.String(), len(matches), warnings, nil
}
