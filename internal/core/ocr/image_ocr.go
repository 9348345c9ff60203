package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/rxverify/constants"
)

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, warn, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return Result{SourceType: constants.IMAGE, Warnings: warn}, err
	}
	txt = Normalize(txt)

	var ocrConf float64
	if e.cfg.EnableTSVConfidence {
		c, w, err2 := e.tesseractTSVConfidence(ctx, path)
		warn = append(warn, w...)
		if err2 != nil {
			warn = append(warn, err2.Error())
		} else {
			ocrConf = c
		}
	}

	return Result{
		Text:       txt,
		Pages:      1,
		SourceType: constants.IMAGE,
		Method:     "image-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warn,
		Confidence: blendConfidence(ocrConf, heuristicConfidence(txt)),
	}, nil
}

func (e *Extractor) baseArgs(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// tesseractOCR runs: tesseract <file> stdout -l <lang> [...]
func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, e.baseArgs(path)...)
	if err != nil {
		return "", []string{string(errb)}, classify(err, errb)
	}
	return string(out), nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float64, []string, error) {
	args := append(e.baseArgs(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, args...)
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	return meanTSVConfidence(string(out)), nil, nil
}

// tsvConfColumn is the position of "conf" in tesseract's 12-column TSV when
// the header row does not name it.
const tsvConfColumn = 10

// meanTSVConfidence averages the conf column, located from the header row,
// skipping the -1 rows tesseract emits for layout blocks.
func meanTSVConfidence(tsv string) float64 {
	var sum, n float64
	confIdx := tsvConfColumn
	for i, ln := range strings.Split(tsv, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if i == 0 {
			for j, c := range cols {
				if strings.TrimSpace(c) == "conf" {
					confIdx = j
				}
			}
			continue
		}
		if len(cols) <= confIdx {
			continue
		}
		confStr := strings.TrimSpace(cols[confIdx])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / n / 100.0)
}
