package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/core/fingerprint"
	"github.com/joseph-ayodele/rxverify/internal/core/ocr"
	"github.com/joseph-ayodele/rxverify/internal/core/parse"
)

type report struct {
	File       string   `json:"file"`
	Method     string   `json:"method"`
	Pages      int      `json:"pages"`
	Confidence float64  `json:"confidence"`
	DurationMS int64    `json:"duration_ms"`
	Warnings   []string `json:"warnings,omitempty"`
	Record     any      `json:"record"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <image-or-pdf>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	timeout := cfg.OCR.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ocrx := ocr.NewExtractor(ocr.Config{
		Tesseract:           cfg.OCR.Tesseract,
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		HeicConverter:       cfg.OCR.HeicConverter,
		ArtifactCacheDir:    cfg.OCR.ArtifactCacheDir,
		PSM:                 cfg.OCR.PSM,
		OEM:                 cfg.OCR.OEM,
		DPI:                 cfg.OCR.DPI,
		MaxPages:            cfg.OCR.MaxPages,
		EnableTSVConfidence: cfg.OCR.EnableTSVConfidence,
	}, logger)

	res, err := ocrx.RecognizeFile(ctx, path)
	if err != nil {
		logger.Error("ocr failed", "file", path, "error", err)
		os.Exit(1)
	}

	rec := parse.NewExtractor().Extract(res.Text)
	rec.Fingerprint = fingerprint.Compute(rec)
	conf := res.Confidence
	rec.OCRConfidence = &conf

	logger.Info("ocr OK",
		"method", res.Method,
		"pages", res.Pages,
		"bytes", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report{
		File:       path,
		Method:     res.Method,
		Pages:      res.Pages,
		Confidence: res.Confidence,
		DurationMS: res.Duration.Milliseconds(),
		Warnings:   res.Warnings,
		Record:     rec,
	}); err != nil {
		logger.Error("encode report", "error", err)
		os.Exit(1)
	}
}
