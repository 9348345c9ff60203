package ocr

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EngineInfo describes the local OCR installation.
type EngineInfo struct {
	Binary         string   `json:"binary" yaml:"binary"`
	Version        string   `json:"version" yaml:"version"`
	Languages      []string `json:"languages" yaml:"languages"`
	Language       string   `json:"language" yaml:"language"`
	TessdataDir    string   `json:"tessdata_dir" yaml:"tessdata_dir"`
	TessdataExists bool     `json:"tessdata_exists" yaml:"tessdata_exists"`
	TessdataFiles  []string `json:"tessdata_files" yaml:"tessdata_files"`
	EngineOK       bool     `json:"engine_ok" yaml:"engine_ok"`
	EngineError    string   `json:"engine_error,omitempty" yaml:"engine_error,omitempty"`
}

// Info inspects the tesseract binary and the language data directory.
func (e *Extractor) Info(ctx context.Context) EngineInfo {
	info := EngineInfo{
		Binary:        e.cfg.Tesseract,
		Language:      e.cfg.TesseractLang,
		TessdataDir:   e.cfg.TessdataDir,
		Languages:     []string{},
		TessdataFiles: []string{},
	}

	if dir := e.cfg.TessdataDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			info.TessdataExists = true
			files, _ := filepath.Glob(filepath.Join(dir, "*.traineddata"))
			for _, f := range files {
				info.TessdataFiles = append(info.TessdataFiles, filepath.Base(f))
			}
			sort.Strings(info.TessdataFiles)
		}
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, "--version")
	if err != nil {
		info.EngineError = classify(err, errb).Error()
		return info
	}
	// older builds print the version banner on stderr
	banner := string(out)
	if strings.TrimSpace(banner) == "" {
		banner = string(errb)
	}
	info.Version = firstLine(banner)

	args := []string{"--list-langs"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err = e.runner.Run(ctx, e.cfg.Tesseract, e.logger, args...)
	if err != nil {
		info.EngineError = classify(err, errb).Error()
		return info
	}
	info.Languages = parseLangList(string(out))
	info.EngineOK = containsString(info.Languages, e.cfg.TesseractLang)
	if !info.EngineOK {
		info.EngineError = ErrLanguageDataMissing.Error() + ": " + e.cfg.TesseractLang
	}
	return info
}

// parseLangList skips the "List of available languages ..." header.
func parseLangList(s string) []string {
	langs := []string{}
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(strings.ToLower(ln), "list of available languages") {
			continue
		}
		langs = append(langs, ln)
	}
	return langs
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
