package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.handle(name, args)
}

const sampleText = "Dr. Jane Roe\r\nPatient:   John\t Doe\n\n\n\n01/02/2020\n-----\nAmoxicillin 500mg  "

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t20\t10\t90\tDr.\n" +
	"5\t1\t1\t1\t1\t2\t40\t10\t20\t10\t80\tJane\n"

func pngBytes() []byte {
	b := []byte("\x89PNG\r\n\x1a\n")
	return append(b, bytes.Repeat([]byte{0}, 128)...)
}

func tesseractOK(name string, args []string) ([]byte, []byte, error) {
	if name != "tesseract" {
		return nil, nil, errors.New("unexpected command " + name)
	}
	if args[len(args)-1] == "tsv" {
		return []byte(sampleTSV), nil, nil
	}
	return []byte(sampleText), nil, nil
}

func newTestExtractor(cfg Config, h func(string, []string) ([]byte, []byte, error)) (*Extractor, *fakeRunner) {
	r := &fakeRunner{handle: h}
	return NewExtractor(cfg, slog.Default(), WithRunner(r)), r
}

func TestRecognize_Image(t *testing.T) {
	e, r := newTestExtractor(Config{EnableTSVConfidence: true}, tesseractOK)

	res, err := e.Recognize(context.Background(), pngBytes())
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	want := "Dr. Jane Roe\nPatient: John Doe\n\n01/02/2020\n\nAmoxicillin 500mg"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if res.Method != "image-ocr" || res.Pages != 1 {
		t.Errorf("method/pages = %s/%d", res.Method, res.Pages)
	}
	// 0.7*0.85 (tsv mean) + 0.3*0.7 (heuristic)
	if math.Abs(res.Confidence-0.805) > 1e-9 {
		t.Errorf("confidence = %v, want 0.805", res.Confidence)
	}
	if len(r.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(r.calls))
	}
	if !strings.HasSuffix(r.calls[0][1], ".png") {
		t.Errorf("temp upload should keep a .png extension, got %q", r.calls[0][1])
	}
	if _, err := os.Stat(r.calls[0][1]); !os.IsNotExist(err) {
		t.Errorf("temp upload was not removed")
	}
}

func TestRecognize_RejectsBadInput(t *testing.T) {
	e, r := newTestExtractor(Config{}, tesseractOK)
	for name, img := range map[string][]byte{
		"too small":    []byte("tiny"),
		"unrecognized": bytes.Repeat([]byte("a"), 200),
	} {
		if _, err := e.Recognize(context.Background(), img); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("%s: err = %v, want ErrInvalidImage", name, err)
		}
	}
	if len(r.calls) != 0 {
		t.Errorf("engine should not run for rejected input")
	}
}

func TestRecognize_EngineErrors(t *testing.T) {
	tests := []struct {
		name string
		h    func(string, []string) ([]byte, []byte, error)
		want error
	}{
		{
			"binary missing",
			func(string, []string) ([]byte, []byte, error) {
				return nil, nil, &exec.Error{Name: "tesseract", Err: exec.ErrNotFound}
			},
			ErrEngineUnavailable,
		},
		{
			"language data missing",
			func(string, []string) ([]byte, []byte, error) {
				return nil, []byte("Error opening data file\nFailed loading language 'xyz'"), errors.New("exit status 1")
			},
			ErrLanguageDataMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestExtractor(Config{}, tt.h)
			if _, err := e.Recognize(context.Background(), pngBytes()); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecognize_MissingTessdataDir(t *testing.T) {
	e, r := newTestExtractor(Config{TessdataDir: filepath.Join(t.TempDir(), "nope")}, tesseractOK)
	if _, err := e.Recognize(context.Background(), pngBytes()); !errors.Is(err, ErrLanguageDataMissing) {
		t.Fatalf("err = %v, want ErrLanguageDataMissing", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("engine should not run without language data")
	}
}

func TestRecognize_PDFTextLayer(t *testing.T) {
	layer := "Dr. Jane Roe\nPatient: John Doe\n2020-01-02\nAmoxicillin 500mg twice daily\f"
	e, r := newTestExtractor(Config{}, func(name string, args []string) ([]byte, []byte, error) {
		if name != "pdftotext" {
			t.Errorf("unexpected command %s", name)
		}
		return []byte(layer), nil, nil
	})
	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte(" "), 128)...)

	res, err := e.Recognize(context.Background(), pdf)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Method != "pdf-text" || res.Pages != 1 {
		t.Errorf("method/pages = %s/%d", res.Method, res.Pages)
	}
	if !strings.Contains(res.Text, "Amoxicillin 500mg") {
		t.Errorf("text = %q", res.Text)
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(r.calls))
	}
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, _ := newTestExtractor(Config{TessdataDir: dir}, func(name string, args []string) ([]byte, []byte, error) {
		if args[0] == "--version" {
			return []byte("tesseract 5.3.0\n leptonica-1.82.0\n"), nil, nil
		}
		return []byte("List of available languages in \"/x\" (2):\neng\nosd\n"), nil, nil
	})

	info := e.Info(context.Background())
	if !info.EngineOK || info.EngineError != "" {
		t.Errorf("engine not ok: %+v", info)
	}
	if info.Version != "tesseract 5.3.0" {
		t.Errorf("version = %q", info.Version)
	}
	if len(info.Languages) != 2 || info.Languages[0] != "eng" {
		t.Errorf("languages = %v", info.Languages)
	}
	if !info.TessdataExists || len(info.TessdataFiles) != 1 {
		t.Errorf("tessdata = %v %v", info.TessdataExists, info.TessdataFiles)
	}
}

func TestInfo_EngineMissing(t *testing.T) {
	e, _ := newTestExtractor(Config{}, func(string, []string) ([]byte, []byte, error) {
		return nil, nil, &exec.Error{Name: "tesseract", Err: exec.ErrNotFound}
	})
	info := e.Info(context.Background())
	if info.EngineOK || info.EngineError == "" {
		t.Fatalf("expected engine failure, got %+v", info)
	}
}

func TestMeanTSVConfidence(t *testing.T) {
	tests := []struct {
		name string
		tsv  string
		want float64
	}{
		{"word rows", sampleTSV, 0.85},
		{"header only", "header only\n", 0},
		{"crlf", strings.ReplaceAll(sampleTSV, "\n", "\r\n"), 0.85},
		{"short rows skipped", sampleTSV + "5\t1\t1\n", 0.85},
		{"conf column from header", "text\tconf\nRx\t60\nAmox\t40\n", 0.5},
		{"no header conf uses fixed column", "a\tb\tc\td\te\tf\tg\th\ti\tj\tk\tl\n" +
			"5\t1\t1\t1\t1\t1\t10\t10\t20\t10\t70\tword\n", 0.7},
	}
	for _, tt := range tests {
		if got := meanTSVConfidence(tt.tsv); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: mean = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	heic := append([]byte{0, 0, 0, 0x18}, []byte("ftypheic")...)
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"png", pngBytes(), "png"},
		{"jpeg", append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...), "jpg"},
		{"pdf", []byte("%PDF-1.7"), "pdf"},
		{"heic", append(heic, make([]byte, 16)...), "heic"},
		{"tiff", []byte("II*\x00rest"), "tiff"},
		{"text", []byte("hello world"), ""},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.in); got != tt.want {
			t.Errorf("%s: DetectFormat = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalize_KeepsDigits(t *testing.T) {
	if got := Normalize("Date:\t01/02/2020\r\n"); got != "Date: 01/02/2020" {
		t.Fatalf("Normalize = %q", got)
	}
}

type deadlineRecorder struct{ sawDeadline bool }

func (d *deadlineRecorder) Recognize(ctx context.Context, _ []byte) (Result, error) {
	_, d.sawDeadline = ctx.Deadline()
	return Result{}, nil
}

func TestBounded(t *testing.T) {
	rec := &deadlineRecorder{}
	if Bounded(rec, 0) != Recognizer(rec) {
		t.Error("zero timeout should return the recognizer unchanged")
	}
	_, _ = Bounded(rec, time.Minute).Recognize(context.Background(), nil)
	if !rec.sawDeadline {
		t.Error("bounded recognizer did not set a deadline")
	}
}
