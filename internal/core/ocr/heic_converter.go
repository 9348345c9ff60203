package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type ctxKey string

const ctxKeyContentHash ctxKey = "ocr.content_hash_hex"

// WithContentHash stores the hex-encoded SHA256 of the upload for artifact caching.
func WithContentHash(ctx context.Context, hex string) context.Context {
	return context.WithValue(ctx, ctxKeyContentHash, hex)
}

func contentHashFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyContentHash).(string)
	return v, ok && v != ""
}

// convertHEICtoPNG converts a HEIC/HEIF file to PNG.
// With cacheDir and hashHex set, the PNG is persisted (and reused) at
//
//	{cacheDir}/{hashHex}.png
//
// and the returned cleanup is nil. Otherwise the PNG lives in a temp dir that
// cleanup removes.
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in, cacheDir, hashHex string) (string, []string, func(), error) {
	useCache := cacheDir != "" && hashHex != ""
	cached := filepath.Join(cacheDir, hashHex+".png")
	if useCache {
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			logger.Debug("using cached heic->png", "cache", cached)
			return cached, nil, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "rx-heic-*")
	if err != nil {
		return "", nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	var args []string
	switch converter {
	case "heif-convert":
		args = []string{in, out}
	case "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return "", nil, cleanup, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
	}
	if _, errb, err := r.Run(ctx, converter, logger, args...); err != nil {
		return "", []string{string(errb)}, cleanup, fmt.Errorf("%s failed: %w", converter, err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", nil, cleanup, fmt.Errorf("HEIC conversion produced no output: %v", err)
	}
	if !useCache {
		return out, nil, cleanup, nil
	}

	defer cleanup()
	if err := os.Rename(out, cached); err != nil {
		// EXDEV between temp and cache dirs: copy instead
		if err := copyFile(out, cached); err != nil {
			return "", nil, nil, err
		}
	}
	logger.Debug("cached heic->png", "cache", cached)
	return cached, nil, nil, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
