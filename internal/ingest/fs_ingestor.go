package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
)

// FSIngestor reads images from the local filesystem, remembering content
// hashes so a file copied under two names is only handed out once.
type FSIngestor struct {
	logger  *slog.Logger
	maxSize int64

	mu   sync.Mutex
	seen map[string]string // hash -> first path
}

func NewFSIngestor(logger *slog.Logger, maxSize int64) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{logger: logger, maxSize: maxSize, seen: map[string]string{}}
}

// ReadPath loads one file and hashes it.
func (i *FSIngestor) ReadPath(ctx context.Context, path string) (Item, error) {
	var out Item
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	if i.maxSize > 0 && info.Size() > i.maxSize {
		return out, fmt.Errorf("%s is %d bytes, limit %d", abs, info.Size(), i.maxSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return out, err
	}
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	i.mu.Lock()
	first, dup := i.seen[hashHex]
	if !dup {
		i.seen[hashHex] = abs
	}
	i.mu.Unlock()
	if dup {
		i.logger.Debug("duplicate content skipped", "path", abs, "first_seen", first)
	}

	return Item{
		SourcePath:   abs,
		HashHex:      hashHex,
		FileExt:      ext,
		Size:         len(data),
		Image:        data,
		Deduplicated: dup,
		ReadAt:       time.Now().UTC(),
	}, nil
}

// ScanDirectory walks root and calls fn for every new supported file.
// Unreadable files are counted as failures and the walk continues; an error
// from fn stops it.
func (i *FSIngestor) ScanDirectory(ctx context.Context, root string, skipHidden bool, fn func(Item) error) (DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return stats, errors.New("root path is required")
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			i.logger.Warn("walk error", "path", path, "error", walkErr)
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		item, err := i.ReadPath(ctx, path)
		if err != nil {
			i.logger.Warn("failed to read file", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		if item.Deduplicated {
			stats.Deduplicated++
			return nil
		}
		stats.Succeeded++
		return fn(item)
	})
	if err != nil {
		return stats, fmt.Errorf("walk: %w", err)
	}
	return stats, nil
}
