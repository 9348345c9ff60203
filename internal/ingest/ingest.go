// Package ingest discovers prescription images on the local filesystem for
// batch verification.
package ingest

import "time"

// Item is one discovered file.
type Item struct {
	SourcePath   string
	HashHex      string
	FileExt      string
	Size         int
	Image        []byte
	Deduplicated bool // same content already seen by this ingestor
	ReadAt       time.Time
	Err          string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}
