package ocr

import (
	"bytes"
	"net/http"
)

// DetectFormat returns the file extension matching the content of b, or ""
// when it is neither a supported image nor a PDF.
func DetectFormat(b []byte) string {
	if bytes.HasPrefix(b, []byte("%PDF-")) {
		return "pdf"
	}
	if len(b) >= 12 && bytes.Equal(b[4:8], []byte("ftyp")) {
		switch string(b[8:12]) {
		case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
			return "heic"
		}
	}
	if bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*")) {
		return "tiff"
	}
	switch http.DetectContentType(b) {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	}
	return ""
}
