package constants

import "strings"

// Source formats understood by the OCR layer.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// AllowedExtensions holds the file extensions accepted for prescription scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"gif":  {},
	"webp": {},
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// IsHEICExt reports whether ext (normalized) is a HEIC/HEIF container.
func IsHEICExt(ext string) bool {
	return ext == "heic" || ext == "heif"
}

// MapExtToFormat maps a normalized extension to PDF or IMAGE; "" when unsupported.
func MapExtToFormat(ext string) string {
	if _, ok := AllowedExtensions[ext]; !ok {
		return ""
	}
	if ext == "pdf" {
		return PDF
	}
	return IMAGE
}
