package constants

import "strings"

// Media types accepted at intake.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// AllowedExtensions holds the file extensions accepted for credit report ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaTypeForExt maps a normalized extension to its media type.
func MediaTypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return MediaTypePDF
	case "png":
		return MediaTypePNG
	case "jpg", "jpeg":
		return MediaTypeJPEG
	default:
		return ""
	}
}

// AllowedMediaType reports whether the media type can be extracted.
func AllowedMediaType(mt string) bool {
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case MediaTypePDF, MediaTypePNG, MediaTypeJPEG:
		return true
	}
	return false
}
