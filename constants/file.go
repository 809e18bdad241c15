package constants

import (
	"mime"
	"path/filepath"
	"strings"
)

// Document formats understood by the extraction cascade.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// AllowedExtensions holds the default allowed file extensions for committee document ingestion.
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

// MapExtToFormat maps a (possibly dotted) extension to PDF or IMAGE; "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}

// MapMimeToFormat does the same for a declared MIME type.
func MapMimeToFormat(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mt {
	case MimePDF:
		return PDF
	case MimePNG, MimeJPEG, "image/jpg":
		return IMAGE
	default:
		return ""
	}
}

// MimeForPath guesses the MIME type from a file name.
func MimeForPath(path string) string {
	switch NormalizeExt(filepath.Ext(path)) {
	case "pdf":
		return MimePDF
	case "png":
		return MimePNG
	case "jpg", "jpeg":
		return MimeJPEG
	}
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
