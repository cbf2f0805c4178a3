package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen bounds how much of the plaintext is inspected when no MIME type
// was supplied.
const sniffLen = 3072

var compressedMIMEPrefixes = []string{"image/", "video/", "audio/"}

// text-like exceptions under otherwise compressed prefixes
var compressibleMIMETypes = map[string]struct{}{
	"image/svg+xml": {},
	"image/bmp":     {},
	"image/x-icon":  {},
}

var compressedMIMETypes = map[string]struct{}{
	"application/zip":              {},
	"application/gzip":             {},
	"application/x-gzip":           {},
	"application/x-bzip2":          {},
	"application/x-xz":             {},
	"application/zstd":             {},
	"application/x-7z-compressed":  {},
	"application/x-rar-compressed": {},
	"application/vnd.rar":          {},
	"application/pdf":              {},
	"application/epub+zip":         {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

var compressedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".heic": {}, ".avif": {},
	".mp4": {}, ".mkv": {}, ".mov": {}, ".avi": {}, ".webm": {},
	".mp3": {}, ".aac": {}, ".ogg": {}, ".flac": {}, ".m4a": {}, ".opus": {},
	".zip": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".zst": {}, ".7z": {}, ".rar": {},
	".pdf": {}, ".docx": {}, ".xlsx": {}, ".pptx": {}, ".epub": {},
}

func isCompressedMIME(mimeType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return false
	}
	if _, ok := compressibleMIMETypes[mt]; ok {
		return false
	}
	if _, ok := compressedMIMETypes[mt]; ok {
		return true
	}
	for _, p := range compressedMIMEPrefixes {
		if strings.HasPrefix(mt, p) {
			return true
		}
	}
	return false
}

// IsPrecompressed reports whether content is already in a compressed format.
// An explicit MIME type wins; then the filename extension; when neither says
// anything the leading bytes of data are sniffed.
func IsPrecompressed(filename, mimeType string, data []byte) bool {
	if mimeType != "" {
		return isCompressedMIME(mimeType)
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if _, ok := compressedExtensions[ext]; ok {
			return true
		}
	}
	if len(data) == 0 {
		return false
	}
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return isCompressedMIME(mimetype.Detect(data).String())
}

// DetectMIME sniffs a MIME type for client metadata.
func DetectMIME(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return mimetype.Detect(data).String()
}
