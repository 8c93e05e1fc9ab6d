// Package mediatype detects the media type of ingested content by sniffing
// its leading bytes.
package mediatype

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Fallback is reported when nothing more specific matches.
const Fallback = "application/octet-stream"

// Detect sniffs r and returns a lowercase media type without parameters,
// e.g. "text/plain" rather than "text/plain; charset=utf-8".
func Detect(r io.Reader) (string, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detect media type: %w", err)
	}
	return Normalize(m.String()), nil
}

// DetectFile sniffs the file at path.
func DetectFile(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect media type: %w", err)
	}
	return Normalize(m.String()), nil
}

// Normalize strips parameters and lowercases s. An empty result becomes
// Fallback.
func Normalize(s string) string {
	base, _, _ := strings.Cut(s, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return Fallback
	}
	return base
}
