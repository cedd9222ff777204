// Package media validates uploaded files and stores them in blob storage.
package media

import (
	"mime"
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// SanitizeFileName lowercases name, turns whitespace runs into hyphens and
// drops every character outside [a-zA-Z0-9.-].
func SanitizeFileName(name string) string {
	s := strings.ToLower(name)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = unsafeChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
