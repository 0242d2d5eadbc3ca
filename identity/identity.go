// Package identity derives deduplication keys from source links.
//
// Extraction is deterministic and total: every function returns the
// first match from an ordered pattern table, or the empty string when
// the link does not carry a recognizable identity. Links without an
// identity never participate in deduplication.
package identity

import "regexp"

// Ordered most-specific first. The bare /d/ form must come last since
// /file/d/ also matches it.
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/drive/u/\d+/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
}

var folderPattern = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)

// SourceID extracts the drive-style identity from a link, or returns
// "" when the link has no extractable identity.
func SourceID(link string) string {
	if link == "" {
		return ""
	}
	for _, pattern := range sourcePatterns {
		if m := pattern.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

// FolderID extracts a drive folder id from a folder link, or "".
func FolderID(link string) string {
	if link == "" {
		return ""
	}
	if m := folderPattern.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
