package resolver

import (
	"net/url"
	"strings"
)

// Normalize cleans a user supplied path: surrounding whitespace and quotes
// and a file:// scheme are removed, backslashes become slashes, repeated
// separators collapse, and the result has exactly one leading slash and no
// trailing slash.
func Normalize(path string) string {
	p := strings.TrimSpace(path)
	p = strings.Trim(p, `"'`)
	p = strings.TrimSpace(p)

	if rest, ok := cutPrefixFold(p, "file://"); ok {
		if unescaped, err := url.PathUnescape(rest); err == nil {
			rest = unescaped
		}
		// file://localhost/path
		if strings.HasPrefix(strings.ToLower(rest), "localhost/") {
			rest = rest[len("localhost"):]
		}
		p = rest
	}

	p = strings.ReplaceAll(p, `\`, "/")
	return "/" + strings.Join(Segments(p), "/")
}

// Segments splits a path into its non-empty segments.
func Segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
}

func join(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
