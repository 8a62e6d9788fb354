package acquire

import (
	"regexp"
	"strings"
)

var (
	reImageURL = regexp.MustCompile(`(?i)https?://[^"'\s<>)]+\.(?:jpg|jpeg|png|webp)(?:\?[^"'\s<>)]*)?`)
	reImageExt = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|webp)(?:\?|$)`)
	reAnyURL   = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// ScanImageURLs finds absolute image URLs anywhere in text, including CSS
// background-image declarations and inline scripts.
func ScanImageURLs(text string) []string {
	matches := reImageURL.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ReplaceAll(m, "&amp;", "&"))
	}
	return out
}

// ScanURLs finds every absolute http(s) URL in text.
func ScanURLs(text string) []string {
	matches := reAnyURL.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.TrimRight(m, ".,;)]")
	}
	return matches
}
