package llm

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most n runes. The cut is a plain length cap, not
// sentence aware.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Section renders a titled prompt block. Empty bodies render nothing.
func Section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return "### " + title + "\n" + body
}

// JoinPrompt joins non-empty blocks with blank lines.
func JoinPrompt(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n")
}
