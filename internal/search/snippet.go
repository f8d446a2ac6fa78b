package search

import (
	"strings"
)

const snippetWidth = 200

// markdown decoration characters removed before windowing.
const decorationChars = "#*`>|[]()_~"

// Snippet produces a window of at most 200 characters (runes, never split
// mid-sequence) centered on the first occurrence of the full query,
// falling back to the first query token, then to the content prefix.
// Ellipses mark truncation on either end.
func Snippet(content, query string, queryTokens []string) string {
	cleaned := stripDecoration(content)
	runes := []rune(cleaned)
	if len(runes) == 0 {
		return ""
	}

	center := findRuneIndex(cleaned, query)
	if center < 0 {
		for _, tok := range queryTokens {
			if center = findRuneIndex(cleaned, tok); center >= 0 {
				break
			}
		}
	}
	if center < 0 {
		center = 0
	}

	start := center - snippetWidth/2
	if start < 0 {
		start = 0
	}
	end := start + snippetWidth
	if end > len(runes) {
		end = len(runes)
		start = end - snippetWidth
		if start < 0 {
			start = 0
		}
	}

	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}

// findRuneIndex locates needle in haystack case-insensitively and returns
// the rune index of the match, or -1.
func findRuneIndex(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	byteIdx := strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(haystack[:byteIdx]))
}

func stripDecoration(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if strings.ContainsRune(decorationChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
