package adapter

import (
	"regexp"
	"strings"
)

// errorCodeRowRe matches Markdown table rows shaped |code|message|description|.
// It accepts any 3-6 digit numeric cell, so narrative tables (HTTP status
// listings and the like) can produce false positives; those are stored as-is.
var errorCodeRowRe = regexp.MustCompile(`\|\s*(-?\d{3,6})\s*\|\s*([^|]*)\|\s*([^|]*)\|`)

// ExtractErrorCodes scans normalized Markdown for error-code table rows and
// returns deduplicated {code, message, description} triples (first
// occurrence wins).
func ExtractErrorCodes(markdown string) []ErrorCodeEntry {
	var out []ErrorCodeEntry
	seen := make(map[string]struct{})
	for _, m := range errorCodeRowRe.FindAllStringSubmatch(markdown, -1) {
		code := m[1]
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, ErrorCodeEntry{
			Code:        code,
			Message:     strings.TrimSpace(m[2]),
			Description: strings.TrimSpace(m[3]),
		})
	}
	return out
}
