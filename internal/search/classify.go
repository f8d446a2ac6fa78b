package search

import (
	"regexp"
	"strings"
)

// Query kinds. Error-code and api-path queries bypass FTS entirely.
const (
	QueryKeyword   = "keyword"
	QueryAPIPath   = "api_path"
	QueryErrorCode = "error_code"
)

var (
	digitsRe  = regexp.MustCompile(`^\d+$`)
	errcodeRe = regexp.MustCompile(`(?i)^errcode\s*\d+$`)
)

// Classify decides how a trimmed query is routed.
func Classify(query string) string {
	q := strings.TrimSpace(query)
	switch {
	case digitsRe.MatchString(q) || errcodeRe.MatchString(q):
		return QueryErrorCode
	case strings.HasPrefix(q, "/") || strings.Contains(q, "/cgi-bin/") || strings.Contains(q, "/open-apis/"):
		return QueryAPIPath
	default:
		return QueryKeyword
	}
}

var errcodePrefixRe = regexp.MustCompile(`(?i)^errcode\s*`)

// stripErrcodePrefix reduces "errcode 60011" to "60011".
func stripErrcodePrefix(q string) string {
	return errcodePrefixRe.ReplaceAllString(strings.TrimSpace(q), "")
}
