package adapter

import "regexp"

// Per-platform method+route extraction. Each platform shapes its API
// routes differently; the first match in the document wins.
var (
	wecomAPIRe    = regexp.MustCompile(`(?:(GET|POST|PUT|DELETE)\s+)?(/cgi-bin/[A-Za-z0-9_/]+)`)
	feishuAPIRe   = regexp.MustCompile(`(?:(GET|POST|PUT|DELETE|PATCH)\s+)?(/open-apis/[A-Za-z0-9_/:.{}-]+)`)
	dingtalkAPIRe = regexp.MustCompile(`(?:(GET|POST|PUT|DELETE)\s+)?(/v\d+\.\d+/[A-Za-z0-9_/{}-]+)|https://oapi\.dingtalk\.com(/[A-Za-z0-9_/]+)`)
	weixinAPIRe   = regexp.MustCompile(`https://api\.weixin\.qq\.com(/[A-Za-z0-9_/?=]+)`)
)

// ExtractWecomAPIPath pulls "METHOD /cgi-bin/..." (method optional) from
// normalized Markdown.
func ExtractWecomAPIPath(markdown string) string {
	return firstMethodRoute(wecomAPIRe, markdown)
}

// ExtractFeishuAPIPath pulls "METHOD /open-apis/..." from normalized
// Markdown.
func ExtractFeishuAPIPath(markdown string) string {
	return firstMethodRoute(feishuAPIRe, markdown)
}

// ExtractDingtalkAPIPath pulls a versioned "/vX.Y/..." route or an oapi
// URL path from normalized Markdown.
func ExtractDingtalkAPIPath(markdown string) string {
	m := dingtalkAPIRe.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	if m[3] != "" {
		return m[3]
	}
	if m[1] != "" {
		return m[1] + " " + m[2]
	}
	return m[2]
}

// ExtractWeixinAPIPath pulls the route of an api.weixin.qq.com URL from
// normalized Markdown.
func ExtractWeixinAPIPath(markdown string) string {
	m := weixinAPIRe.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	return m[1]
}

func firstMethodRoute(re *regexp.Regexp, markdown string) string {
	m := re.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1] + " " + m[2]
	}
	return m[2]
}
