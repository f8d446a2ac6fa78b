// Package summary derives a compact structured preview (~1 KB) from a
// stored Markdown document. Extraction is line-oriented and every section
// is independent: missing inputs skip that section without aborting.
package summary

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	descriptionLimit = 200
	tableRowLimit    = 10
	jsonBlockLimit   = 500
	maxJSONBlocks    = 2
)

// permission-statement paragraphs are skipped when picking the description.
var permissionKeywords = []string{
	"权限说明", "权限要求", "使用条件", "调用权限", "接口权限",
	"应用权限", "通讯录权限", "数据权限", "permission", "scope",
}

var (
	commentRe   = regexp.MustCompile(`^<!--.*-->$`)
	headingRe   = regexp.MustCompile(`^#{1,6}\s`)
	methodRe    = regexp.MustCompile(`\b(GET|POST|PUT|DELETE|PATCH|HEAD)\s+(/[^\s]+)`)
	cgiPathRe   = regexp.MustCompile(`/cgi-bin/[A-Za-z0-9_/?={}.-]+`)
	openAPIRe   = regexp.MustCompile(`/open-apis/[A-Za-z0-9_/?={}.:-]+`)
	sourceURLRe = regexp.MustCompile(`<!--\s*source_url:\s*(\S+)\s*-->`)
	boldRe      = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	linkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// Summarize produces the preview for one document body.
func Summarize(content, docID string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder

	writeHeadComments(&b, lines)

	titleIdx := writeTitle(&b, lines)
	writeDescription(&b, lines, titleIdx)
	writeAPIInfo(&b, content)
	writeTable(&b, lines)
	writeJSONBlocks(&b, lines)

	fmt.Fprintf(&b, "\n*（完整参数和代码示例请获取全文：/doc/%s）*\n", docID)
	return b.String()
}

// writeHeadComments preserves HTML-comment metadata lines from the head of
// the document, stopping at the first substantive line.
func writeHeadComments(b *strings.Builder, lines []string) {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !commentRe.MatchString(trimmed) {
			return
		}
		b.WriteString(trimmed + "\n")
	}
}

// writeTitle emits the first level-one heading and returns its index, or -1.
func writeTitle(b *strings.Builder, lines []string) int {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			b.WriteString("\n" + trimmed + "\n")
			return i
		}
	}
	return -1
}

// writeDescription finds the first non-empty, non-heading paragraph after
// the title that is not a permission statement, cleans it and truncates to
// 200 characters.
func writeDescription(b *strings.Builder, lines []string, titleIdx int) {
	inFence := false
	for i := titleIdx + 1; i >= 0 && i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" || headingRe.MatchString(trimmed) ||
			commentRe.MatchString(trimmed) || strings.HasPrefix(trimmed, "|") {
			continue
		}
		if isPermissionParagraph(trimmed) {
			continue
		}
		cleaned := cleanParagraph(trimmed)
		if cleaned == "" {
			continue
		}
		runes := []rune(cleaned)
		if len(runes) > descriptionLimit {
			cleaned = string(runes[:descriptionLimit]) + "..."
		}
		b.WriteString("\n" + cleaned + "\n")
		return
	}
}

func isPermissionParagraph(p string) bool {
	lower := strings.ToLower(p)
	for _, kw := range permissionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cleanParagraph(p string) string {
	p = strings.TrimLeft(p, "> ")
	p = boldRe.ReplaceAllString(p, "$1")
	p = linkRe.ReplaceAllString(p, "$1")
	return strings.TrimSpace(p)
}

// writeAPIInfo extracts method and route, trying explicit "METHOD /path"
// first, then known route shapes, plus the source URL metadata comment.
func writeAPIInfo(b *strings.Builder, content string) {
	var method, path string
	if m := methodRe.FindStringSubmatch(content); m != nil {
		method, path = m[1], m[2]
	} else if m := cgiPathRe.FindString(content); m != "" {
		path = m
	} else if m := openAPIRe.FindString(content); m != "" {
		path = m
	}

	if method != "" || path != "" {
		b.WriteString("\n")
		if method != "" {
			fmt.Fprintf(b, "**方法**：%s\n", method)
		}
		if path != "" {
			fmt.Fprintf(b, "**路径**：%s\n", path)
		}
	}
	if m := sourceURLRe.FindStringSubmatch(content); m != nil {
		fmt.Fprintf(b, "**原文**：%s\n", m[1])
	}
}

// writeTable emits the first pipe table (header + separator + up to 10 data
// rows), appending a remainder row when trimmed.
func writeTable(b *strings.Builder, lines []string) {
	for i := 0; i+1 < len(lines); i++ {
		header := strings.TrimSpace(lines[i])
		sep := strings.TrimSpace(lines[i+1])
		if !strings.HasPrefix(header, "|") || !isTableSeparator(sep) {
			continue
		}

		b.WriteString("\n" + header + "\n" + sep + "\n")
		rows := 0
		total := 0
		for j := i + 2; j < len(lines); j++ {
			row := strings.TrimSpace(lines[j])
			if !strings.HasPrefix(row, "|") {
				break
			}
			total++
			if rows < tableRowLimit {
				b.WriteString(row + "\n")
				rows++
			}
		}
		if total > tableRowLimit {
			fmt.Fprintf(b, "| ...（其余 %d 行见全文） |\n", total-tableRowLimit)
		}
		return
	}
}

func isTableSeparator(line string) bool {
	if !strings.HasPrefix(line, "|") {
		return false
	}
	stripped := strings.Trim(line, "| ")
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		switch r {
		case '-', ':', '|', ' ':
		default:
			return false
		}
	}
	return true
}

// writeJSONBlocks emits up to two JSON fenced code blocks, each truncated
// to 500 characters and labeled with the nearest preceding heading.
func writeJSONBlocks(b *strings.Builder, lines []string) {
	emitted := 0
	lastHeading := ""
	for i := 0; i < len(lines) && emitted < maxJSONBlocks; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if headingRe.MatchString(trimmed) {
			lastHeading = strings.TrimLeft(trimmed, "# ")
			continue
		}
		if trimmed != "```json" {
			continue
		}

		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				break
			}
			body = append(body, lines[j])
		}
		block := strings.Join(body, "\n")
		runes := []rune(block)
		if len(runes) > jsonBlockLimit {
			block = string(runes[:jsonBlockLimit]) + "\n// ..."
		}

		label := lastHeading
		if label == "" {
			label = "示例"
		}
		fmt.Fprintf(b, "\n**%s**：\n```json\n%s\n```\n", label, block)
		emitted++
		i = j
	}
}
