package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	residualAnchorRe = regexp.MustCompile(`<a\s[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	residualTagRe    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe  = regexp.MustCompile(`[ \t]+\n`)
)

// HTMLToMarkdown normalizes platform HTML into Markdown: script/style
// stripped, <pre><code class="language-x"> to fenced blocks, inline <code>
// to backticks, images, links, headings, lists and tables converted,
// residual anchors caught by regex, blank-line runs collapsed to two.
func HTMLToMarkdown(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	renderNode(&b, doc)

	out := b.String()
	out = residualAnchorRe.ReplaceAllString(out, "[$2]($1)")
	out = residualTagRe.ReplaceAllString(out, "")
	out = trailingSpaceRe.ReplaceAllString(out, "\n")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out) + "\n", nil
}

func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(collapseSpace(n.Data))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
			renderChildren(b, n)
			b.WriteString("\n\n")
			return
		case "p", "div", "section", "article":
			b.WriteString("\n\n")
			renderChildren(b, n)
			b.WriteString("\n\n")
			return
		case "br":
			b.WriteString("\n")
			return
		case "hr":
			b.WriteString("\n\n---\n\n")
			return
		case "pre":
			renderPre(b, n)
			return
		case "code":
			b.WriteString("`" + inlineText(n) + "`")
			return
		case "img":
			alt := attr(n, "alt")
			src := attr(n, "src")
			if src != "" {
				fmt.Fprintf(b, "![%s](%s)", alt, src)
			}
			return
		case "a":
			href := attr(n, "href")
			text := strings.TrimSpace(inlineText(n))
			if href != "" && text != "" {
				fmt.Fprintf(b, "[%s](%s)", text, href)
			} else {
				b.WriteString(text)
			}
			return
		case "strong", "b":
			b.WriteString("**")
			renderChildren(b, n)
			b.WriteString("**")
			return
		case "em", "i":
			b.WriteString("*")
			renderChildren(b, n)
			b.WriteString("*")
			return
		case "blockquote":
			var inner strings.Builder
			renderChildren(&inner, n)
			b.WriteString("\n\n")
			for _, line := range strings.Split(strings.TrimSpace(inner.String()), "\n") {
				b.WriteString("> " + strings.TrimSpace(line) + "\n")
			}
			b.WriteString("\n")
			return
		case "ul", "ol":
			renderList(b, n, n.Data == "ol")
			return
		case "table":
			renderTable(b, n)
			return
		}
	}
	renderChildren(b, n)
}

func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
}

// renderPre converts a <pre> (optionally wrapping <code class="language-x">)
// into a fenced block, preserving <br> as newlines and trimming trailing
// whitespace per line.
func renderPre(b *strings.Builder, n *html.Node) {
	lang := ""
	body := n
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "code" {
			body = c
			if class := attr(c, "class"); strings.HasPrefix(class, "language-") {
				lang = strings.TrimPrefix(class, "language-")
			}
			break
		}
	}

	var code strings.Builder
	rawText(&code, body)
	lines := strings.Split(code.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text := strings.Trim(strings.Join(lines, "\n"), "\n")

	b.WriteString("\n\n```" + lang + "\n" + text + "\n```\n\n")
}

// rawText collects text content without whitespace collapsing, honoring
// <br> inside code blocks.
func rawText(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case c.Type == html.ElementNode && c.Data == "br":
			b.WriteString("\n")
		default:
			rawText(b, c)
		}
	}
}

func renderList(b *strings.Builder, n *html.Node, ordered bool) {
	b.WriteString("\n\n")
	idx := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		idx++
		var item strings.Builder
		renderChildren(&item, c)
		text := strings.TrimSpace(item.String())
		if ordered {
			fmt.Fprintf(b, "%d. %s\n", idx, text)
		} else {
			b.WriteString("- " + text + "\n")
		}
	}
	b.WriteString("\n")
}

func renderTable(b *strings.Builder, n *html.Node) {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "tr" {
				var cells []string
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
						var cell strings.Builder
						renderChildren(&cell, td)
						cells = append(cells, strings.TrimSpace(strings.ReplaceAll(cell.String(), "\n", " ")))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
				continue
			}
			walk(c)
		}
	}
	walk(n)

	if len(rows) == 0 {
		return
	}
	b.WriteString("\n\n")
	for i, cells := range rows {
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat("---|", len(cells)) + "\n")
		}
	}
	b.WriteString("\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func inlineText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' {
		out = " " + out
	}
	last := s[len(s)-1]
	if last == ' ' || last == '\n' || last == '\t' {
		out += " "
	}
	return out
}
