package search

import (
	"fmt"
	"strings"
)

var modeLabels = map[string]string{
	"internal":         "自建应用",
	"third_party":      "第三方应用",
	"service_provider": "服务商代开发",
}

// FormatMarkdown renders a search response the way the assistant consumes
// it: a header line, then one block per result, or a diagnostic when the
// query matched nothing.
func FormatMarkdown(resp Response) string {
	var b strings.Builder

	sourceLabel := resp.Source
	if sourceLabel == "" {
		sourceLabel = "全部"
	}
	fmt.Fprintf(&b, "## 搜索结果：%s（来源：%s，共 %d 条，耗时 %dms）\n\n",
		resp.Query, sourceLabel, resp.Total, resp.TookMS)

	if len(resp.Results) == 0 {
		b.WriteString("未找到匹配的文档。\n\n")
		b.WriteString("建议：\n")
		if resp.Source != "" {
			b.WriteString("- 去掉 `source` 参数，在全部平台中搜索\n")
		}
		b.WriteString("- 缩短查询词，或改用接口路径 / 错误码直接查询\n")
		b.WriteString("- 查看 `/sources` 了解已收录的平台，`/categories` 了解文档分类\n")
		return b.String()
	}

	for i, r := range resp.Results {
		fmt.Fprintf(&b, "### %d. %s（评分 %.2f）\n\n", i+1, r.Doc.Title, r.Score)

		line := "来源：" + r.Doc.SourceID
		if r.Doc.DevMode != "" {
			line += " / " + modeLabel(r.Doc.DevMode)
		}
		if len(r.OtherModes) > 0 {
			labels := make([]string, len(r.OtherModes))
			for j, m := range r.OtherModes {
				labels[j] = modeLabel(m)
			}
			line += fmt.Sprintf("（另有版本：%s）", strings.Join(labels, "、"))
		}
		b.WriteString("- " + line + "\n")

		if r.Doc.APIPath != "" {
			fmt.Fprintf(&b, "- 接口：`%s`\n", r.Doc.APIPath)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "- 摘要：%s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "- 文档 ID：`%s`（全文：/doc/%s）\n", r.Doc.ID, r.Doc.ID)
		if r.Doc.SourceURL != "" {
			fmt.Fprintf(&b, "- 原文：%s\n", r.Doc.SourceURL)
		}
		if !r.Doc.LastUpdated.IsZero() {
			fmt.Fprintf(&b, "- 更新时间：%s\n", r.Doc.LastUpdated.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func modeLabel(mode string) string {
	if label, ok := modeLabels[mode]; ok {
		return label
	}
	return mode
}
