package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wxkingstar/SpecFusion/internal/search"
	"github.com/wxkingstar/SpecFusion/internal/storage"
	"github.com/wxkingstar/SpecFusion/internal/summary"
)

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeMarkdown(w, http.StatusBadRequest, "## 参数错误\n\n缺少必填参数 `q`。用法：`/api/search?q=关键词`。\n")
			return
		}

		opts := search.Options{
			Source: r.URL.Query().Get("source"),
			Mode:   r.URL.Query().Get("mode"),
			Limit:  queryInt(r, "limit", 0),
		}

		resp, err := deps.Engine.Search(r.Context(), q, opts)
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 搜索失败\n\n"+err.Error()+"\n")
			return
		}
		writeMarkdown(w, http.StatusOK, search.FormatMarkdown(resp))
	}
}

func handleDoc(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			writeMarkdown(w, http.StatusNotFound,
				fmt.Sprintf("## 未找到文档\n\n文档 `%s` 不存在。可通过 `/api/search` 重新检索。\n", id))
			return
		}
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 读取失败\n\n"+err.Error()+"\n")
			return
		}

		if r.URL.Query().Get("summary") == "true" {
			writeMarkdown(w, http.StatusOK, summary.Summarize(doc.Content, doc.ID))
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "<!-- source: %s -->\n", doc.SourceID)
		fmt.Fprintf(&b, "<!-- path: %s -->\n", doc.Path)
		if doc.SourceURL != "" {
			fmt.Fprintf(&b, "<!-- source_url: %s -->\n", doc.SourceURL)
		}
		if !doc.LastUpdated.IsZero() {
			fmt.Fprintf(&b, "<!-- last_updated: %s -->\n", doc.LastUpdated.Format("2006-01-02"))
		}
		b.WriteString("\n" + doc.Content)
		writeMarkdown(w, http.StatusOK, b.String())
	}
}

func handleSources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Store.GetSources()
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 读取失败\n\n"+err.Error()+"\n")
			return
		}

		var b strings.Builder
		b.WriteString("## 已收录平台\n\n")
		b.WriteString("| 平台 | 标识 | 文档数 | 最近同步 |\n|---|---|---|---|\n")
		for _, src := range sources {
			synced := "-"
			if !src.LastSynced.IsZero() {
				synced = src.LastSynced.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(&b, "| %s | `%s` | %d | %s |\n", src.Name, src.ID, src.DocCount, synced)
		}
		writeMarkdown(w, http.StatusOK, b.String())
	}
}

func handleCategories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := deps.Store.GetCategories(r.URL.Query().Get("source"))
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 读取失败\n\n"+err.Error()+"\n")
			return
		}

		var b strings.Builder
		b.WriteString("## 文档分类\n\n")
		current := ""
		for _, c := range cats {
			if c.SourceID != current {
				current = c.SourceID
				fmt.Fprintf(&b, "### %s\n\n", current)
			}
			fmt.Fprintf(&b, "- `%s`（%d 篇）\n", c.Name, c.Count)
		}
		writeMarkdown(w, http.StatusOK, b.String())
	}
}

func handleCategoryDocs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		category := chi.URLParam(r, "category")
		mode := r.URL.Query().Get("mode")
		limit := clamp(queryInt(r, "limit", 50), 1, 100)

		docs, err := deps.Store.GetDocumentsByCategory(source, category, mode, limit)
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 读取失败\n\n"+err.Error()+"\n")
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## %s / %s（共 %d 篇）\n\n", source, category, len(docs))
		for _, doc := range docs {
			fmt.Fprintf(&b, "- **%s** — `/doc/%s`", doc.Title, doc.ID)
			if doc.APIPath != "" {
				fmt.Fprintf(&b, "（`%s`）", doc.APIPath)
			}
			b.WriteString("\n")
		}
		writeMarkdown(w, http.StatusOK, b.String())
	}
}

func handleRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := clamp(queryInt(r, "days", 7), 1, 90)
		limit := clamp(queryInt(r, "limit", 20), 1, 100)

		docs, err := deps.Store.GetRecentDocuments(r.URL.Query().Get("source"), days, limit)
		if err != nil {
			writeMarkdown(w, http.StatusInternalServerError, "## 读取失败\n\n"+err.Error()+"\n")
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## 近 %d 天更新（共 %d 篇）\n\n", days, len(docs))
		for _, doc := range docs {
			fmt.Fprintf(&b, "- %s **%s**（%s）— `/doc/%s`\n",
				doc.LastUpdated.Format("2006-01-02"), doc.Title, doc.SourceID, doc.ID)
		}
		writeMarkdown(w, http.StatusOK, b.String())
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	type sourceHealth struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		DocCount   int    `json:"doc_count"`
		LastSynced string `json:"last_synced,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Store.GetSources()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading sources: %v", err)
			return
		}
		total, err := deps.Store.CountDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting documents: %v", err)
			return
		}

		out := make([]sourceHealth, 0, len(sources))
		for _, src := range sources {
			sh := sourceHealth{ID: src.ID, Name: src.Name, DocCount: src.DocCount}
			if !src.LastSynced.IsZero() {
				sh.LastSynced = src.LastSynced.Format("2006-01-02T15:04:05Z07:00")
			}
			out = append(out, sh)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"sources":    out,
			"total_docs": total,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
