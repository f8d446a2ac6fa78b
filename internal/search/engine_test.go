package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s), s
}

func mustUpsert(t *testing.T, s *storage.Store, in storage.DocumentInput) string {
	t.Helper()
	_, id, err := s.UpsertDocument(in)
	if err != nil {
		t.Fatalf("upsert %s: %v", in.Path, err)
	}
	return id
}

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"60011", QueryErrorCode},
		{"errcode 60011", QueryErrorCode},
		{"ERRCODE  42", QueryErrorCode},
		{"/cgi-bin/message/send", QueryAPIPath},
		{"如何调用 /cgi-bin/gettoken 接口", QueryAPIPath},
		{"查看 /open-apis/contact/v3 文档", QueryAPIPath},
		{"发送应用消息", QueryKeyword},
		{"access_token 过期", QueryKeyword},
	}
	for _, tc := range cases {
		if got := Classify(tc.query); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 5}, {-3, 1}, {1, 1}, {20, 20}, {999, 20},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in); got != tc.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// Keyword ranking: a fresh api_reference whose title contains the whole
// query must decisively outrank a stale deep guide that only mentions it.
func TestKeywordRanking(t *testing.T) {
	e, s := newTestEngine(t)

	mustUpsert(t, s, storage.DocumentInput{
		SourceID:    "wecom",
		Path:        "message/api/send",
		Title:       "发送应用消息",
		Content:     "调用本接口，可以发送应用消息给指定成员。支持文本、图片等类型。",
		DocType:     storage.DocTypeAPIReference,
		LastUpdated: time.Now().UTC().AddDate(0, 0, -3),
	})
	mustUpsert(t, s, storage.DocumentInput{
		SourceID:    "wecom",
		Path:        "guide/message/types/format/detail",
		Title:       "消息类型与数据格式",
		Content:     "本文介绍如何发送应用消息时使用的各种数据格式。",
		DocType:     storage.DocTypeGuide,
		LastUpdated: time.Now().UTC().AddDate(0, 0, -200),
	})

	resp, err := e.Search(context.Background(), "发送应用消息", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2 (%+v)", len(resp.Results), resp.Results)
	}
	a, b := resp.Results[0], resp.Results[1]
	if a.Doc.Title != "发送应用消息" {
		t.Fatalf("first result = %q, want the api_reference doc", a.Doc.Title)
	}
	if a.Score <= b.Score {
		t.Errorf("scores not ordered: %v <= %v", a.Score, b.Score)
	}
	// A carries +20 title-contains, +3 api_reference, +3 recency, −1.5 depth;
	// B gets none of the bonuses and a −2.5 depth penalty.
	if a.Score-b.Score < 15 {
		t.Errorf("score gap = %v, want the full-title and type/recency bonuses to dominate", a.Score-b.Score)
	}
}

func TestScoreComponents(t *testing.T) {
	now := time.Now().UTC()
	base := storage.Document{
		Title:     "发送应用消息",
		DocType:   storage.DocTypeAPIReference,
		PathDepth: 3,
	}

	fresh := base
	fresh.LastUpdated = now.AddDate(0, 0, -3)
	stale := base
	stale.LastUpdated = now.AddDate(0, 0, -60)
	ancient := base
	ancient.LastUpdated = now.AddDate(0, 0, -200)

	sFresh := scoreDocument(fresh, "发送应用消息", []string{"发送", "应用", "消息"}, 0, now)
	sStale := scoreDocument(stale, "发送应用消息", []string{"发送", "应用", "消息"}, 0, now)
	sAncient := scoreDocument(ancient, "发送应用消息", []string{"发送", "应用", "消息"}, 0, now)

	// 20 (full title) + 5 (all tokens) + 3 (api_reference) − 1.5 (depth) = 26.5 base
	if want := 26.5 + 3; sFresh != want {
		t.Errorf("fresh score = %v, want %v", sFresh, want)
	}
	if want := 26.5 + 1; sStale != want {
		t.Errorf("stale score = %v, want %v", sStale, want)
	}
	if want := 26.5; sAncient != want {
		t.Errorf("ancient score = %v, want %v", sAncient, want)
	}

	// bm25 ranks arrive negative; only the magnitude contributes.
	if got := scoreDocument(ancient, "发送应用消息", []string{"发送", "应用", "消息"}, -2.5, now); got != 26.5+2.5 {
		t.Errorf("bm25 magnitude not added: %v", got)
	}
}

// Error-code lookup resolves through error_codes and returns the linked
// document at the fixed direct-hit score.
func TestErrorCodeLookup(t *testing.T) {
	e, s := newTestEngine(t)

	docID := mustUpsert(t, s, storage.DocumentInput{
		SourceID: "wecom",
		Path:     "errors/global",
		Title:    "全局错误码",
		Content:  "| 60011 | no privilege | 无权限操作指定的成员、部门或应用 |",
	})
	if err := s.UpsertErrorCodes("wecom", []storage.ErrorCode{
		{Code: "60011", Message: "no privilege to access/modify contact/party/agent", DocID: docID},
	}); err != nil {
		t.Fatalf("UpsertErrorCodes: %v", err)
	}

	for _, q := range []string{"60011", "errcode 60011"} {
		resp, err := e.Search(context.Background(), q, Options{})
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(resp.Results) != 1 {
			t.Fatalf("Search(%q) results = %d, want 1", q, len(resp.Results))
		}
		if resp.Results[0].Doc.ID != docID {
			t.Errorf("Search(%q) returned %s, want %s", q, resp.Results[0].Doc.ID, docID)
		}
		if resp.Results[0].Score != 50 {
			t.Errorf("Search(%q) score = %v, want 50", q, resp.Results[0].Score)
		}
	}

	// Unknown code: zero results, Markdown body with suggestions.
	resp, err := e.Search(context.Background(), "99999999", Options{})
	if err != nil {
		t.Fatalf("Search(unknown): %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("unknown code results = %d, want 0", len(resp.Results))
	}
	body := FormatMarkdown(resp)
	if !contains(body, "建议") {
		t.Errorf("zero-result body missing 建议:\n%s", body)
	}
}

// API-path queries go straight to the api_path column; prefixes match via
// LIKE and no FTS is involved.
func TestAPIPathRouting(t *testing.T) {
	e, s := newTestEngine(t)

	id := mustUpsert(t, s, storage.DocumentInput{
		SourceID: "wecom",
		Path:     "message/api/send",
		Title:    "发送应用消息",
		APIPath:  "/cgi-bin/message/send",
		Content:  "POST /cgi-bin/message/send",
	})

	for _, q := range []string{"/cgi-bin/message/send", "/cgi-bin/message"} {
		resp, err := e.Search(context.Background(), q, Options{})
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if resp.Kind != QueryAPIPath {
			t.Errorf("Search(%q) kind = %q, want api_path", q, resp.Kind)
		}
		if len(resp.Results) != 1 || resp.Results[0].Doc.ID != id {
			t.Fatalf("Search(%q) = %+v, want exactly the send doc", q, resp.Results)
		}
		if resp.Results[0].Score != 50 {
			t.Errorf("Search(%q) score = %v, want 50", q, resp.Results[0].Score)
		}
	}
}

// Identically-scoring docs differing only in dev_mode collapse to one
// result carrying the displaced modes; a mode filter disables the dedup.
func TestDevModeDedup(t *testing.T) {
	e, s := newTestEngine(t)

	for _, mode := range []string{"internal", "third_party", "service_provider"} {
		mustUpsert(t, s, storage.DocumentInput{
			SourceID: "wecom",
			Path:     "auth/" + mode + "/token",
			Title:    "获取access_token",
			APIPath:  "/cgi-bin/gettoken",
			DevMode:  mode,
			Content:  "调用本接口获取 access_token，用于后续接口鉴权。",
		})
	}

	resp, err := e.Search(context.Background(), "获取access_token", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1 after dedup (%+v)", len(resp.Results), resp.Results)
	}
	r := resp.Results[0]
	if len(r.OtherModes) != 2 {
		t.Errorf("other_modes = %v, want the two displaced modes", r.OtherModes)
	}
	for _, m := range r.OtherModes {
		if m == r.Doc.DevMode {
			t.Errorf("other_modes contains the kept mode %q", m)
		}
	}

	resp, err = e.Search(context.Background(), "获取access_token", Options{Mode: "third_party"})
	if err != nil {
		t.Fatalf("Search with mode: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("mode-filtered results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].Doc.DevMode != "third_party" || len(resp.Results[0].OtherModes) != 0 {
		t.Errorf("mode filter result = %+v", resp.Results[0])
	}
}

// A stop-word-only query tokenizes to nothing, returns zero results and
// still writes a search_log row.
func TestStopWordQueryLogsZeroResult(t *testing.T) {
	e, s := newTestEngine(t)

	resp, err := e.Search(context.Background(), "的 了 是", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("stop-word query returned %+v", resp)
	}
	n, err := s.CountSearchLogs()
	if err != nil {
		t.Fatalf("CountSearchLogs: %v", err)
	}
	if n != 1 {
		t.Errorf("search log rows = %d, want 1", n)
	}
}

func TestEverySearchIsLogged(t *testing.T) {
	e, s := newTestEngine(t)

	mustUpsert(t, s, storage.DocumentInput{
		SourceID: "wecom", Path: "a", Title: "发送消息", Content: "发送消息内容",
	})
	for _, q := range []string{"发送消息", "60011", "/cgi-bin/x"} {
		if _, err := e.Search(context.Background(), q, Options{}); err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
	}
	n, _ := s.CountSearchLogs()
	if n != 3 {
		t.Errorf("search log rows = %d, want 3", n)
	}
}

func TestLimitTruncationKeepsTotal(t *testing.T) {
	e, s := newTestEngine(t)

	for i := 0; i < 8; i++ {
		mustUpsert(t, s, storage.DocumentInput{
			SourceID: "wecom",
			Path:     "message/doc" + string(rune('a'+i)),
			Title:    "消息文档" + string(rune('a'+i)),
			Content:  "发送消息说明第" + string(rune('a'+i)) + "篇",
		})
	}

	resp, err := e.Search(context.Background(), "发送消息", Options{Limit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("page size = %d, want 3", len(resp.Results))
	}
	if resp.Total != 8 {
		t.Errorf("total = %d, want 8", resp.Total)
	}
}

func TestSnippetWindow(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "填充内容片段。"
	}
	content := long + "这里提到了发送应用消息的调用方式。" + long

	snip := Snippet(content, "发送应用消息", nil)
	if !contains(snip, "发送应用消息") {
		t.Errorf("snippet does not contain the query: %q", snip)
	}
	if got := len([]rune(snip)); got > snippetWidth+6 {
		t.Errorf("snippet length = %d runes, want <= %d plus ellipses", got, snippetWidth)
	}
	if snip[:3] != "..." || snip[len(snip)-3:] != "..." {
		t.Errorf("snippet missing ellipses: %q", snip)
	}
}

func TestSnippetStripsDecoration(t *testing.T) {
	snip := Snippet("# 标题\n\n**加粗** 和 `代码` 以及 [链接](https://x)", "加粗", nil)
	for _, ch := range []string{"#", "*", "`", "[", "]"} {
		if contains(snip, ch) {
			t.Errorf("decoration %q leaked into snippet %q", ch, snip)
		}
	}
}

func TestFormatMarkdownHeader(t *testing.T) {
	resp := Response{Query: "发送消息", Total: 2, TookMS: 7}
	body := FormatMarkdown(resp)
	if !contains(body, "## 搜索结果：发送消息（来源：全部，共 2 条，耗时 7ms）") {
		t.Errorf("header missing:\n%s", body)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
