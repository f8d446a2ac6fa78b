package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestQualityGate(t *testing.T) {
	var g Gate
	cases := []struct {
		name          string
		current, last int
		wantErr       bool
	}{
		{"no history passes", 10, 0, false},
		{"steady passes", 100, 100, false},
		{"small shrink passes", 85, 100, false},
		{"big shrink rejected", 79, 100, true},
		{"growth passes with warning", 200, 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.CheckQualityGate(tc.current, tc.last)
			if tc.wantErr && !errors.Is(err, ErrQualityGate) {
				t.Errorf("CheckQualityGate(%d, %d) = %v, want ErrQualityGate", tc.current, tc.last, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("CheckQualityGate(%d, %d) = %v, want nil", tc.current, tc.last, err)
			}
		})
	}
}

func TestExtractErrorCodes(t *testing.T) {
	md := `
| 错误码 | 错误说明 | 排查方法 |
|---|---|---|
| 60011 | no privilege | 无权限操作指定的成员 |
| 40014 | invalid access_token | 不合法的access_token |
| 60011 | duplicate row | 应当被去重 |
| 12 | too short | 不应匹配 |
`
	codes := ExtractErrorCodes(md)
	if len(codes) != 2 {
		t.Fatalf("extracted %d codes, want 2: %+v", len(codes), codes)
	}
	if codes[0].Code != "60011" || codes[0].Message != "no privilege" {
		t.Errorf("first code = %+v", codes[0])
	}
	if codes[1].Code != "40014" {
		t.Errorf("second code = %+v", codes[1])
	}
}

func TestExtractErrorCodesNegative(t *testing.T) {
	codes := ExtractErrorCodes("| -1000 | system busy | 系统繁忙 |")
	if len(codes) != 1 || codes[0].Code != "-1000" {
		t.Errorf("negative code not extracted: %+v", codes)
	}
}

func TestExtractAPIPaths(t *testing.T) {
	if got := ExtractWecomAPIPath("请求方式：POST /cgi-bin/message/send"); got != "POST /cgi-bin/message/send" {
		t.Errorf("wecom = %q", got)
	}
	if got := ExtractWecomAPIPath("文档 /cgi-bin/gettoken 说明"); got != "/cgi-bin/gettoken" {
		t.Errorf("wecom bare = %q", got)
	}
	if got := ExtractFeishuAPIPath("GET /open-apis/contact/v3/users/:user_id"); got != "GET /open-apis/contact/v3/users/:user_id" {
		t.Errorf("feishu = %q", got)
	}
	if got := ExtractDingtalkAPIPath("POST /v1.0/oauth2/accessToken"); got != "POST /v1.0/oauth2/accessToken" {
		t.Errorf("dingtalk = %q", got)
	}
	if got := ExtractDingtalkAPIPath("调用 https://oapi.dingtalk.com/robot/send 即可"); got != "/robot/send" {
		t.Errorf("dingtalk oapi = %q", got)
	}
	if got := ExtractWeixinAPIPath("https://api.weixin.qq.com/wxa/getwxacode?access_token=X"); got != "/wxa/getwxacode?access_token=X" {
		t.Errorf("weixin = %q", got)
	}
	if got := ExtractWecomAPIPath("没有任何路径"); got != "" {
		t.Errorf("no path should be empty, got %q", got)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	src := `<html><body>
<script>alert(1)</script>
<style>.x{}</style>
<h1>发送应用消息</h1>
<p>调用本接口发送消息，参考 <a href="https://example.com/doc">开发文档</a>。</p>
<pre><code class="language-json">{
  "touser": "zhangsan"&lt;br&gt;
}</code></pre>
<p>行内 <code>access_token</code> 参数。</p>
<img src="https://example.com/x.png" alt="流程图">
<hr>
<table><tr><th>参数</th><th>类型</th></tr><tr><td>touser</td><td>string</td></tr></table>
</body></html>`

	got, err := HTMLToMarkdown(src)
	if err != nil {
		t.Fatalf("HTMLToMarkdown: %v", err)
	}

	for _, want := range []string{
		"# 发送应用消息",
		"[开发文档](https://example.com/doc)",
		"```json",
		"`access_token`",
		"![流程图](https://example.com/x.png)",
		"---",
		"| 参数 | 类型 |",
		"| touser | string |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, banned := range []string{"alert(1)", ".x{}", "<script", "<table"} {
		if strings.Contains(got, banned) {
			t.Errorf("output contains %q:\n%s", banned, got)
		}
	}
}

func TestHTMLToMarkdownPreservesBreaksInCode(t *testing.T) {
	got, err := HTMLToMarkdown(`<pre><code>line1<br>line2</code></pre>`)
	if err != nil {
		t.Fatalf("HTMLToMarkdown: %v", err)
	}
	if !strings.Contains(got, "line1\nline2") {
		t.Errorf("<br> not preserved as newline:\n%q", got)
	}
}

func TestHTMLToMarkdownCollapsesBlankRuns(t *testing.T) {
	got, err := HTMLToMarkdown(`<p>一</p><p></p><p></p><p>二</p>`)
	if err != nil {
		t.Fatalf("HTMLToMarkdown: %v", err)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank runs not collapsed:\n%q", got)
	}
}

func TestIsTaobaoChallenge(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"rgv marker", `{"ret":["RGV587_ERROR::SM"]}`, true},
		{"validate marker", `{"ret":["FAIL_SYS_USER_VALIDATE"]}`, true},
		{"punish url", `{"url":"https://g.alicdn.com/punish/x.html"}`, true},
		{"x5sec url", `{"url":"https://x.taobao.com/?x5secdata=1"}`, true},
		{"captcha action", `<form action=captcha>`, true},
		{"html body", `<html>checking your browser</html>`, true},
		{"clean object", `{"data":{"list":[]}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTaobaoChallenge([]byte(tc.body)); got != tc.want {
				t.Errorf("IsTaobaoChallenge = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBackoffDoubles(t *testing.T) {
	var s BackoffState
	if d := s.Next(); d != 5*time.Minute {
		t.Errorf("first backoff = %v, want 5m", d)
	}
	if d := s.Next(); d != 10*time.Minute {
		t.Errorf("second backoff = %v, want 10m", d)
	}
}

func TestSessionGuard(t *testing.T) {
	var g SessionGuard
	now := time.Now()

	if !g.NeedsRefresh(now) {
		t.Error("fresh guard should need refresh")
	}
	calls := 0
	if err := g.Refresh(now, func() error { calls++; return nil }); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// Second refresh within the window is a no-op.
	if err := g.Refresh(now.Add(time.Minute), func() error { calls++; return nil }); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if calls != 1 {
		t.Errorf("refresh fn ran %d times, want 1", calls)
	}
	if g.NeedsRefresh(now.Add(16 * time.Minute)) {
		// expected: stale after the 15 minute window
	} else {
		t.Error("guard should be stale after 16 minutes")
	}

	g.Invalidate()
	if !g.NeedsRefresh(now) {
		t.Error("invalidated guard should need refresh")
	}
}

func TestWecomPacerSteps(t *testing.T) {
	p := &WecomPacer{}
	p.count = 50
	if d := p.currentDelay(); d != 1200*time.Millisecond {
		t.Errorf("band 1 delay = %v", d)
	}
	p.count = 150
	if d := p.currentDelay(); d != 1800*time.Millisecond {
		t.Errorf("band 2 delay = %v", d)
	}
	p.count = 250
	if d := p.currentDelay(); d != 2500*time.Millisecond {
		t.Errorf("band 3 delay = %v", d)
	}
	p.Reset()
	if p.count != 0 {
		t.Errorf("reset did not clear counter")
	}
}

func TestPacerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &FixedPacer{Base: time.Hour}
	if err := p.Wait(ctx); err == nil {
		t.Error("expected context error from cancelled Wait")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("demo", func(Options) (Adapter, error) {
		return stubAdapter{id: "demo"}, nil
	})

	a, err := r.New("demo", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.SourceID() != "demo" {
		t.Errorf("SourceID = %q", a.SourceID())
	}
	if _, err := r.New("missing", Options{}); err == nil {
		t.Error("expected error for unknown source")
	}
	if ids := r.IDs(); len(ids) != 1 || ids[0] != "demo" {
		t.Errorf("IDs = %v", ids)
	}
}

type stubAdapter struct {
	Gate
	id string
}

func (s stubAdapter) SourceID() string   { return s.id }
func (s stubAdapter) SourceName() string { return s.id }
func (s stubAdapter) FetchCatalog(context.Context) ([]DocEntry, error) {
	return nil, nil
}
func (s stubAdapter) FetchContent(context.Context, DocEntry) (DocContent, error) {
	return DocContent{}, nil
}
func (s stubAdapter) DetectUpdates(context.Context, time.Time) ([]DocEntry, error) {
	return nil, nil
}
