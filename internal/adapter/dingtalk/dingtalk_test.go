package dingtalk

import (
	"context"
	"strings"
	"testing"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/adapter/browser"
)

type fakePage struct {
	evalResults map[string]string
	gotos       []string
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	p.gotos = append(p.gotos, url)
	return nil
}
func (p *fakePage) WaitFor(ctx context.Context, selector string) error { return nil }
func (p *fakePage) Click(ctx context.Context, selector string) error   { return nil }
func (p *fakePage) Evaluate(ctx context.Context, expr string) (string, error) {
	return p.evalResults[expr], nil
}
func (p *fakePage) Cookies(ctx context.Context) ([]browser.Cookie, error) { return nil, nil }
func (p *fakePage) Close() error                                          { return nil }

type fakeDriver struct {
	page *fakePage
}

func (d *fakeDriver) NewPage(ctx context.Context) (browser.Page, error) { return d.page, nil }
func (d *fakeDriver) Close() error                                      { return nil }

func TestRequiresBrowser(t *testing.T) {
	if _, err := New(adapter.Options{}); err == nil {
		t.Fatal("expected error without a browser driver")
	}
}

func TestCatalogAndContentThroughBrowser(t *testing.T) {
	page := &fakePage{
		evalResults: map[string]string{
			catalogScript: `[
				{"slug":"api","title":"服务端 API","children":[
					{"slug":"oauth","title":"获取企业凭证","url":"/document/api/oauth"}
				]}
			]`,
			`document.querySelector(".doc-article").outerHTML`: `<div class="doc-article"><h1>获取企业凭证</h1><p>POST /v1.0/oauth2/accessToken</p></div>`,
		},
	}
	raw, err := New(adapter.Options{Browser: &fakeDriver{page: page}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := raw.(*Adapter)
	a.pacer = noopPacer{}

	entries, err := a.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Path != "api/oauth" {
		t.Errorf("path = %q", entries[0].Path)
	}

	got, err := a.FetchContent(context.Background(), entries[0])
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "# 获取企业凭证") {
		t.Errorf("markdown = %q", got.Markdown)
	}
	if got.APIPath != "POST /v1.0/oauth2/accessToken" {
		t.Errorf("api path = %q", got.APIPath)
	}
	if len(page.gotos) != 2 {
		t.Errorf("gotos = %v, want portal then document", page.gotos)
	}
}

type noopPacer struct{}

func (noopPacer) Wait(context.Context) error { return nil }
