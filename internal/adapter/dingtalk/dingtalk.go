// Package dingtalk ingests the DingTalk open-platform documentation. The
// catalog is rendered client-side, so it is extracted through a controlled
// browser page; a single page cannot navigate in parallel, which makes the
// adapter's effective concurrency 1.
package dingtalk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/adapter/browser"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const (
	baseURL     = "https://open.dingtalk.com"
	catalogPage = baseURL + "/document"

	catalogScript = `JSON.stringify(window.__INITIAL_STATE__.docs.tree)`
	navSelector   = ".doc-nav"
)

type Adapter struct {
	adapter.Gate

	logger  *slog.Logger
	browser browser.Driver
	pacer   adapter.Pacer

	// pageMu serializes navigation: one page, one goto at a time.
	pageMu sync.Mutex
	page   browser.Page
}

func New(opts adapter.Options) (adapter.Adapter, error) {
	if opts.Browser == nil {
		return nil, fmt.Errorf("dingtalk adapter requires a browser driver")
	}
	a := &Adapter{
		logger:  slog.Default(),
		browser: opts.Browser,
		pacer:   &adapter.FixedPacer{Base: 800 * time.Millisecond, Jitter: 400 * time.Millisecond},
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "dingtalk" }
func (a *Adapter) SourceName() string { return "钉钉开放平台" }

type treeNode struct {
	Slug     string     `json:"slug"`
	Title    string     `json:"title"`
	URL      string     `json:"url"`
	Children []treeNode `json:"children"`
}

// FetchCatalog drives the browser to the documentation portal and reads
// the navigation tree out of the page state.
func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	page, err := a.ensurePage(ctx)
	if err != nil {
		return nil, err
	}

	if err := page.Goto(ctx, catalogPage); err != nil {
		return nil, fmt.Errorf("loading dingtalk portal: %w", err)
	}
	if err := page.WaitFor(ctx, navSelector); err != nil {
		return nil, fmt.Errorf("waiting for dingtalk nav: %w", err)
	}

	raw, err := page.Evaluate(ctx, catalogScript)
	if err != nil {
		return nil, fmt.Errorf("extracting dingtalk tree: %w", err)
	}

	var roots []treeNode
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, fmt.Errorf("decoding dingtalk tree: %w", err)
	}

	var entries []adapter.DocEntry
	for _, root := range roots {
		collect(root, nil, &entries)
	}
	a.logger.Info("dingtalk catalog fetched", "documents", len(entries))
	return entries, nil
}

func collect(n treeNode, prefix []string, out *[]adapter.DocEntry) {
	seg := n.Slug
	if seg == "" {
		seg = n.Title
	}
	path := append(prefix[:len(prefix):len(prefix)], seg)
	if len(n.Children) == 0 {
		if n.URL == "" {
			return
		}
		*out = append(*out, adapter.DocEntry{
			Path:       strings.Join(path, "/"),
			Title:      n.Title,
			DocType:    storage.DocTypeAPIReference,
			SourceURL:  absoluteURL(n.URL),
			PlatformID: n.URL,
		})
		return
	}
	for _, child := range n.Children {
		collect(child, path, out)
	}
}

func absoluteURL(u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	return baseURL + u
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

// FetchContent navigates the shared page to the document and reads the
// rendered article body. Navigation is serialized on the page mutex.
func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	page, err := a.ensurePage(ctx)
	if err != nil {
		return adapter.DocContent{}, err
	}

	if err := page.Goto(ctx, absoluteURL(entry.PlatformID)); err != nil {
		return adapter.DocContent{}, fmt.Errorf("loading dingtalk doc %s: %w", entry.PlatformID, err)
	}
	if err := page.WaitFor(ctx, ".doc-article"); err != nil {
		return adapter.DocContent{}, fmt.Errorf("waiting for dingtalk doc %s: %w", entry.PlatformID, err)
	}

	htmlBody, err := page.Evaluate(ctx, `document.querySelector(".doc-article").outerHTML`)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("reading dingtalk doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(htmlBody)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing dingtalk doc %s: %w", entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    adapter.ExtractDingtalkAPIPath(markdown),
		ErrorCodes: adapter.ExtractErrorCodes(markdown),
	}, nil
}

// ensurePage opens the shared page on first use. Callers must hold pageMu.
func (a *Adapter) ensurePage(ctx context.Context) (browser.Page, error) {
	if a.page != nil {
		return a.page, nil
	}
	page, err := a.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening dingtalk page: %w", err)
	}
	a.page = page
	return page, nil
}
