// Package xiaohongshu ingests the Xiaohongshu (小红书) open-platform docs.
// The portal is a client-rendered app with no stable JSON endpoints, so
// both catalog and content go through a controlled browser page, one
// navigation at a time.
package xiaohongshu

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
	baseURL     = "https://open.xiaohongshu.com"
	catalogPage = baseURL + "/document"

	// linksScript collects the sidebar links as {href, title} pairs.
	linksScript = `JSON.stringify(Array.from(document.querySelectorAll(".menu a")).map(a => ({href: a.getAttribute("href"), title: a.textContent.trim()})))`
)

type Adapter struct {
	adapter.Gate

	logger  *slog.Logger
	browser browser.Driver
	pacer   adapter.Pacer

	pageMu sync.Mutex
	page   browser.Page
}

func New(opts adapter.Options) (adapter.Adapter, error) {
	if opts.Browser == nil {
		return nil, fmt.Errorf("xiaohongshu adapter requires a browser driver")
	}
	a := &Adapter{
		logger:  slog.Default(),
		browser: opts.Browser,
		pacer:   &adapter.FixedPacer{Base: time.Second, Jitter: 500 * time.Millisecond},
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "xiaohongshu" }
func (a *Adapter) SourceName() string { return "小红书开放平台" }

type link struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	page, err := a.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, catalogPage); err != nil {
		return nil, fmt.Errorf("loading xiaohongshu portal: %w", err)
	}
	if err := page.WaitFor(ctx, ".menu"); err != nil {
		return nil, fmt.Errorf("waiting for xiaohongshu menu: %w", err)
	}

	raw, err := page.Evaluate(ctx, linksScript)
	if err != nil {
		return nil, fmt.Errorf("extracting xiaohongshu links: %w", err)
	}
	var links []link
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("decoding xiaohongshu links: %w", err)
	}

	var entries []adapter.DocEntry
	seen := make(map[string]struct{})
	for _, l := range links {
		if l.Href == "" || l.Title == "" {
			continue
		}
		if _, dup := seen[l.Href]; dup {
			continue
		}
		seen[l.Href] = struct{}{}
		entries = append(entries, adapter.DocEntry{
			Path:       strings.Trim(strings.TrimPrefix(l.Href, "/document"), "/"),
			Title:      l.Title,
			DocType:    storage.DocTypeAPIReference,
			SourceURL:  baseURL + l.Href,
			PlatformID: l.Href,
		})
	}
	a.logger.Info("xiaohongshu catalog fetched", "documents", len(entries))
	return entries, nil
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

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
	if err := page.Goto(ctx, baseURL+entry.PlatformID); err != nil {
		return adapter.DocContent{}, fmt.Errorf("loading xiaohongshu doc %s: %w", entry.PlatformID, err)
	}
	if err := page.WaitFor(ctx, ".doc-body"); err != nil {
		return adapter.DocContent{}, fmt.Errorf("waiting for xiaohongshu doc %s: %w", entry.PlatformID, err)
	}

	htmlBody, err := page.Evaluate(ctx, `document.querySelector(".doc-body").outerHTML`)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("reading xiaohongshu doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(htmlBody)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing xiaohongshu doc %s: %w", entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
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
		return nil, fmt.Errorf("opening xiaohongshu page: %w", err)
	}
	a.page = page
	return page, nil
}
