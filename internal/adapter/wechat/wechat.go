// Package wechat ingests the WeChat developer documentation. Two variants
// share one implementation: the mini-program docs and the WeChat shop
// (微信小店) docs differ only in their portal section and source identity.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const baseURL = "https://developers.weixin.qq.com"

type Adapter struct {
	adapter.Gate

	id      string
	name    string
	section string

	client *http.Client
	logger *slog.Logger
	pacer  adapter.Pacer

	catalogURL string
	contentURL string
}

// NewMiniprogram builds the mini-program documentation adapter.
func NewMiniprogram(opts adapter.Options) (adapter.Adapter, error) {
	return newAdapter("wechat_miniprogram", "微信小程序", "miniprogram", opts)
}

// NewShop builds the WeChat shop documentation adapter.
func NewShop(opts adapter.Options) (adapter.Adapter, error) {
	return newAdapter("wechat_shop", "微信小店", "store", opts)
}

func newAdapter(id, name, section string, opts adapter.Options) (adapter.Adapter, error) {
	a := &Adapter{
		id:         id,
		name:       name,
		section:    section,
		client:     &http.Client{Timeout: 20 * time.Second},
		logger:     slog.Default(),
		pacer:      &adapter.FixedPacer{Base: 700 * time.Millisecond, Jitter: 300 * time.Millisecond},
		catalogURL: baseURL + "/" + section + "/dev/api/catalog.json",
		contentURL: baseURL + "/" + section + "/dev/api",
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return a.id }
func (a *Adapter) SourceName() string { return a.name }

type catalogItem struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Updated string `json:"updated"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	body, err := a.get(ctx, a.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s catalog: %w", a.id, err)
	}

	var resp struct {
		Items []catalogItem `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s catalog: %w", a.id, err)
	}

	entries := make([]adapter.DocEntry, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Path == "" {
			continue
		}
		var updated time.Time
		if t, err := time.Parse("2006-01-02", item.Updated); err == nil {
			updated = t.UTC()
		}
		entries = append(entries, adapter.DocEntry{
			Path:        strings.Trim(item.Path, "/"),
			Title:       item.Title,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   a.contentURL + "/" + strings.Trim(item.Path, "/") + ".html",
			PlatformID:  item.Path,
			LastUpdated: updated,
		})
	}
	a.logger.Info("wechat catalog fetched", "source", a.id, "documents", len(entries))
	return entries, nil
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	body, err := a.get(ctx, a.contentURL+"/"+strings.Trim(entry.PlatformID, "/")+".html")
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("fetching %s doc %s: %w", a.id, entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(string(body))
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing %s doc %s: %w", a.id, entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    adapter.ExtractWeixinAPIPath(markdown),
		ErrorCodes: adapter.ExtractErrorCodes(markdown),
	}, nil
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}
