// Package feishu ingests the Feishu (飞书) open-platform documentation.
// The platform serves its document tree as JSON; document bodies arrive as
// HTML fragments.
package feishu

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

const (
	baseURL         = "https://open.feishu.cn"
	catalogEndpoint = baseURL + "/document_portal/v1/document/get_catalog"
	contentEndpoint = baseURL + "/document_portal/v1/document/get_detail"
)

type Adapter struct {
	adapter.Gate

	client *http.Client
	logger *slog.Logger
	pacer  adapter.Pacer

	catalogURL string
	contentURL string
}

func New(opts adapter.Options) (adapter.Adapter, error) {
	a := &Adapter{
		client:     &http.Client{Timeout: 20 * time.Second},
		logger:     slog.Default(),
		pacer:      &adapter.FixedPacer{Base: 500 * time.Millisecond, Jitter: 300 * time.Millisecond},
		catalogURL: catalogEndpoint,
		contentURL: contentEndpoint,
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "feishu" }
func (a *Adapter) SourceName() string { return "飞书开放平台" }

type catalogNode struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	FullPath string        `json:"fullPath"`
	UpdateAt int64         `json:"update_time"`
	Children []catalogNode `json:"children"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	body, err := a.get(ctx, a.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching feishu catalog: %w", err)
	}

	var resp struct {
		Data struct {
			Catalog []catalogNode `json:"catalog"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding feishu catalog: %w", err)
	}

	var entries []adapter.DocEntry
	for _, root := range resp.Data.Catalog {
		collect(root, nil, &entries)
	}
	a.logger.Info("feishu catalog fetched", "documents", len(entries))
	return entries, nil
}

func collect(n catalogNode, prefix []string, out *[]adapter.DocEntry) {
	seg := segment(n)
	path := append(prefix[:len(prefix):len(prefix)], seg)
	if len(n.Children) == 0 {
		if n.ID == "" {
			return
		}
		var updated time.Time
		if n.UpdateAt > 0 {
			updated = time.Unix(n.UpdateAt, 0).UTC()
		}
		*out = append(*out, adapter.DocEntry{
			Path:        strings.Join(path, "/"),
			Title:       n.Name,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   baseURL + "/document/" + n.FullPath,
			PlatformID:  n.ID,
			LastUpdated: updated,
		})
		return
	}
	for _, child := range n.Children {
		collect(child, path, out)
	}
}

func segment(n catalogNode) string {
	if n.FullPath != "" {
		parts := strings.Split(n.FullPath, "/")
		return parts[len(parts)-1]
	}
	return n.ID
}

// DetectUpdates returns the full catalog; hashes short-circuit unchanged
// documents downstream.
func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	body, err := a.get(ctx, a.contentURL+"?id="+entry.PlatformID)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("fetching feishu doc %s: %w", entry.PlatformID, err)
	}

	var resp struct {
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.DocContent{}, fmt.Errorf("decoding feishu doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(resp.Data.Content)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing feishu doc %s: %w", entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    adapter.ExtractFeishuAPIPath(markdown),
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
