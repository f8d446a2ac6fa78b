// Package douyin ingests the Douyin (抖音) open-platform documentation via
// its JSON directory endpoints.
package douyin

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
	baseURL         = "https://developer.open-douyin.com"
	catalogEndpoint = baseURL + "/api/docs/v1/directory"
	contentEndpoint = baseURL + "/api/docs/v1/article"
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
		pacer:      &adapter.FixedPacer{Base: 600 * time.Millisecond, Jitter: 300 * time.Millisecond},
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

func (a *Adapter) SourceID() string   { return "douyin" }
func (a *Adapter) SourceName() string { return "抖音开放平台" }

type dirNode struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	UpdatedAt int64     `json:"updated_at"`
	Children  []dirNode `json:"children"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	body, err := a.get(ctx, a.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching douyin directory: %w", err)
	}

	var resp struct {
		Data []dirNode `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding douyin directory: %w", err)
	}

	var entries []adapter.DocEntry
	for _, root := range resp.Data {
		collect(root, nil, &entries)
	}
	a.logger.Info("douyin catalog fetched", "documents", len(entries))
	return entries, nil
}

func collect(n dirNode, prefix []string, out *[]adapter.DocEntry) {
	seg := n.Slug
	if seg == "" {
		seg = n.Title
	}
	path := append(prefix[:len(prefix):len(prefix)], seg)
	if len(n.Children) == 0 {
		if n.ArticleID == "" {
			return
		}
		var updated time.Time
		if n.UpdatedAt > 0 {
			updated = time.Unix(n.UpdatedAt, 0).UTC()
		}
		*out = append(*out, adapter.DocEntry{
			Path:        strings.Join(path, "/"),
			Title:       n.Title,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   baseURL + "/docs/" + n.ArticleID,
			PlatformID:  n.ArticleID,
			LastUpdated: updated,
		})
		return
	}
	for _, child := range n.Children {
		collect(child, path, out)
	}
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	body, err := a.get(ctx, a.contentURL+"?article_id="+entry.PlatformID)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("fetching douyin doc %s: %w", entry.PlatformID, err)
	}

	var resp struct {
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.DocContent{}, fmt.Errorf("decoding douyin doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(resp.Data.Content)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing douyin doc %s: %w", entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
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
