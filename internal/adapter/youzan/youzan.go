// Package youzan ingests the Youzan (有赞) cloud API documentation list.
package youzan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const (
	baseURL         = "https://doc.youzanyun.com"
	catalogEndpoint = baseURL + "/api/doc/list.json"
	contentEndpoint = baseURL + "/api/doc/detail.json"
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
		pacer:      &adapter.FixedPacer{Base: 500 * time.Millisecond, Jitter: 250 * time.Millisecond},
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

func (a *Adapter) SourceID() string   { return "youzan" }
func (a *Adapter) SourceName() string { return "有赞云" }

type docItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	APIName  string `json:"api_name"`
	Updated  string `json:"updated"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	body, err := a.get(ctx, a.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching youzan catalog: %w", err)
	}

	var resp struct {
		Data []docItem `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding youzan catalog: %w", err)
	}

	entries := make([]adapter.DocEntry, 0, len(resp.Data))
	for _, item := range resp.Data {
		category := item.Category
		if category == "" {
			category = "api"
		}
		name := item.APIName
		if name == "" {
			name = item.ID
		}
		var updated time.Time
		if t, err := time.Parse("2006-01-02", item.Updated); err == nil {
			updated = t.UTC()
		}
		entries = append(entries, adapter.DocEntry{
			Path:        category + "/" + name,
			Title:       item.Title,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   baseURL + "/doc#/content/" + item.ID,
			PlatformID:  item.ID,
			LastUpdated: updated,
		})
	}
	a.logger.Info("youzan catalog fetched", "documents", len(entries))
	return entries, nil
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	body, err := a.get(ctx, a.contentURL+"?id="+entry.PlatformID)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("fetching youzan doc %s: %w", entry.PlatformID, err)
	}

	var resp struct {
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.DocContent{}, fmt.Errorf("decoding youzan doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(resp.Data.Content)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing youzan doc %s: %w", entry.PlatformID, err)
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
