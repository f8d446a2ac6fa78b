// Package pinduoduo ingests Pinduoduo (拼多多) open-platform documentation
// from a local JSON dump. The platform gates its docs behind an
// authenticated session that cannot be scripted reliably, so an operator
// exports the dump with a logged-in browser and points PDD_JSON_PATH at it.
package pinduoduo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

type Adapter struct {
	adapter.Gate

	logger   *slog.Logger
	dumpPath string

	docs map[string]dumpDoc
}

type dumpDoc struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	APIPath  string `json:"api_path"`
	Updated  string `json:"updated"`
	URL      string `json:"url"`
}

func New(opts adapter.Options) (adapter.Adapter, error) {
	if opts.PDDJSONPath == "" {
		return nil, fmt.Errorf("pinduoduo adapter requires PDD_JSON_PATH")
	}
	a := &Adapter{
		logger:   slog.Default(),
		dumpPath: opts.PDDJSONPath,
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "pinduoduo" }
func (a *Adapter) SourceName() string { return "拼多多开放平台" }

func (a *Adapter) load() error {
	if a.docs != nil {
		return nil
	}
	data, err := os.ReadFile(a.dumpPath)
	if err != nil {
		return fmt.Errorf("reading pinduoduo dump: %w", err)
	}
	var docs []dumpDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("decoding pinduoduo dump: %w", err)
	}
	a.docs = make(map[string]dumpDoc, len(docs))
	for _, d := range docs {
		a.docs[d.ID] = d
	}
	return nil
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	if err := a.load(); err != nil {
		return nil, err
	}

	entries := make([]adapter.DocEntry, 0, len(a.docs))
	for _, d := range a.docs {
		category := d.Category
		if category == "" {
			category = "api"
		}
		var updated time.Time
		if t, err := time.Parse("2006-01-02", d.Updated); err == nil {
			updated = t.UTC()
		}
		entries = append(entries, adapter.DocEntry{
			Path:        category + "/" + d.ID,
			Title:       d.Title,
			APIPath:     d.APIPath,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   d.URL,
			PlatformID:  d.ID,
			LastUpdated: updated,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	a.logger.Info("pinduoduo dump loaded", "documents", len(entries))
	return entries, nil
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.load(); err != nil {
		return adapter.DocContent{}, err
	}
	d, ok := a.docs[entry.PlatformID]
	if !ok {
		return adapter.DocContent{}, fmt.Errorf("doc %s not in pinduoduo dump", entry.PlatformID)
	}

	markdown, err := adapter.HTMLToMarkdown(d.Content)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing pinduoduo doc %s: %w", d.ID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    d.APIPath,
		ErrorCodes: adapter.ExtractErrorCodes(markdown),
	}, nil
}
