// Package openapi ingests any OpenAPI 3 (or Swagger 2, via a compatibility
// shim) specification URL as a documentation source. Each path×method
// operation becomes one document.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const maxSpecSize = 50 << 20

var methods = []string{"get", "post", "put", "delete", "patch", "head", "options"}

// Adapter serves one spec URL. The spec is fetched once per run and reused
// by every FetchContent call.
type Adapter struct {
	adapter.Gate

	id      string
	name    string
	specURL string
	client  *http.Client
	logger  *slog.Logger

	doc map[string]any
}

// New builds an adapter for a dynamically registered OpenAPI source.
func New(id string, opts adapter.Options) (adapter.Adapter, error) {
	if opts.SpecURL == "" {
		return nil, fmt.Errorf("openapi source %q requires a spec url", id)
	}
	name := opts.DisplayName
	if name == "" {
		name = id
	}
	a := &Adapter{
		id:      id,
		name:    name,
		specURL: opts.SpecURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
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

// loadSpec fetches and parses the spec: JSON first, YAML on failure, then
// the Swagger 2 shim when the top level declares swagger "2.0".
func (a *Adapter) loadSpec(ctx context.Context) error {
	if a.doc != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.specURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching spec %s: %w", a.specURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching spec %s: status %d", a.specURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSize))
	if err != nil {
		return fmt.Errorf("reading spec %s: %w", a.specURL, err)
	}

	doc, err := parseSpec(data)
	if err != nil {
		return fmt.Errorf("parsing spec %s: %w", a.specURL, err)
	}
	a.doc = doc
	return nil
}

func parseSpec(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = nil
		if yamlErr := yaml.Unmarshal(data, &doc); yamlErr != nil {
			return nil, fmt.Errorf("neither JSON (%v) nor YAML (%v)", err, yamlErr)
		}
	}
	if swagger, _ := doc["swagger"].(string); swagger == "2.0" {
		doc = convertSwagger2(doc)
	}
	return doc, nil
}

// convertSwagger2 lifts a Swagger 2 document far enough into OpenAPI 3
// shape for the renderer: definitions stay addressable through their
// original ref paths, and in=body parameters become requestBody content.
func convertSwagger2(doc map[string]any) map[string]any {
	paths, _ := doc["paths"].(map[string]any)
	for _, raw := range paths {
		item, _ := raw.(map[string]any)
		for _, method := range methods {
			op, _ := item[method].(map[string]any)
			if op == nil {
				continue
			}
			params, _ := op["parameters"].([]any)
			var kept []any
			for _, p := range params {
				pm, _ := p.(map[string]any)
				if pm == nil {
					continue
				}
				if in, _ := pm["in"].(string); in == "body" {
					op["requestBody"] = map[string]any{
						"content": map[string]any{
							"application/json": map[string]any{"schema": pm["schema"]},
						},
					}
					continue
				}
				kept = append(kept, p)
			}
			op["parameters"] = kept

			// Swagger 2 responses carry schemas directly; wrap them the
			// OpenAPI 3 way so the renderer has one shape to handle.
			responses, _ := op["responses"].(map[string]any)
			for _, rv := range responses {
				rm, _ := rv.(map[string]any)
				if rm == nil {
					continue
				}
				if schema, ok := rm["schema"]; ok {
					rm["content"] = map[string]any{
						"application/json": map[string]any{"schema": schema},
					}
					delete(rm, "schema")
				}
			}
		}
	}
	return doc
}

// FetchCatalog emits one entry per path×method operation.
func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	if err := a.loadSpec(ctx); err != nil {
		return nil, err
	}

	paths, _ := a.doc["paths"].(map[string]any)
	routes := make([]string, 0, len(paths))
	for route := range paths {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	var entries []adapter.DocEntry
	for _, route := range routes {
		item, _ := paths[route].(map[string]any)
		for _, method := range methods {
			op, _ := item[method].(map[string]any)
			if op == nil {
				continue
			}
			upper := strings.ToUpper(method)

			tag := "default"
			if tags, _ := op["tags"].([]any); len(tags) > 0 {
				if t, _ := tags[0].(string); t != "" {
					tag = t
				}
			}

			title, _ := op["summary"].(string)
			if title == "" {
				title = upper + " " + route
			}

			platformID, _ := op["operationId"].(string)
			if platformID == "" {
				platformID = method + "-" + route
			}

			entries = append(entries, adapter.DocEntry{
				Path:       tag + "/" + upper + " " + route,
				Title:      title,
				APIPath:    upper + " " + route,
				DocType:    storage.DocTypeAPIReference,
				SourceURL:  a.specURL,
				PlatformID: platformID,
			})
		}
	}
	a.logger.Info("openapi catalog built", "source", a.id, "operations", len(entries))
	return entries, nil
}

// DetectUpdates reloads the whole catalog; content hashes sort out the
// rest.
func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

// FetchContent renders the operation named by the entry's api path.
func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.loadSpec(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	method, route, ok := strings.Cut(entry.APIPath, " ")
	if !ok {
		return adapter.DocContent{}, fmt.Errorf("malformed api path %q", entry.APIPath)
	}

	paths, _ := a.doc["paths"].(map[string]any)
	item, _ := paths[route].(map[string]any)
	op, _ := item[strings.ToLower(method)].(map[string]any)
	if op == nil {
		return adapter.DocContent{}, fmt.Errorf("operation %s not found in spec", entry.APIPath)
	}

	markdown, errorCodes := renderOperation(a.doc, method, route, op)
	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    entry.APIPath,
		ErrorCodes: errorCodes,
	}, nil
}
