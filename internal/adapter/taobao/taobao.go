// Package taobao ingests the Taobao open-platform API documentation via
// its mtop JSON endpoints. The platform challenges aggressive clients, so
// every response passes the anti-bot classifier, the session token is
// refreshed on a 15-minute cadence, and pacing takes a one-minute break
// every hundred requests.
package taobao

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
	baseURL         = "https://open.taobao.com"
	catalogEndpoint = baseURL + "/handler/document/categoryList.json"
	contentEndpoint = baseURL + "/handler/document/detail.json"
	tokenEndpoint   = baseURL + "/handler/document/token.json"

	antiBotRetries = 2
)

type Adapter struct {
	adapter.Gate

	client  *http.Client
	logger  *slog.Logger
	pacer   adapter.Pacer
	session adapter.SessionGuard
	backoff adapter.BackoffState
	token   string

	catalogURL string
	contentURL string
	tokenURL   string

	// backoffScale shrinks the anti-bot backoff in tests.
	backoffScale time.Duration
}

func New(opts adapter.Options) (adapter.Adapter, error) {
	a := &Adapter{
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		pacer:        &adapter.TaobaoPacer{},
		catalogURL:   catalogEndpoint,
		contentURL:   contentEndpoint,
		tokenURL:     tokenEndpoint,
		backoffScale: time.Minute,
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "taobao" }
func (a *Adapter) SourceName() string { return "淘宝开放平台" }

type apiDoc struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	UpdateDate string `json:"updateDate"`
}

func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	body, err := a.fetchJSON(ctx, a.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching taobao catalog: %w", err)
	}

	var resp struct {
		Data struct {
			List []apiDoc `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding taobao catalog: %w", err)
	}

	entries := make([]adapter.DocEntry, 0, len(resp.Data.List))
	for _, doc := range resp.Data.List {
		category := doc.Category
		if category == "" {
			category = "api"
		}
		var updated time.Time
		if t, err := time.Parse("2006-01-02", doc.UpdateDate); err == nil {
			updated = t.UTC()
		}
		entries = append(entries, adapter.DocEntry{
			Path:        category + "/" + doc.Name,
			Title:       doc.Name,
			DocType:     storage.DocTypeAPIReference,
			SourceURL:   baseURL + "/api.htm?docId=" + doc.ID,
			PlatformID:  doc.ID,
			LastUpdated: updated,
		})
	}
	a.logger.Info("taobao catalog fetched", "documents", len(entries))
	return entries, nil
}

func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	body, err := a.fetchJSON(ctx, a.contentURL+"?docId="+entry.PlatformID)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("fetching taobao doc %s: %w", entry.PlatformID, err)
	}

	var resp struct {
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.DocContent{}, fmt.Errorf("decoding taobao doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(resp.Data.Content)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing taobao doc %s: %w", entry.PlatformID, err)
	}

	return adapter.DocContent{
		Markdown:   markdown,
		ErrorCodes: adapter.ExtractErrorCodes(markdown),
	}, nil
}

// fetchJSON performs one GET under the anti-bot regime: session kept
// fresh, challenge responses classified, bounded retries with doubling
// backoff, then a fatal error.
func (a *Adapter) fetchJSON(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if a.session.NeedsRefresh(time.Now()) {
			if err := a.session.Refresh(time.Now(), func() error { return a.refreshToken(ctx) }); err != nil {
				return nil, fmt.Errorf("refreshing taobao session: %w", err)
			}
		}

		body, err := a.get(ctx, url)
		if err != nil {
			return nil, err
		}
		if !adapter.IsTaobaoChallenge(body) {
			return body, nil
		}

		if attempt >= antiBotRetries {
			return nil, fmt.Errorf("%w: giving up on %s after %d retries", adapter.ErrAntiBot, url, antiBotRetries)
		}

		wait := a.scaledBackoff()
		a.logger.Warn("taobao anti-bot challenge, backing off",
			"url", url, "offense", a.backoff.Offenses(), "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		a.session.Invalidate()
	}
}

// scaledBackoff maps the 5-minute base (doubled on the second offense)
// through the test-scalable unit.
func (a *Adapter) scaledBackoff() time.Duration {
	minutes := a.backoff.Next() / time.Minute
	return time.Duration(minutes) * a.backoffScale
}

func (a *Adapter) refreshToken(ctx context.Context) error {
	body, err := a.get(ctx, a.tokenURL)
	if err != nil {
		return err
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if resp.Data.Token == "" {
		return fmt.Errorf("empty session token")
	}
	a.token = resp.Data.Token
	return nil
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a.token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		req.URL, err = req.URL.Parse(url + sep + "token=" + a.token)
		if err != nil {
			return nil, err
		}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
