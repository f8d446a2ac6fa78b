package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
)

const (
	captchaErrCode    = 500003
	captchaRetries    = 3
	rateLimitRetries  = 5
	captchaBackoff    = 3 * time.Second
	rateLimitBackoff  = 1500 * time.Millisecond
	maxContentBodyLen = 10 << 20
)

// fetchCategoryList issues the single catalog POST.
func (a *Adapter) fetchCategoryList(ctx context.Context) ([]category, error) {
	body, err := a.postJSON(ctx, a.catalogURL, map[string]any{"doc_ids": []int64{}})
	if err != nil {
		return nil, fmt.Errorf("fetching category list: %w", err)
	}

	var resp struct {
		Data struct {
			List []category `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding category list: %w", err)
	}
	return resp.Data.List, nil
}

type contentResponse struct {
	Result struct {
		ErrCode int `json:"errCode"`
	} `json:"result"`
	Data struct {
		Cnt  string          `json:"cnt"`
		Time string          `json:"time"`
		Extra json.RawMessage `json:"extra"`
	} `json:"data"`
}

// FetchContent primes cookies with a GET of the doc page (which also
// yields HTML for date extraction), then POSTs the content endpoint.
// Captcha and 429 responses back off on their own ladders before the run
// gives up on the document.
func (a *Adapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return adapter.DocContent{}, err
	}

	pageHTML, _ := a.getDocPage(ctx, entry.SourceURL)

	body, err := a.fetchCnt(ctx, entry.PlatformID)
	if err != nil {
		return adapter.DocContent{}, err
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.DocContent{}, fmt.Errorf("decoding content for doc %s: %w", entry.PlatformID, err)
	}

	markdown, err := adapter.HTMLToMarkdown(resp.Data.Cnt)
	if err != nil {
		return adapter.DocContent{}, fmt.Errorf("normalizing doc %s: %w", entry.PlatformID, err)
	}

	meta := map[string]string{}
	if updated := extractUpdateTime(resp, pageHTML); !updated.IsZero() {
		meta["last_updated"] = updated.Format("2006-01-02")
	}

	return adapter.DocContent{
		Markdown:   markdown,
		APIPath:    adapter.ExtractWecomAPIPath(markdown),
		ErrorCodes: adapter.ExtractErrorCodes(markdown),
		Metadata:   meta,
	}, nil
}

// fetchCnt retries through the captcha and rate-limit ladders.
func (a *Adapter) fetchCnt(ctx context.Context, platformID string) ([]byte, error) {
	captchaHits := 0
	rateHits := 0
	for {
		body, status, err := a.post(ctx, a.contentURL, map[string]any{"doc_id": platformID})
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			rateHits++
			if rateHits > rateLimitRetries {
				return nil, fmt.Errorf("doc %s: rate limited after %d retries", platformID, rateLimitRetries)
			}
			if err := backoff(ctx, a.rateDelay*time.Duration(rateHits)); err != nil {
				return nil, err
			}
			continue
		}

		if isCaptcha(body) {
			captchaHits++
			if captchaHits > captchaRetries {
				return nil, fmt.Errorf("doc %s: %w after %d retries", platformID, adapter.ErrAntiBot, captchaRetries)
			}
			a.logger.Warn("wecom captcha hit, backing off", "doc", platformID, "attempt", captchaHits)
			if err := backoff(ctx, a.captchaDelay*time.Duration(captchaHits)); err != nil {
				return nil, err
			}
			continue
		}

		if status != http.StatusOK {
			return nil, fmt.Errorf("doc %s: unexpected status %d", platformID, status)
		}
		return body, nil
	}
}

func isCaptcha(body []byte) bool {
	if bytes.Contains(body, []byte("showDeveloperCaptcha")) {
		return true
	}
	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Result.ErrCode == captchaErrCode {
		return true
	}
	return false
}

var lastUpdateRe = regexp.MustCompile(`最后更新：(\d{4}-\d{2}-\d{2})`)

// extractUpdateTime picks the most recent candidate among the content
// payload's time field, the rendered page's 最后更新 marker, and the extra
// blob's update fields.
func extractUpdateTime(resp contentResponse, pageHTML string) time.Time {
	var best time.Time
	consider := func(t time.Time) {
		if !t.IsZero() && t.After(best) {
			best = t
		}
	}

	consider(parseDate(resp.Data.Time))

	if m := lastUpdateRe.FindStringSubmatch(pageHTML); m != nil {
		consider(parseDate(m[1]))
	}

	if len(resp.Data.Extra) > 0 {
		var extra struct {
			UpdateTime        json.Number `json:"update_time"`
			LastUpdateTime    json.Number `json:"last_update_time"`
			LastUpdateTimeStr string      `json:"last_update_time_str"`
		}
		if err := json.Unmarshal(resp.Data.Extra, &extra); err == nil {
			consider(parseUnix(extra.UpdateTime))
			consider(parseUnix(extra.LastUpdateTime))
			consider(parseDate(extra.LastUpdateTimeStr))
		}
	}
	return best
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseUnix(n json.Number) time.Time {
	v, err := n.Int64()
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func (a *Adapter) getDocPage(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	a.session.apply(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBodyLen))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (a *Adapter) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, status, err := a.post(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("POST %s: status %d", url, status)
	}
	return body, nil
}

func (a *Adapter) post(ctx context.Context, url string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	a.session.apply(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBodyLen))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func backoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
