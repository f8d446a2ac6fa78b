package wecom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/wxkingstar/SpecFusion/internal/adapter/browser"
)

// healthCheckDocID is a long-lived public document used to probe whether
// the current cookies still carry a valid session.
const healthCheckDocID = 90664

const (
	loginURL          = baseURL + "/document/path/90664"
	loginReadySelector = ".doc-content"
)

// cookieJar holds the session cookies sent with every request. The
// credential may be a raw Cookie header string or a path to a JSON file of
// {name, value} pairs.
type cookieJar struct {
	header string
	file   string
}

func newCookieJar(credential string) *cookieJar {
	jar := &cookieJar{}
	if credential == "" {
		return jar
	}
	if strings.Contains(credential, "=") {
		jar.header = credential
		return jar
	}
	jar.file = credential
	jar.loadFile()
	return jar
}

func (j *cookieJar) loadFile() {
	if j.file == "" {
		return
	}
	data, err := os.ReadFile(j.file)
	if err != nil {
		return
	}
	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return
	}
	j.setCookies(cookies)
}

func (j *cookieJar) setCookies(cookies []browser.Cookie) {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	j.header = strings.Join(pairs, "; ")
}

func (j *cookieJar) apply(req *http.Request) {
	if j.header != "" {
		req.Header.Set("Cookie", j.header)
	}
}

func (j *cookieJar) persist(cookies []browser.Cookie) error {
	j.setCookies(cookies)
	if j.file == "" {
		return nil
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.file, data, 0o600)
}

// ensureSession probes the health-check document before a sync run. When
// the probe fails and a browser driver is available, a headful login is
// launched so a human can sign in; the resulting cookies are persisted.
func (a *Adapter) ensureSession(ctx context.Context) error {
	if a.healthCheck(ctx) {
		return nil
	}
	a.logger.Warn("wecom session invalid, attempting interactive login")

	if a.browser == nil {
		return fmt.Errorf("wecom session invalid and no browser available for login")
	}
	if err := a.interactiveLogin(ctx); err != nil {
		return fmt.Errorf("wecom interactive login: %w", err)
	}
	if !a.healthCheck(ctx) {
		return fmt.Errorf("wecom session still invalid after interactive login")
	}
	return nil
}

func (a *Adapter) healthCheck(ctx context.Context) bool {
	body, status, err := a.post(ctx, a.contentURL, map[string]any{"doc_id": fmt.Sprintf("%d", healthCheckDocID)})
	if err != nil || status != http.StatusOK {
		return false
	}
	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return resp.Data.Cnt != "" && !isCaptcha(body)
}

// interactiveLogin opens the documentation site in a headful page, waits
// for the human to finish logging in (the content selector appears), and
// captures the resulting cookies.
func (a *Adapter) interactiveLogin(ctx context.Context) error {
	page, err := a.browser.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Goto(ctx, loginURL); err != nil {
		return err
	}
	if err := page.WaitFor(ctx, loginReadySelector); err != nil {
		return err
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := a.session.persist(cookies); err != nil {
		a.logger.Warn("persisting wecom cookies failed", "error", err)
	}
	return nil
}
