package adapter

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrAntiBot marks a detected upstream challenge response. Adapters back
// off, refresh their session and retry a bounded number of times before
// surfacing it as run-fatal.
var ErrAntiBot = errors.New("anti-bot challenge detected")

var taobaoChallengeMarkers = []string{
	"RGV587_ERROR",
	"FAIL_SYS_USER_VALIDATE",
	"action=captcha",
}

// IsTaobaoChallenge classifies a response body as an anti-bot hit: known
// challenge markers, punish/x5sec redirect URLs, or any body that is not a
// JSON object at all.
func IsTaobaoChallenge(body []byte) bool {
	s := string(body)
	for _, marker := range taobaoChallengeMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	if strings.Contains(s, "punish") || strings.Contains(s, "x5sec") {
		return true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return true
	}
	return false
}

// BackoffState tracks challenge offenses within one run: 5 minutes on the
// first hit, doubled on the second.
type BackoffState struct {
	offenses int
}

const antiBotBaseBackoff = 5 * time.Minute

// Next records an offense and returns how long to back off.
func (s *BackoffState) Next() time.Duration {
	s.offenses++
	d := antiBotBaseBackoff
	if s.offenses > 1 {
		d *= 2
	}
	return d
}

func (s *BackoffState) Offenses() int {
	return s.offenses
}

// SessionGuard serializes session-token refreshes so only one refresh
// proceeds at a time per adapter instance, and tracks staleness against
// the 15-minute freshness window.
type SessionGuard struct {
	mu        sync.Mutex
	refreshed time.Time
}

const sessionMaxAge = 15 * time.Minute

// NeedsRefresh reports whether the session is older than the freshness
// window (or was never established).
func (g *SessionGuard) NeedsRefresh(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshed.IsZero() || now.Sub(g.refreshed) > sessionMaxAge
}

// Refresh runs fn under the guard's lock and stamps the refresh time on
// success. Concurrent callers block and then observe the fresh session.
func (g *SessionGuard) Refresh(now time.Time, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.refreshed.IsZero() && now.Sub(g.refreshed) <= sessionMaxAge {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	g.refreshed = now
	return nil
}

// Invalidate forces the next NeedsRefresh to report true.
func (g *SessionGuard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshed = time.Time{}
}
