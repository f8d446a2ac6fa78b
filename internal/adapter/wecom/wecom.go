// Package wecom ingests the WeCom (企业微信) developer documentation site.
// The site serves one category tree covering three development modes; the
// mode of each leaf is recovered from its URL fragments.
package wecom

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/adapter/browser"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const (
	baseURL         = "https://developer.work.weixin.qq.com"
	catalogEndpoint = baseURL + "/docFetch/fetchDocList"
	contentEndpoint = baseURL + "/docFetch/fetchCnt"
	docPageFormat   = baseURL + "/document/path/%d"
)

// Adapter walks the WeCom documentation category tree.
type Adapter struct {
	adapter.Gate

	client  *http.Client
	logger  *slog.Logger
	browser browser.Driver
	pacer   adapter.Pacer
	session *cookieJar

	// overridable for tests.
	catalogURL   string
	contentURL   string
	captchaDelay time.Duration
	rateDelay    time.Duration
}

// New builds the adapter from runtime options. Cookies come from the
// WECOM_COOKIES credential (raw header string or JSON file path); when they
// fail the health check an interactive browser login is attempted.
func New(opts adapter.Options) (adapter.Adapter, error) {
	a := &Adapter{
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		browser:      opts.Browser,
		pacer:        &adapter.WecomPacer{},
		session:      newCookieJar(opts.WecomCookies),
		catalogURL:   catalogEndpoint,
		contentURL:   contentEndpoint,
		captchaDelay: captchaBackoff,
		rateDelay:    rateLimitBackoff,
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Logger != nil {
		a.logger = opts.Logger
	}
	return a, nil
}

func (a *Adapter) SourceID() string   { return "wecom" }
func (a *Adapter) SourceName() string { return "企业微信" }

// category is one node of the flat list the site returns.
type category struct {
	CategoryID int64  `json:"category_id"`
	ParentID   int64  `json:"parent_id"`
	Title      string `json:"title"`
	OrderID    int    `json:"order_id"`
	Status     int    `json:"status"`
	Type       int    `json:"type"`
	DocID      int64  `json:"doc_id"`
	URL        string `json:"url"`
	UpdateTime int64  `json:"update_time"`
}

type node struct {
	category
	children []*node
}

// FetchCatalog pulls the flat category list and walks the resulting tree
// depth-first, emitting one entry per leaf document.
func (a *Adapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	if p, ok := a.pacer.(*adapter.WecomPacer); ok {
		p.Reset()
	}
	if err := a.ensureSession(ctx); err != nil {
		return nil, err
	}

	cats, err := a.fetchCategoryList(ctx)
	if err != nil {
		return nil, err
	}
	roots := buildTree(cats)

	var entries []adapter.DocEntry
	seen := make(map[string]struct{})
	for i, root := range roots {
		seg := pathSegment(i+1, root.Title, root.CategoryID, seen)
		walkNode(root, []string{seg}, &entries)
	}
	a.logger.Info("wecom catalog fetched", "categories", len(cats), "documents", len(entries))
	return entries, nil
}

// DetectUpdates delegates to the full catalog; the upsert boundary skips
// unchanged content by hash.
func (a *Adapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return a.FetchCatalog(ctx)
}

// buildTree links the flat list into parent/child order, dropping nodes
// whose status is not 2 and sorting siblings by order_id, then by title
// under Chinese collation.
func buildTree(cats []category) []*node {
	zh := collate.New(language.Chinese)

	nodes := make(map[int64]*node, len(cats))
	for _, c := range cats {
		if c.Status != 2 {
			continue
		}
		nodes[c.CategoryID] = &node{category: c}
	}

	var roots []*node
	for _, n := range nodes {
		if parent, ok := nodes[n.ParentID]; ok && n.ParentID != n.CategoryID {
			parent.children = append(parent.children, n)
		} else {
			roots = append(roots, n)
		}
	}

	var sortChildren func(*node)
	sortChildren = func(n *node) {
		sort.SliceStable(n.children, func(i, j int) bool {
			a, b := n.children[i], n.children[j]
			if a.OrderID != b.OrderID {
				return a.OrderID < b.OrderID
			}
			return zh.CompareString(a.Title, b.Title) < 0
		})
		for _, c := range n.children {
			sortChildren(c)
		}
	}
	root := &node{children: roots}
	sortChildren(root)
	return root.children
}

// walkNode emits leaves depth-first. Folders (type 0, or doc-less nodes
// with children) recurse into a child namespace named by their ordinal
// slug; each namespace tracks its own slug collisions.
func walkNode(n *node, path []string, out *[]adapter.DocEntry) {
	if isFolder(n) {
		seen := make(map[string]struct{})
		for i, child := range n.children {
			seg := pathSegment(i+1, child.Title, child.CategoryID, seen)
			walkNode(child, append(path[:len(path):len(path)], seg), out)
		}
		return
	}
	*out = append(*out, leafEntry(n, path))
}

func isFolder(n *node) bool {
	return n.Type == 0 || (n.DocID == 0 && len(n.children) > 0)
}

func leafEntry(n *node, path []string) adapter.DocEntry {
	var updated time.Time
	if n.UpdateTime > 0 {
		updated = time.Unix(n.UpdateTime, 0).UTC()
	}
	return adapter.DocEntry{
		Path:        strings.Join(path, "/"),
		Title:       n.Title,
		DevMode:     devModeFromURL(n.URL),
		DocType:     storage.DocTypeAPIReference,
		SourceURL:   fmt.Sprintf(docPageFormat, n.DocID),
		PlatformID:  fmt.Sprintf("%d", n.DocID),
		LastUpdated: updated,
	}
}

// pathSegment builds "NNN-slug" with the ordinal zero-padded to three
// digits; slug collisions within one namespace get the category id
// appended.
func pathSegment(ordinal int, title string, categoryID int64, seen map[string]struct{}) string {
	slug := slugify(title)
	if slug == "" {
		slug = fmt.Sprintf("doc-%d", categoryID)
	}
	if _, dup := seen[slug]; dup {
		slug = fmt.Sprintf("%s-%d", slug, categoryID)
	}
	seen[slug] = struct{}{}
	return fmt.Sprintf("%03d-%s", ordinal, slug)
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify keeps the ASCII-representable part of a title: lowercased, with
// punctuation runs turned into single dashes.
func slugify(title string) string {
	s := strings.ToLower(title)
	s = slugStripRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// devModeFromURL recovers the development mode from the doc URL fragments
// the site uses to distinguish the three variants.
func devModeFromURL(url string) string {
	switch {
	case strings.Contains(url, "/is_third/1"):
		return storage.DevModeThirdParty
	case strings.Contains(url, "/is_sp/1"):
		return storage.DevModeServiceProvider
	default:
		return storage.DevModeInternal
	}
}
