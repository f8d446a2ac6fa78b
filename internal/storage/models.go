package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document types. Unknown values are rejected at the upsert boundary.
const (
	DocTypeAPIReference = "api_reference"
	DocTypeGuide        = "guide"
	DocTypeErrorCode    = "error_code"
	DocTypeEvent        = "event"
	DocTypeCardTemplate = "card_template"
	DocTypeChangelog    = "changelog"
)

var validDocTypes = map[string]struct{}{
	DocTypeAPIReference: {},
	DocTypeGuide:        {},
	DocTypeErrorCode:    {},
	DocTypeEvent:        {},
	DocTypeCardTemplate: {},
	DocTypeChangelog:    {},
}

// Wecom dev modes.
const (
	DevModeInternal        = "internal"
	DevModeThirdParty      = "third_party"
	DevModeServiceProvider = "service_provider"
)

// Upsert outcomes.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// Document is one normalized Markdown article.
type Document struct {
	ID               string
	SourceID         string
	Path             string
	PathDepth        int
	Title            string
	APIPath          string
	DevMode          string
	DocType          string
	Content          string
	ContentHash      string
	PrevContentHash  string
	SourceURL        string
	Metadata         string
	TokenizedTitle   string
	TokenizedContent string
	LastUpdated      time.Time
	SyncedAt         time.Time
}

// DocumentInput is what callers provide; id, hash, depth, tokenized streams
// and synced_at are computed at the upsert boundary.
type DocumentInput struct {
	SourceID    string
	Path        string
	Title       string
	APIPath     string
	DevMode     string
	DocType     string
	Content     string
	SourceURL   string
	Metadata    string
	LastUpdated time.Time
}

type Source struct {
	ID         string
	Name       string
	BaseURL    string
	DocCount   int
	LastSynced time.Time
	Config     string
}

type ErrorCode struct {
	SourceID    string
	Code        string
	Message     string
	Description string
	DocID       string
}

type SyncLog struct {
	ID         string
	SourceID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Counts     SyncCounts
	Error      string
}

type SyncCounts struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
}

type SearchLog struct {
	ID          int64
	Query       string
	Source      string
	ResultCount int
	TopScore    float64
	TookMS      int64
	CreatedAt   time.Time
}

// DocumentID derives the stable document id from (sourceID, path):
// sourceID + "_" + first 12 hex chars of SHA-256(path).
func DocumentID(sourceID, path string) string {
	sum := sha256.Sum256([]byte(path))
	return sourceID + "_" + hex.EncodeToString(sum[:])[:12]
}

// ContentHash is the SHA-256 of a document body, hex-encoded.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// PathDepth counts non-empty slash-delimited segments, minimum 1.
func PathDepth(path string) int {
	depth := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			depth++
		}
	}
	if depth < 1 {
		depth = 1
	}
	return depth
}
