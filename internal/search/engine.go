// Package search turns a query string into a scored, deduplicated result
// list over the document store, routed by query shape: plain keywords go
// through the FTS index, API paths and error codes resolve directly.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/storage"
	"github.com/wxkingstar/SpecFusion/internal/tokenizer"
)

// candidateCap bounds the FTS result set before scoring.
const candidateCap = 200

const (
	defaultLimit = 5
	maxLimit     = 20
)

// Options narrow a search to one source and/or one Wecom dev mode.
type Options struct {
	Source string
	Mode   string
	Limit  int
}

// Result is one ranked hit.
type Result struct {
	Doc        storage.Document
	Score      float64
	Snippet    string
	OtherModes []string
}

// Response carries the trimmed result page plus reporting fields.
type Response struct {
	Query   string
	Kind    string
	Results []Result
	Total   int
	TookMS  int64
	Source  string
}

// Engine executes classified queries against the store.
type Engine struct {
	store  *storage.Store
	db     *sql.DB
	logger *slog.Logger
}

func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, db: store.DB(), logger: slog.Default()}
}

// ClampLimit normalizes a requested page size into [1, 20], default 5.
func ClampLimit(limit int) int {
	if limit == 0 {
		return defaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Search runs one query end to end and writes the search_log row. The log
// row is written even when the caller has gone away by the time results are
// ready.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Response, error) {
	started := time.Now()
	query = strings.TrimSpace(query)
	opts.Limit = ClampLimit(opts.Limit)

	kind := Classify(query)
	var (
		results []Result
		total   int
		err     error
	)
	switch kind {
	case QueryErrorCode:
		results, err = e.searchErrorCode(ctx, query, opts)
		total = len(results)
	case QueryAPIPath:
		results, err = e.searchAPIPath(ctx, query, opts)
		total = len(results)
	default:
		results, total, err = e.searchKeyword(ctx, query, opts)
	}
	if err != nil {
		return Response{}, err
	}

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	took := time.Since(started).Milliseconds()
	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].Score
	}
	if logErr := e.store.LogSearch(query, opts.Source, total, topScore, took); logErr != nil {
		e.logger.Warn("writing search log failed", "error", logErr)
	}

	return Response{
		Query:   query,
		Kind:    kind,
		Results: results,
		Total:   total,
		TookMS:  took,
		Source:  opts.Source,
	}, nil
}

// searchErrorCode resolves a numeric code through the error_codes table,
// preferring linked documents, with a content LIKE fallback.
func (e *Engine) searchErrorCode(ctx context.Context, query string, opts Options) ([]Result, error) {
	code := stripErrcodePrefix(query)

	entries, err := e.store.FindErrorCode(code)
	if err != nil {
		return nil, err
	}

	var results []Result
	seen := map[string]struct{}{}
	for _, entry := range entries {
		if entry.DocID == "" {
			continue
		}
		if opts.Source != "" && entry.SourceID != opts.Source {
			continue
		}
		doc, err := e.store.GetDocument(entry.DocID)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.Mode != "" && doc.DevMode != opts.Mode {
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		results = append(results, Result{
			Doc:     doc,
			Score:   directHitScore,
			Snippet: Snippet(doc.Content, code, nil),
		})
		if len(results) >= opts.Limit {
			return results, nil
		}
	}
	if len(results) > 0 {
		return results, nil
	}

	// No linked document; fall back to a literal scan of stored content.
	q := "SELECT " + docColumns("documents") + " FROM documents WHERE content LIKE ?"
	args := []any{"%" + code + "%"}
	q, args = appendFilters(q, args, opts)
	q += " LIMIT ?"
	args = append(args, opts.Limit)

	docs, err := e.queryDocs(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		results = append(results, Result{
			Doc:     doc,
			Score:   directHitScore,
			Snippet: Snippet(doc.Content, code, nil),
		})
	}
	return results, nil
}

// searchAPIPath matches the query as a substring of api_path.
func (e *Engine) searchAPIPath(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := "SELECT " + docColumns("documents") + " FROM documents WHERE api_path LIKE ?"
	args := []any{"%" + query + "%"}
	q, args = appendFilters(q, args, opts)
	q += " ORDER BY path LIMIT ?"
	args = append(args, opts.Limit)

	docs, err := e.queryDocs(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		results = append(results, Result{
			Doc:     doc,
			Score:   directHitScore,
			Snippet: Snippet(doc.Content, query, nil),
		})
	}
	return results, nil
}

type candidate struct {
	doc     storage.Document
	ftsRank float64
}

// searchKeyword tokenizes the query, runs the FTS match (falling back to
// LIKE on FTS syntax errors), scores, deduplicates across dev modes and
// returns (page, pre-truncation total).
func (e *Engine) searchKeyword(ctx context.Context, query string, opts Options) ([]Result, int, error) {
	tokens := tokenizer.TokenizeQuery(query)
	if len(tokens) == 0 {
		return nil, 0, nil
	}

	candidates, err := e.ftsCandidates(ctx, tokens, opts)
	if err != nil {
		// Rare token characters can break the MATCH expression; degrade to
		// a per-token double LIKE rather than failing the query.
		e.logger.Debug("fts match failed, falling back to LIKE", "query", query, "error", err)
		candidates, err = e.likeCandidates(ctx, tokens, opts)
		if err != nil {
			return nil, 0, err
		}
	} else if len(candidates) == 0 {
		// The conjunctive MATCH can miss documents whose indexed stream
		// carries a compound word where the query produced its parts.
		candidates, err = e.likeCandidates(ctx, tokens, opts)
		if err != nil {
			return nil, 0, err
		}
	}

	now := time.Now().UTC()
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Doc:   c.doc,
			Score: round2(scoreDocument(c.doc, query, tokens, c.ftsRank, now)),
		})
	}
	sortResults(results)

	if opts.Mode == "" {
		results = dedupeModes(results)
	}
	total := len(results)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	for i := range results {
		results[i].Snippet = Snippet(results[i].Doc.Content, query, tokens)
	}
	return results, total, nil
}

func (e *Engine) ftsCandidates(ctx context.Context, tokens []string, opts Options) ([]candidate, error) {
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " ")

	q := "SELECT " + docColumns("d") + `, bm25(documents_fts) AS fts_rank
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?`
	args := []any{match}
	if opts.Source != "" {
		q += " AND d.source_id = ?"
		args = append(args, opts.Source)
	}
	if opts.Mode != "" {
		q += " AND d.dev_mode = ?"
		args = append(args, opts.Mode)
	}
	q += " LIMIT ?"
	args = append(args, candidateCap)

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		doc, err := scanDocWithRank(rows, &c.ftsRank)
		if err != nil {
			return nil, err
		}
		c.doc = doc
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (e *Engine) likeCandidates(ctx context.Context, tokens []string, opts Options) ([]candidate, error) {
	q := "SELECT " + docColumns("documents") + " FROM documents WHERE 1=1"
	var args []any
	for _, tok := range tokens {
		q += " AND (content LIKE ? OR title LIKE ?)"
		pat := "%" + tok + "%"
		args = append(args, pat, pat)
	}
	q, args = appendFilters(q, args, opts)
	q += " LIMIT ?"
	args = append(args, candidateCap)

	docs, err := e.queryDocs(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	candidates := make([]candidate, 0, len(docs))
	for _, doc := range docs {
		candidates = append(candidates, candidate{doc: doc})
	}
	return candidates, nil
}

// dedupeModes collapses near-duplicate hits that differ only in dev_mode,
// keeping the highest-scoring one and recording the modes it displaced.
// Callers supplying a mode filter skip this entirely.
func dedupeModes(results []Result) []Result {
	type key struct{ title, apiPath string }
	index := make(map[key]int)
	out := results[:0]
	for _, r := range results {
		k := key{r.Doc.Title, r.Doc.APIPath}
		if i, ok := index[k]; ok {
			if r.Doc.DevMode != "" && r.Doc.DevMode != out[i].Doc.DevMode {
				out[i].OtherModes = appendUnique(out[i].OtherModes, r.Doc.DevMode)
			}
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// sortResults orders by descending score, stable on ties by document id so
// output is deterministic.
func sortResults(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && less(results[j-1], results[j]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Doc.ID > b.Doc.ID
}

func appendFilters(q string, args []any, opts Options) (string, []any) {
	if opts.Source != "" {
		q += " AND source_id = ?"
		args = append(args, opts.Source)
	}
	if opts.Mode != "" {
		q += " AND dev_mode = ?"
		args = append(args, opts.Mode)
	}
	return q, args
}

func docColumns(alias string) string {
	cols := []string{"id", "source_id", "path", "path_depth", "title", "api_path", "dev_mode", "doc_type",
		"content", "content_hash", "prev_content_hash", "source_url", "metadata",
		"tokenized_title", "tokenized_content", "last_updated", "synced_at"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (e *Engine) queryDocs(ctx context.Context, query string, args ...any) ([]storage.Document, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		doc, err := scanDocWithRank(rows, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocWithRank(rows *sql.Rows, rank *float64) (storage.Document, error) {
	var d storage.Document
	var apiPath, devMode, prevHash, sourceURL, metadata, lastUpdated sql.NullString
	var syncedAt string

	dest := []any{&d.ID, &d.SourceID, &d.Path, &d.PathDepth, &d.Title, &apiPath, &devMode, &d.DocType,
		&d.Content, &d.ContentHash, &prevHash, &sourceURL, &metadata,
		&d.TokenizedTitle, &d.TokenizedContent, &lastUpdated, &syncedAt}
	if rank != nil {
		dest = append(dest, rank)
	}
	if err := rows.Scan(dest...); err != nil {
		return storage.Document{}, fmt.Errorf("scanning search row: %w", err)
	}

	d.APIPath = apiPath.String
	d.DevMode = devMode.String
	d.PrevContentHash = prevHash.String
	d.SourceURL = sourceURL.String
	d.Metadata = metadata.String
	if lastUpdated.Valid {
		if t, err := time.Parse(time.RFC3339, lastUpdated.String); err == nil {
			d.LastUpdated = t
		}
	}
	if t, err := time.Parse(time.RFC3339, syncedAt); err == nil {
		d.SyncedAt = t
	}
	return d, nil
}
