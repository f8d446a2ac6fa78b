package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/tokenizer"
)

// ErrInvalidInput marks validation failures on document input; the HTTP
// layer maps it to 400.
var ErrInvalidInput = errors.New("invalid document input")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func validateInput(in DocumentInput) error {
	if in.SourceID == "" || in.Path == "" || in.Title == "" || in.Content == "" {
		return fmt.Errorf("%w: source_id, path, title and content are required", ErrInvalidInput)
	}
	if in.DocType != "" {
		if _, ok := validDocTypes[in.DocType]; !ok {
			return fmt.Errorf("%w: unknown doc_type %q", ErrInvalidInput, in.DocType)
		}
	}
	if in.DevMode != "" && in.SourceID != "wecom" {
		return fmt.Errorf("%w: dev_mode is only valid for wecom documents", ErrInvalidInput)
	}
	return nil
}

// UpsertDocument inserts or updates a single document, returning the action
// taken ("created", "updated" or "unchanged") and the derived document id.
func (s *Store) UpsertDocument(in DocumentInput) (string, string, error) {
	return upsertDocument(s.db, in, time.Now().UTC())
}

func upsertDocument(q querier, in DocumentInput, now time.Time) (action, id string, err error) {
	if err := validateInput(in); err != nil {
		return "", "", err
	}
	if in.DocType == "" {
		in.DocType = DocTypeAPIReference
	}

	id = DocumentID(in.SourceID, in.Path)
	hash := ContentHash(in.Content)

	var oldHash string
	err = q.QueryRow("SELECT content_hash FROM documents WHERE id = ?", id).Scan(&oldHash)
	switch {
	case err == sql.ErrNoRows:
		if _, err := q.Exec(`INSERT INTO sources (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			in.SourceID, in.SourceID); err != nil {
			return "", "", fmt.Errorf("ensuring source %s: %w", in.SourceID, err)
		}
		_, err = q.Exec(`
			INSERT INTO documents (id, source_id, path, path_depth, title, api_path, dev_mode, doc_type,
				content, content_hash, prev_content_hash, source_url, metadata,
				tokenized_title, tokenized_content, last_updated, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?)`,
			id, in.SourceID, in.Path, PathDepth(in.Path), in.Title,
			nullStr(in.APIPath), nullStr(in.DevMode), in.DocType,
			in.Content, hash, nullStr(in.SourceURL), nullStr(in.Metadata),
			tokenizer.Join(tokenizer.Tokenize(in.Title)),
			tokenizer.Join(tokenizer.Tokenize(in.Content)),
			nullTime(in.LastUpdated), now.Format(time.RFC3339),
		)
		if err != nil {
			return "", "", fmt.Errorf("inserting document %s: %w", id, err)
		}
		return ActionCreated, id, nil

	case err != nil:
		return "", "", fmt.Errorf("checking document %s: %w", id, err)

	case oldHash == hash:
		return ActionUnchanged, id, nil

	default:
		_, err = q.Exec(`
			UPDATE documents SET
				path = ?, path_depth = ?, title = ?, api_path = ?, dev_mode = ?, doc_type = ?,
				content = ?, content_hash = ?, prev_content_hash = ?, source_url = ?, metadata = ?,
				tokenized_title = ?, tokenized_content = ?, last_updated = ?, synced_at = ?
			WHERE id = ?`,
			in.Path, PathDepth(in.Path), in.Title,
			nullStr(in.APIPath), nullStr(in.DevMode), in.DocType,
			in.Content, hash, oldHash, nullStr(in.SourceURL), nullStr(in.Metadata),
			tokenizer.Join(tokenizer.Tokenize(in.Title)),
			tokenizer.Join(tokenizer.Tokenize(in.Content)),
			nullTime(in.LastUpdated), now.Format(time.RFC3339),
			id,
		)
		if err != nil {
			return "", "", fmt.Errorf("updating document %s: %w", id, err)
		}
		return ActionUpdated, id, nil
	}
}

// BulkUpsert applies the per-document upsert logic for every input in a
// single transaction and recomputes the cached doc_count for the source.
// Partial batches are never visible: any error rolls the whole call back.
func (s *Store) BulkUpsert(sourceID string, inputs []DocumentInput) (SyncCounts, error) {
	var counts SyncCounts

	tx, err := s.db.Begin()
	if err != nil {
		return counts, fmt.Errorf("beginning bulk upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, in := range inputs {
		if in.SourceID == "" {
			in.SourceID = sourceID
		}
		if in.SourceID != sourceID {
			return SyncCounts{}, fmt.Errorf("%w: document %d has source %q, batch is for %q", ErrInvalidInput, i, in.SourceID, sourceID)
		}
		action, _, err := upsertDocument(tx, in, now)
		if err != nil {
			return SyncCounts{}, fmt.Errorf("document %d (%s): %w", i, in.Path, err)
		}
		switch action {
		case ActionCreated:
			counts.Created++
		case ActionUpdated:
			counts.Updated++
		case ActionUnchanged:
			counts.Unchanged++
		}
	}

	if _, err := tx.Exec(`
		UPDATE sources SET doc_count = (SELECT COUNT(*) FROM documents WHERE source_id = ?)
		WHERE id = ?`, sourceID, sourceID); err != nil {
		return SyncCounts{}, fmt.Errorf("recomputing doc_count for %s: %w", sourceID, err)
	}

	if err := tx.Commit(); err != nil {
		return SyncCounts{}, fmt.Errorf("committing bulk upsert: %w", err)
	}
	return counts, nil
}

const documentColumns = `id, source_id, path, path_depth, title, api_path, dev_mode, doc_type,
	content, content_hash, prev_content_hash, source_url, metadata,
	tokenized_title, tokenized_content, last_updated, synced_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	var apiPath, devMode, prevHash, sourceURL, metadata, lastUpdated sql.NullString
	var syncedAt string
	err := row.Scan(&d.ID, &d.SourceID, &d.Path, &d.PathDepth, &d.Title, &apiPath, &devMode, &d.DocType,
		&d.Content, &d.ContentHash, &prevHash, &sourceURL, &metadata,
		&d.TokenizedTitle, &d.TokenizedContent, &lastUpdated, &syncedAt)
	if err != nil {
		return Document{}, err
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

// GetDocument returns the document with the given id, or ErrNotFound.
func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("getting document %s: %w", id, err)
	}
	return d, nil
}

// DeleteDocument removes a document. The FTS row follows via trigger.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDocumentsBySource returns every document of a source ordered by path.
func (s *Store) GetDocumentsBySource(sourceID string) ([]Document, error) {
	return s.queryDocuments("SELECT "+documentColumns+" FROM documents WHERE source_id = ? ORDER BY path", sourceID)
}

// GetDocumentsByCategory returns documents of a source whose first path
// segment equals category, optionally filtered by dev_mode.
func (s *Store) GetDocumentsByCategory(sourceID, category, mode string, limit int) ([]Document, error) {
	query := "SELECT " + documentColumns + ` FROM documents
		WHERE source_id = ? AND (path = ? OR path LIKE ? || '/%')`
	args := []any{sourceID, category, category}
	if mode != "" {
		query += " AND dev_mode = ?"
		args = append(args, mode)
	}
	query += " ORDER BY path LIMIT ?"
	args = append(args, limit)
	return s.queryDocuments(query, args...)
}

// GetRecentDocuments returns documents updated within the last given days,
// newest first, optionally restricted to one source.
func (s *Store) GetRecentDocuments(sourceID string, days, limit int) ([]Document, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	query := "SELECT " + documentColumns + " FROM documents WHERE last_updated >= ?"
	args := []any{cutoff}
	if sourceID != "" {
		query += " AND source_id = ?"
		args = append(args, sourceID)
	}
	query += " ORDER BY last_updated DESC LIMIT ?"
	args = append(args, limit)
	return s.queryDocuments(query, args...)
}

func (s *Store) queryDocuments(query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Category is a first-path-segment grouping within a source.
type Category struct {
	SourceID string
	Name     string
	Count    int
}

// GetCategories groups documents by source and first path segment.
func (s *Store) GetCategories(sourceID string) ([]Category, error) {
	query := "SELECT source_id, path FROM documents"
	var args []any
	if sourceID != "" {
		query += " WHERE source_id = ?"
		args = append(args, sourceID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[[2]string]int)
	for rows.Next() {
		var src, path string
		if err := rows.Scan(&src, &path); err != nil {
			return nil, err
		}
		first := path
		if i := strings.IndexByte(path, '/'); i >= 0 {
			first = path[:i]
		}
		counts[[2]string{src, first}]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cats := make([]Category, 0, len(counts))
	for key, n := range counts {
		cats = append(cats, Category{SourceID: key[0], Name: key[1], Count: n})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].SourceID != cats[j].SourceID {
			return cats[i].SourceID < cats[j].SourceID
		}
		return cats[i].Name < cats[j].Name
	})
	return cats, nil
}

// CountDocuments returns the total number of stored documents.
func (s *Store) CountDocuments() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
