package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSyncLog opens a sync_log row with status "running" and returns its id.
func (s *Store) CreateSyncLog(sourceID string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO sync_logs (id, source_id, started_at, status)
		VALUES (?, ?, ?, 'running')`,
		id, sourceID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("creating sync log for %s: %w", sourceID, err)
	}
	return id, nil
}

// UpdateSyncLog closes a sync_log row with the final status and counts.
func (s *Store) UpdateSyncLog(id, status string, counts SyncCounts, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE sync_logs SET
			finished_at = ?, status = ?, created = ?, updated = ?, unchanged = ?, deleted = ?, error = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status,
		counts.Created, counts.Updated, counts.Unchanged, counts.Deleted,
		nullStr(errMsg), id)
	if err != nil {
		return fmt.Errorf("updating sync log %s: %w", id, err)
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

// LastSyncLog returns the most recent finished sync_log for a source, or
// ErrNotFound.
func (s *Store) LastSyncLog(sourceID string) (SyncLog, error) {
	var l SyncLog
	var finishedAt, errMsg sql.NullString
	var startedAt string
	err := s.db.QueryRow(`
		SELECT id, source_id, started_at, finished_at, status, created, updated, unchanged, deleted, error
		FROM sync_logs WHERE source_id = ? AND status != 'running'
		ORDER BY started_at DESC LIMIT 1`, sourceID).
		Scan(&l.ID, &l.SourceID, &startedAt, &finishedAt, &l.Status,
			&l.Counts.Created, &l.Counts.Updated, &l.Counts.Unchanged, &l.Counts.Deleted, &errMsg)
	if err == sql.ErrNoRows {
		return SyncLog{}, ErrNotFound
	}
	if err != nil {
		return SyncLog{}, fmt.Errorf("getting last sync log for %s: %w", sourceID, err)
	}
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		l.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			l.FinishedAt = t
		}
	}
	l.Error = errMsg.String
	return l, nil
}

// LogSearch appends one row to search_logs. Every query, including
// zero-result ones, is recorded.
func (s *Store) LogSearch(query, source string, resultCount int, topScore float64, tookMS int64) error {
	var score any
	if resultCount > 0 {
		score = topScore
	}
	_, err := s.db.Exec(`
		INSERT INTO search_logs (query, source, result_count, top_score, took_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		query, nullStr(source), resultCount, score, tookMS,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("logging search: %w", err)
	}
	return nil
}

// CountSearchLogs returns the number of recorded searches (test aid and
// health reporting).
func (s *Store) CountSearchLogs() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM search_logs").Scan(&n)
	return n, err
}
