package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertSource creates or renames a source. The cached doc_count is left to
// BulkUpsert; base_url is only overwritten when non-empty.
func (s *Store) UpsertSource(id, name, baseURL string) error {
	_, err := s.db.Exec(`
		INSERT INTO sources (id, name, base_url) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_url = COALESCE(excluded.base_url, sources.base_url)`,
		id, name, nullStr(baseURL))
	if err != nil {
		return fmt.Errorf("upserting source %s: %w", id, err)
	}
	return nil
}

// GetSources returns all sources ordered by id.
func (s *Store) GetSources() ([]Source, error) {
	rows, err := s.db.Query(`SELECT id, name, base_url, doc_count, last_synced, config FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		var baseURL, lastSynced, cfg sql.NullString
		if err := rows.Scan(&src.ID, &src.Name, &baseURL, &src.DocCount, &lastSynced, &cfg); err != nil {
			return nil, err
		}
		src.BaseURL = baseURL.String
		src.Config = cfg.String
		if lastSynced.Valid {
			if t, err := time.Parse(time.RFC3339, lastSynced.String); err == nil {
				src.LastSynced = t
			}
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetSource returns one source by id, or ErrNotFound.
func (s *Store) GetSource(id string) (Source, error) {
	var src Source
	var baseURL, lastSynced, cfg sql.NullString
	err := s.db.QueryRow(`SELECT id, name, base_url, doc_count, last_synced, config FROM sources WHERE id = ?`, id).
		Scan(&src.ID, &src.Name, &baseURL, &src.DocCount, &lastSynced, &cfg)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, fmt.Errorf("getting source %s: %w", id, err)
	}
	src.BaseURL = baseURL.String
	src.Config = cfg.String
	if lastSynced.Valid {
		if t, err := time.Parse(time.RFC3339, lastSynced.String); err == nil {
			src.LastSynced = t
		}
	}
	return src, nil
}

// SetSourceConfig replaces the opaque config blob of a source.
func (s *Store) SetSourceConfig(id, config string) error {
	res, err := s.db.Exec(`UPDATE sources SET config = ? WHERE id = ?`, nullStr(config), id)
	if err != nil {
		return fmt.Errorf("setting config for %s: %w", id, err)
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

// UpdateSourceSyncTime stamps last_synced with the current instant.
func (s *Store) UpdateSourceSyncTime(id string) error {
	res, err := s.db.Exec(`UPDATE sources SET last_synced = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating sync time for %s: %w", id, err)
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
