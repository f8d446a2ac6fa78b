package storage

import (
	"database/sql"
	"fmt"
)

// UpsertErrorCodes replaces message, description and doc pointer for every
// (source, code) pair in one transaction.
func (s *Store) UpsertErrorCodes(sourceID string, codes []ErrorCode) error {
	if len(codes) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning error code upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO error_codes (source_id, code, message, description, doc_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, code) DO UPDATE SET
			message = excluded.message,
			description = excluded.description,
			doc_id = excluded.doc_id`)
	if err != nil {
		return fmt.Errorf("preparing error code upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range codes {
		if c.Code == "" {
			continue
		}
		if _, err := stmt.Exec(sourceID, c.Code, c.Message, c.Description, nullStr(c.DocID)); err != nil {
			return fmt.Errorf("upserting error code %s/%s: %w", sourceID, c.Code, err)
		}
	}

	return tx.Commit()
}

// FindErrorCode looks up entries with an exact code match across sources.
func (s *Store) FindErrorCode(code string) ([]ErrorCode, error) {
	rows, err := s.db.Query(`
		SELECT source_id, code, message, description, doc_id
		FROM error_codes WHERE code = ? ORDER BY source_id`, code)
	if err != nil {
		return nil, fmt.Errorf("finding error code %s: %w", code, err)
	}
	defer rows.Close()

	var codes []ErrorCode
	for rows.Next() {
		var c ErrorCode
		var docID sql.NullString
		if err := rows.Scan(&c.SourceID, &c.Code, &c.Message, &c.Description, &docID); err != nil {
			return nil, err
		}
		c.DocID = docID.String
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
