package store

import (
	"database/sql"
	"fmt"
	"time"
)

// OutputUnchanged reports whether path was last written with hash.
func (s *Store) OutputUnchanged(path, hash string) (bool, error) {
	var prev string
	err := s.db.QueryRow(`SELECT hash FROM outputs WHERE path = ?`, path).Scan(&prev)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("output unchanged: %w", err)
	}
	return prev == hash, nil
}

// RecordOutput stores the hash of a written declaration file and the full
// names it declares, replacing any previous record for path.
func (s *Store) RecordOutput(path, hash string, names []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record output: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		`INSERT INTO outputs (path, hash, written_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, written_at = excluded.written_at
		 RETURNING id`,
		path, hash, time.Now().Truncate(time.Second),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("record output %s: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM declarations WHERE output_id = ?`, id); err != nil {
		return fmt.Errorf("record output %s: clear declarations: %w", path, err)
	}
	for _, n := range names {
		if _, err := tx.Exec(`INSERT INTO declarations (output_id, full_name) VALUES (?, ?)`, id, n); err != nil {
			return fmt.Errorf("record output %s: declaration %q: %w", path, n, err)
		}
	}
	return tx.Commit()
}

// Output returns the record for path, or nil when it was never written.
func (s *Store) Output(path string) (*OutputRecord, error) {
	o := &OutputRecord{}
	var writtenAt sql.NullTime
	err := s.db.QueryRow(`SELECT id, path, hash, written_at FROM outputs WHERE path = ?`, path).
		Scan(&o.ID, &o.Path, &o.Hash, &writtenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	o.WrittenAt = writtenAt.Time
	return o, nil
}

// ManifestRows lists every declared name with its declaration file,
// ordered by name then path.
func (s *Store) ManifestRows() ([]ManifestRow, error) {
	rows, err := s.db.Query(
		`SELECT d.full_name, o.path FROM declarations d
		 JOIN outputs o ON o.id = d.output_id
		 ORDER BY d.full_name, o.path`)
	if err != nil {
		return nil, fmt.Errorf("manifest rows: %w", err)
	}
	defer rows.Close()
	var out []ManifestRow
	for rows.Next() {
		var r ManifestRow
		if err := rows.Scan(&r.FullName, &r.Path); err != nil {
			return nil, fmt.Errorf("manifest rows: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
