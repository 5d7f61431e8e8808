package store

import (
	"database/sql"
	"fmt"
	"time"
)

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// RecordUnit replaces everything recorded for the snapshot's unit.
func (s *Store) RecordUnit(snap *UnitSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record unit: begin: %w", err)
	}
	defer tx.Rollback()
	if err := recordUnitTx(tx, snap); err != nil {
		return err
	}
	return tx.Commit()
}

func recordUnitTx(tx sqlExecer, snap *UnitSnapshot) error {
	u := &snap.Unit
	if u.LastBuilt.IsZero() {
		u.LastBuilt = time.Now().Truncate(time.Second)
	}
	err := tx.QueryRow(
		`INSERT INTO units (path, hash, third_party, global_document, last_built)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   hash = excluded.hash,
		   third_party = excluded.third_party,
		   global_document = excluded.global_document,
		   last_built = excluded.last_built
		 RETURNING id`,
		u.Path, u.Hash, u.ThirdParty, u.GlobalDocument, u.LastBuilt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("record unit %s: %w", u.Path, err)
	}

	if _, err := tx.Exec(`DELETE FROM modules WHERE unit_id = ?`, u.ID); err != nil {
		return fmt.Errorf("record unit %s: clear modules: %w", u.Path, err)
	}
	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE unit_id = ?`, u.ID); err != nil {
		return fmt.Errorf("record unit %s: clear diagnostics: %w", u.Path, err)
	}

	for i := range snap.Modules {
		m := &snap.Modules[i]
		m.UnitID = u.ID
		res, err := tx.Exec(
			`INSERT INTO modules (unit_id, full_name, kind, used) VALUES (?, ?, ?, ?)`,
			m.UnitID, m.FullName, m.Kind, m.Used)
		if err != nil {
			return fmt.Errorf("record unit %s: module %q: %w", u.Path, m.FullName, err)
		}
		m.ID, _ = res.LastInsertId()
	}
	for i := range snap.Diagnostics {
		d := &snap.Diagnostics[i]
		d.UnitID = u.ID
		res, err := tx.Exec(
			`INSERT INTO diagnostics (unit_id, severity, code, message, line, col) VALUES (?, ?, ?, ?, ?, ?)`,
			d.UnitID, d.Severity, d.Code, d.Message, d.Line, d.Col)
		if err != nil {
			return fmt.Errorf("record unit %s: diagnostic: %w", u.Path, err)
		}
		d.ID, _ = res.LastInsertId()
	}
	return nil
}

// RecordAsset upserts an asset row.
func (s *Store) RecordAsset(a *AssetRecord) error {
	return recordAssetTx(s.db, a)
}

func recordAssetTx(tx sqlExecer, a *AssetRecord) error {
	if a.LastBuilt.IsZero() {
		a.LastBuilt = time.Now().Truncate(time.Second)
	}
	err := tx.QueryRow(
		`INSERT INTO assets (path, category, output, builds, error, last_built)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   category = excluded.category,
		   output = excluded.output,
		   builds = excluded.builds,
		   error = excluded.error,
		   last_built = excluded.last_built
		 RETURNING id`,
		a.Path, a.Category, a.Output, a.Builds, a.Error, a.LastBuilt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("record asset %s: %w", a.Path, err)
	}
	return nil
}

// UnitByPath returns the unit row for path, or nil when absent.
func (s *Store) UnitByPath(path string) (*UnitRecord, error) {
	u := &UnitRecord{}
	var lastBuilt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, path, hash, third_party, global_document, last_built FROM units WHERE path = ?`, path,
	).Scan(&u.ID, &u.Path, &u.Hash, &u.ThirdParty, &u.GlobalDocument, &lastBuilt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by path: %w", err)
	}
	u.LastBuilt = lastBuilt.Time
	return u, nil
}

// ModulesByUnit returns the modules recorded for a unit.
func (s *Store) ModulesByUnit(unitID int64) ([]*ModuleRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, unit_id, full_name, kind, used FROM modules WHERE unit_id = ? ORDER BY id`, unitID)
	if err != nil {
		return nil, fmt.Errorf("modules by unit: %w", err)
	}
	defer rows.Close()
	var out []*ModuleRecord
	for rows.Next() {
		m := &ModuleRecord{}
		if err := rows.Scan(&m.ID, &m.UnitID, &m.FullName, &m.Kind, &m.Used); err != nil {
			return nil, fmt.Errorf("modules by unit: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DiagnosticsByUnit returns the diagnostics recorded for a unit.
func (s *Store) DiagnosticsByUnit(unitID int64) ([]*DiagnosticRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, unit_id, severity, code, message, line, col FROM diagnostics WHERE unit_id = ? ORDER BY id`, unitID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by unit: %w", err)
	}
	defer rows.Close()
	var out []*DiagnosticRecord
	for rows.Next() {
		d := &DiagnosticRecord{}
		if err := rows.Scan(&d.ID, &d.UnitID, &d.Severity, &d.Code, &d.Message, &d.Line, &d.Col); err != nil {
			return nil, fmt.Errorf("diagnostics by unit: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SeverityCounts returns the number of recorded diagnostics per severity.
func (s *Store) SeverityCounts() (map[int]int, error) {
	rows, err := s.db.Query(`SELECT severity, COUNT(*) FROM diagnostics GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("severity counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[int]int)
	for rows.Next() {
		var sev, n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("severity counts: scan: %w", err)
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

// AssetByPath returns the asset row for path, or nil when absent.
func (s *Store) AssetByPath(path string) (*AssetRecord, error) {
	a := &AssetRecord{}
	var output, errText sql.NullString
	var lastBuilt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, path, category, output, builds, error, last_built FROM assets WHERE path = ?`, path,
	).Scan(&a.ID, &a.Path, &a.Category, &output, &a.Builds, &errText, &lastBuilt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("asset by path: %w", err)
	}
	a.Output, a.Error, a.LastBuilt = output.String, errText.String, lastBuilt.Time
	return a, nil
}
