package esbridge

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
)

// Manifest maps every declared type to the declaration files declaring
// it. Indexers index into Files.
type Manifest struct {
	Scope string                  `json:"scope"`
	Files []string                `json:"files"`
	Types map[string]ManifestType `json:"types"`
}

// ManifestType lists the files declaring one qualified name.
type ManifestType struct {
	Indexers []int `json:"indexers"`
}

// JSON encodes the manifest with two-space indentation.
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Manifest describes the declaration files written so far. It reads the
// ledger when one is configured and the files of this process otherwise.
func (e *Engine) Manifest(scope string) (*Manifest, error) {
	type row struct{ name, path string }
	var rows []row
	if e.store != nil {
		rs, err := e.store.ManifestRows()
		if err != nil {
			return nil, fmt.Errorf("esbridge: manifest: %w", err)
		}
		for _, r := range rs {
			rows = append(rows, row{r.FullName, r.Path})
		}
	} else {
		e.mu.Lock()
		for path, names := range e.written {
			for _, n := range names {
				rows = append(rows, row{n, path})
			}
		}
		e.mu.Unlock()
	}

	m := &Manifest{Scope: scope, Files: []string{}, Types: make(map[string]ManifestType)}
	index := make(map[string]int)
	var paths []string
	for _, r := range rows {
		if _, ok := index[r.path]; !ok {
			index[r.path] = -1
			paths = append(paths, r.path)
		}
	}
	sort.Strings(paths)
	for i, p := range paths {
		index[p] = i
		rel, err := filepath.Rel(e.outDir, p)
		if err != nil {
			rel = p
		}
		m.Files = append(m.Files, filepath.ToSlash(rel))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].path < rows[j].path
	})
	for _, r := range rows {
		t := m.Types[r.name]
		i := index[r.path]
		if n := len(t.Indexers); n > 0 && t.Indexers[n-1] == i {
			continue
		}
		t.Indexers = append(t.Indexers, i)
		m.Types[r.name] = t
	}
	return m, nil
}
