package esbridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultEntries are tried, in order, when no entry is configured.
var defaultEntries = []string{"App", "Index", "app", "index"}

// ResolveEntries expands configured entries into unit paths. Relative
// entries join the workspace; a directory contributes the source files
// directly inside it. Paths that do not exist or lack the source suffix
// contribute nothing. The result is deduplicated in first-seen order.
func (e *Engine) ResolveEntries(entries []string) ([]string, error) {
	if len(entries) == 0 {
		for _, name := range defaultEntries {
			p := filepath.Join(e.workspace, name+e.suffix)
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				entries = []string{p}
				break
			}
		}
	}

	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(p string) {
		if !strings.HasSuffix(p, e.suffix) || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, entry := range entries {
		p := entry
		if !filepath.IsAbs(p) {
			p = filepath.Join(e.workspace, p)
		}
		p = filepath.Clean(p)
		fi, err := os.Stat(p)
		if err != nil {
			e.logger.Debug("entry not found", "path", p)
			continue
		}
		if !fi.IsDir() {
			if fi.Mode().IsRegular() {
				add(p)
			}
			continue
		}
		items, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("esbridge: read entry dir %s: %w", p, err)
		}
		for _, it := range items {
			if it.Type().IsRegular() {
				add(filepath.Join(p, it.Name()))
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEntry
	}
	return out, nil
}
