// Package layout groups synthesized declarations into namespace package
// blocks and lays them out as declaration files.
package layout

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/esbridge/internal/synth"
	"github.com/jward/esbridge/internal/unit"
)

const (
	// Ext is the declaration file extension.
	Ext = ".d.es"
	// IndexFile is the monolithic output name.
	IndexFile = "index" + Ext
)

// File is one declaration file ready to be written.
type File struct {
	Path    string
	Content string
	// Names lists the qualified names declared in the file.
	Names []string
}

// Write creates the file and any missing parent directories.
func (f File) Write() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("layout: mkdir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(f.Content), 0o644); err != nil {
		return fmt.Errorf("layout: write %s: %w", f.Path, err)
	}
	return nil
}

type block struct {
	ns    *unit.Namespace
	texts []string
}

func renderBlocks(blocks []*block) string {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].ns.Depth() < blocks[j].ns.Depth()
	})
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		head := "package "
		if b.ns.FullName != "" {
			head += b.ns.FullName + " "
		}
		parts = append(parts, head+"{\n"+strings.Join(b.texts, "\n\n")+"\n}")
	}
	return strings.ReplaceAll(strings.Join(parts, "\n\n"), "\r", "")
}

// Monolithic renders every namespace into buildDir/index.d.es, outer
// namespaces first.
func Monolithic(r *synth.Result, buildDir string) File {
	var (
		blocks []*block
		names  []string
	)
	for _, ns := range r.Namespaces() {
		b := &block{ns: ns}
		for _, e := range r.Entries(ns) {
			b.texts = append(b.texts, e.Text)
			names = append(names, e.Name)
		}
		if len(b.texts) > 0 {
			blocks = append(blocks, b)
		}
	}
	return File{
		Path:    filepath.Join(buildDir, IndexFile),
		Content: renderBlocks(blocks),
		Names:   names,
	}
}

// Options configures the by-source-file layout.
type Options struct {
	// BuildDir is the output root.
	BuildDir string
	// SourceDir is the declared source root; sources outside it get a
	// hashed fallback name.
	SourceDir string
	// Dirname is the output subdirectory, absolute or relative to BuildDir.
	Dirname string
}

// ByFile renders one declaration file per originating source unit.
func ByFile(r *synth.Result, opts Options) []File {
	type group struct {
		unit   *unit.Unit
		blocks []*block
		byNS   map[*unit.Namespace]*block
		names  []string
	}
	var order []*group
	groups := make(map[*unit.Unit]*group)

	for _, ns := range r.Namespaces() {
		for _, e := range r.Entries(ns) {
			if e.Unit == nil {
				continue
			}
			g, ok := groups[e.Unit]
			if !ok {
				g = &group{unit: e.Unit, byNS: make(map[*unit.Namespace]*block)}
				groups[e.Unit] = g
				order = append(order, g)
			}
			b, ok := g.byNS[ns]
			if !ok {
				b = &block{ns: ns}
				g.byNS[ns] = b
				g.blocks = append(g.blocks, b)
			}
			b.texts = append(b.texts, e.Text)
			g.names = append(g.names, e.Name)
		}
	}

	files := make([]File, 0, len(order))
	for _, g := range order {
		files = append(files, File{
			Path:    OutputPath(g.unit.Path, opts),
			Content: renderBlocks(g.blocks),
			Names:   g.names,
		})
	}
	return files
}

// OutputPath computes the declaration file path for a source file in the
// by-source-file layout.
func OutputPath(source string, opts Options) string {
	file := source
	if !strings.HasSuffix(file, Ext) {
		file = strings.TrimSuffix(file, filepath.Ext(file)) + Ext
	}

	name, err := filepath.Rel(opts.SourceDir, file)
	if opts.SourceDir == "" || err != nil || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		base := filepath.Base(source)
		if i := strings.Index(base, "."); i >= 0 {
			base = base[:i]
		}
		sum := md5.Sum([]byte(source))
		name = base + "-" + hex.EncodeToString(sum[:])[:6] + Ext
	}

	dir := opts.Dirname
	if dir == "" {
		dir = "."
	}
	if filepath.IsAbs(dir) {
		return filepath.Join(dir, name)
	}
	return filepath.Join(opts.BuildDir, dir, name)
}
