// Package runtime hosts scripted build plugins. A plugin is a Risor
// script evaluated once per compilation unit with the unit and a set of
// host functions in scope.
package runtime

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/esbridge/internal/unit"
)

// Host is the engine side of a plugin run.
type Host interface {
	// Emit records the compiled script text for u.
	Emit(u *unit.Unit, content string)
	// RegisterAsset registers an embedded asset referenced by u.
	RegisterAsset(u *unit.Unit, path string) error
	// OutputDir is the build output directory.
	OutputDir() string
}

// Runtime embeds a Risor VM and provides tree-sitter host functions to
// plugin scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	trees      *trees
	logger     *log.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts and resolves imports from fsys instead of
// from disk.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger routes script log calls to l.
func WithRuntimeLogger(l *log.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime resolving relative script paths and
// imports against scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		trees:      newTrees(),
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSource executes Risor source with the standard globals plus extra.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) error {
	return r.eval(ctx, source, "<inline>", extra)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extra map[string]any) error {
	globals := r.globals(label, extra)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.importer(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

func (r *Runtime) globals(label string, extra map[string]any) map[string]any {
	g := map[string]any{
		"parse":      r.trees.parseFn(),
		"parse_src":  r.trees.parseSrcFn(),
		"node_text":  r.trees.nodeTextFn(),
		"node_child": nodeChildFn(),
		"query":      r.trees.queryFn(),
		"log":        mustProxy(&logObject{logger: r.logger, plugin: label}),
	}
	for k, v := range extra {
		g[k] = v
	}
	return g
}

// importer resolves script imports. Host globals are passed along so
// imported modules can reference them.
func (r *Runtime) importer(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: names,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: names,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file. With an fs.FS configured, a leading
// separator is stripped so the path is relative within it.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", full, err)
	}
	return string(data), nil
}

// Load reads the plugin script at path.
func (r *Runtime) Load(path string) (*Script, error) {
	src, err := r.LoadScript(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Script{rt: r, name: name, path: path, src: src}, nil
}

// ScriptsHash hashes the named scripts' sources in order.
func ScriptsHash(scripts []*Script) string {
	h := sha256.New()
	for _, s := range scripts {
		fmt.Fprintf(h, "%s:%d:%s\n", s.path, len(s.src), s.src)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Script is one loaded plugin.
type Script struct {
	rt   *Runtime
	name string
	path string
	src  string
}

// Name is the script's base name without extension.
func (s *Script) Name() string { return s.name }

// Path is where the script was loaded from.
func (s *Script) Path() string { return s.path }

// Run evaluates the script for u. In scope: unit, output_dir, emit(content)
// and register_asset(path) on top of the parse helpers and log.
func (s *Script) Run(ctx context.Context, u *unit.Unit, h Host) error {
	extra := map[string]any{
		"unit":       unitObject(u),
		"output_dir": object.NewString(h.OutputDir()),
		"emit": object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("emit", 1, len(args))
			}
			content, oerr := stringArg("emit", args[0])
			if oerr != nil {
				return oerr
			}
			h.Emit(u, content)
			return object.Nil
		}),
		"register_asset": object.NewBuiltin("register_asset", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("register_asset", 1, len(args))
			}
			path, oerr := stringArg("register_asset", args[0])
			if oerr != nil {
				return oerr
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(filepath.Dir(u.Path), path)
			}
			if err := h.RegisterAsset(u, path); err != nil {
				return object.Errorf("register_asset: %v", err)
			}
			return object.Nil
		}),
	}
	return s.rt.eval(ctx, s.src, s.name, extra)
}

// unitObject is the read-only view of a unit handed to scripts.
func unitObject(u *unit.Unit) *object.Map {
	modules := make([]object.Object, 0, len(u.Modules))
	for _, m := range u.Modules {
		modules = append(modules, object.NewMap(map[string]object.Object{
			"id":        object.NewString(m.ID),
			"full_name": object.NewString(m.FullName()),
			"kind":      object.NewString(m.Kind.String()),
			"used":      object.NewBool(m.Used),
		}))
	}
	namespaces := make([]object.Object, 0, len(u.Namespaces))
	for _, ns := range u.Namespaces {
		namespaces = append(namespaces, object.NewString(ns.FullName))
	}
	assets := make([]object.Object, 0, len(u.Assets))
	for _, a := range u.Assets {
		assets = append(assets, object.NewString(a))
	}
	deps := make([]object.Object, 0, len(u.Dependencies))
	for _, d := range u.Dependencies {
		deps = append(deps, object.NewString(d.Path))
	}
	return object.NewMap(map[string]object.Object{
		"path":            object.NewString(u.Path),
		"hash":            object.NewString(u.Hash),
		"third_party":     object.NewBool(u.ThirdParty),
		"global_document": object.NewBool(u.GlobalDocument),
		"modules":         object.NewList(modules),
		"namespaces":      object.NewList(namespaces),
		"assets":          object.NewList(assets),
		"dependencies":    object.NewList(deps),
		"diagnostics":     object.NewInt(int64(len(u.Diagnostics))),
	})
}
