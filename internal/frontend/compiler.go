// Package frontend is a source compiler over tree-sitter. It parses
// TypeScript-syntax sources into units, registers their modules in a
// shared namespace tree and resolves type references across units.
package frontend

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jward/esbridge/internal/unit"
)

// DescriptorSuffix marks declaration-only inputs.
const DescriptorSuffix = ".d.es"

// Compiler implements unit.Compiler.
type Compiler struct {
	suffix  string
	globals map[string]bool
	logger  *log.Logger
	tree    *unit.Tree
	lang    *sitter.Language

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithSuffix sets the source file suffix (default ".es").
func WithSuffix(s string) Option {
	return func(c *Compiler) { c.suffix = s }
}

// WithGlobalDocuments marks paths as global documents.
func WithGlobalDocuments(paths ...string) Option {
	return func(c *Compiler) {
		for _, p := range paths {
			c.globals[normalize(p)] = true
		}
	}
}

// WithLogger sets the compiler logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New returns a compiler with an empty namespace tree.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		suffix:  ".es",
		globals: make(map[string]bool),
		logger:  log.New(io.Discard),
		tree:    unit.NewTree(),
		lang:    ts.GetLanguage(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tree returns the namespace tree shared by every unit.
func (c *Compiler) Tree() *unit.Tree {
	return c.tree
}

// entry is the compiler-side state of one unit.
type entry struct {
	unit *unit.Unit

	// mu serializes Ready and Clear of this unit.
	mu    sync.Mutex
	ready bool

	// parseMu guards the parsed declarations. It is never held while
	// another entry's lock is taken.
	parseMu sync.Mutex
	parsed  bool
	state   *parseState
}

var _ unit.Compiler = (*Compiler)(nil)

// Open returns the unit for path, creating it on first request.
func (c *Compiler) Open(_ context.Context, path string) (*unit.Unit, error) {
	if path == "" {
		return nil, fmt.Errorf("frontend: open: empty path")
	}
	norm := normalize(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[norm]; ok {
		return e.unit, nil
	}
	u := &unit.Unit{
		Path:               norm,
		ThirdParty:         isThirdParty(norm),
		GlobalDocument:     c.globals[norm],
		DescriptorDocument: strings.HasSuffix(norm, DescriptorSuffix),
	}
	c.entries[norm] = &entry{unit: u}
	return u, nil
}

// Lookup returns an already opened unit.
func (c *Compiler) Lookup(path string) (*unit.Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[normalize(path)]
	if !ok {
		return nil, false
	}
	return e.unit, true
}

func (c *Compiler) entry(u *unit.Unit) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[u.Path]
	if !ok || e.unit != u {
		return nil, fmt.Errorf("frontend: unit %s was not opened by this compiler", u.Path)
	}
	return e, nil
}

// Ready parses u and every unit it imports, then resolves u's type
// references against the namespace tree.
func (c *Compiler) Ready(ctx context.Context, u *unit.Unit) error {
	e, err := c.entry(u)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	if err := c.parseClosure(ctx, e); err != nil {
		return err
	}
	// e.mu keeps Clear away and e is already parsed, so resolving does
	// not need parseMu.
	c.resolve(e)
	e.ready = true
	c.logger.Debug("unit ready", "path", u.Path, "modules", len(u.Modules), "diagnostics", len(u.Diagnostics))
	return nil
}

// Prepare parses every unit in units, and everything they import, without
// resolving. Readying a batch after Prepare lets references to sibling
// units that are not imported resolve through the namespace tree.
func (c *Compiler) Prepare(ctx context.Context, units []*unit.Unit) error {
	for _, u := range units {
		e, err := c.entry(u)
		if err != nil {
			return err
		}
		if err := c.parseClosure(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// parseClosure parses e and every unit reachable through its imports.
// Each entry is locked on its own; cycles are cut by the visited set.
func (c *Compiler) parseClosure(ctx context.Context, root *entry) error {
	visited := make(map[*entry]bool)
	stack := []*entry{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[e] {
			continue
		}
		visited[e] = true
		if err := ctx.Err(); err != nil {
			return err
		}

		e.parseMu.Lock()
		if !e.parsed {
			c.parse(ctx, e)
			e.parsed = true
		}
		var sources []string
		for _, imp := range e.state.imports {
			if imp.target != "" {
				sources = append(sources, imp.target)
			}
		}
		e.parseMu.Unlock()

		for i := len(sources) - 1; i >= 0; i-- {
			dep, err := c.Open(ctx, sources[i])
			if err != nil {
				return err
			}
			de, err := c.entry(dep)
			if err != nil {
				return err
			}
			stack = append(stack, de)
		}
	}
	return nil
}

// Invalid reports whether the source on disk no longer matches what u was
// parsed from. A unit that was never readied is not invalid.
func (c *Compiler) Invalid(u *unit.Unit) bool {
	e, err := c.entry(u)
	if err != nil {
		return false
	}
	e.parseMu.Lock()
	parsed, hash := e.parsed, u.Hash
	e.parseMu.Unlock()
	if !parsed {
		return false
	}
	src, err := os.ReadFile(u.Path)
	if err != nil {
		return true
	}
	return sourceHash(src) != hash
}

// Clear drops u's declarations from the namespace tree and resets the
// unit so the next Ready re-parses it. The *unit.Unit keeps its identity.
func (c *Compiler) Clear(u *unit.Unit) {
	e, err := c.entry(u)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parseMu.Lock()
	defer e.parseMu.Unlock()

	// Modules stay registered so references held by other units keep
	// pointing at the same *Module once u is parsed again.
	for _, m := range u.Modules {
		m.DropFragments(u)
		if len(m.Fragments()) == 0 {
			m.Used = false
		}
	}
	for _, d := range u.Declarators {
		if d.Namespace != nil {
			d.Namespace.RemoveDeclarator(d)
		}
	}
	u.Hash = ""
	u.Namespaces = nil
	u.Modules = nil
	u.Declarators = nil
	u.Dependencies = nil
	u.Imports = nil
	u.Assets = nil
	u.Diagnostics = nil
	e.parsed = false
	e.ready = false
	e.state = nil
}

func (c *Compiler) parse(ctx context.Context, e *entry) {
	u := e.unit
	st := newParseState()
	e.state = st

	src, err := os.ReadFile(u.Path)
	if err != nil {
		u.Diagnostics = append(u.Diagnostics, unit.Diagnostic{
			Severity: unit.SeverityError,
			Code:     codeFileNotFound,
			Message:  fmt.Sprintf("cannot read file: %v", err),
			Path:     u.Path,
			Line:     1,
			Column:   1,
		})
		return
	}
	u.Hash = sourceHash(src)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		c.logger.Warn("parse failed", "path", u.Path, "err", err)
		return
	}
	defer tree.Close()

	w := &walker{c: c, u: u, src: src, st: st}
	root := tree.RootNode()
	w.diagnose(root)
	w.statements(root, c.tree.Root(), false)
	w.finish()
}

func sourceHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func isThirdParty(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/node_modules/")
}
