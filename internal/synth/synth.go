// Package synth renders public-API declaration text from a resolved unit
// graph.
//
// A Pass is scoped to one build or one incremental rebuild. It owns the
// globals accumulator (aliases, variables and dependency modules discovered
// while synthesizing) and a single visited set for type-dependency walks.
// Neither may be reused across passes.
package synth

import (
	"sort"
	"strings"

	"github.com/jward/esbridge/internal/unit"
)

// Options configures a Pass.
type Options struct {
	// EmitFiles maps a unit to its bundled output file. Class modules owned
	// by such a unit import their default export from it.
	EmitFiles map[*unit.Unit]string
}

// Entry is one rendered declaration.
type Entry struct {
	// Name is the qualified name of the module or declarator.
	Name string
	// Unit is the unit the declaration originates from.
	Unit *unit.Unit
	Text string
	// Global marks alias and variable declarations from the accumulator.
	Global bool
}

// Result is the output of a Pass grouped by owning namespace.
type Result struct {
	order   []*unit.Namespace
	modules map[*unit.Namespace][]Entry
	globals map[*unit.Namespace][]Entry
	imports map[*unit.Unit][]string
	// units the pass was run over
	units map[*unit.Unit]bool
}

func newResult() *Result {
	return &Result{
		modules: make(map[*unit.Namespace][]Entry),
		globals: make(map[*unit.Namespace][]Entry),
		imports: make(map[*unit.Unit][]string),
		units:   make(map[*unit.Unit]bool),
	}
}

func (r *Result) touch(ns *unit.Namespace) {
	if _, ok := r.modules[ns]; ok {
		return
	}
	if _, ok := r.globals[ns]; ok {
		return
	}
	r.order = append(r.order, ns)
}

func (r *Result) addModule(ns *unit.Namespace, e Entry) {
	r.touch(ns)
	r.modules[ns] = append(r.modules[ns], e)
}

func (r *Result) addGlobal(ns *unit.Namespace, e Entry) {
	r.touch(ns)
	r.globals[ns] = append(r.globals[ns], e)
}

// Namespaces returns every namespace with output, in first-use order.
func (r *Result) Namespaces() []*unit.Namespace {
	out := make([]*unit.Namespace, len(r.order))
	copy(out, r.order)
	return out
}

// Entries returns the declarations of ns, accumulator entries first.
func (r *Result) Entries(ns *unit.Namespace) []Entry {
	out := make([]Entry, 0, len(r.globals[ns])+len(r.modules[ns]))
	out = append(out, r.globals[ns]...)
	return append(out, r.modules[ns]...)
}

// Imports returns the deduplicated import lines emitted for modules of u.
func (r *Result) Imports(u *unit.Unit) []string {
	return r.imports[u]
}

// Empty reports whether the pass produced nothing.
func (r *Result) Empty() bool {
	return len(r.order) == 0
}

// Merge folds a later, narrower pass into r. Entries originating from a
// unit next was run over are dropped first; next's entries then replace
// entries of the same name or are appended to their namespace.
func (r *Result) Merge(next *Result) {
	drop := func(m map[*unit.Namespace][]Entry) {
		for ns, es := range m {
			kept := es[:0]
			for _, e := range es {
				if !next.units[e.Unit] {
					kept = append(kept, e)
				}
			}
			m[ns] = kept
		}
	}
	drop(r.modules)
	drop(r.globals)

	upsert := func(es []Entry, e Entry) []Entry {
		for i := range es {
			if es[i].Name == e.Name {
				es[i] = e
				return es
			}
		}
		return append(es, e)
	}
	for _, ns := range next.order {
		r.touch(ns)
		for _, e := range next.globals[ns] {
			r.globals[ns] = upsert(r.globals[ns], e)
		}
		for _, e := range next.modules[ns] {
			r.modules[ns] = upsert(r.modules[ns], e)
		}
	}
	for u := range next.units {
		r.units[u] = true
		r.imports[u] = next.imports[u]
	}
}

// Pass is one synthesis run.
type Pass struct {
	opts Options

	done    map[*unit.Module]bool
	visited map[*unit.TypeRef]bool

	globals    []any
	globalSeen map[any]bool

	result *Result
}

// NewPass starts an empty pass.
func NewPass(opts Options) *Pass {
	return &Pass{
		opts:       opts,
		done:       make(map[*unit.Module]bool),
		visited:    make(map[*unit.TypeRef]bool),
		globalSeen: make(map[any]bool),
		result:     newResult(),
	}
}

// Unit synthesizes every module declared by u. Global documents,
// descriptor documents and third-party units are skipped.
func (p *Pass) Unit(u *unit.Unit) {
	if u == nil || u.Excluded() {
		return
	}
	p.result.units[u] = true
	for _, m := range u.Modules {
		p.module(m)
	}
}

// Result drains the globals accumulator and returns the pass output.
// Dependency modules found while draining are synthesized in turn, so
// the accumulator may grow while it is being drained.
func (p *Pass) Result() *Result {
	for i := 0; i < len(p.globals); i++ {
		switch g := p.globals[i].(type) {
		case *unit.Module:
			p.module(g)
		case *unit.Declarator:
			if g.Unit != nil && g.Unit.Excluded() {
				continue
			}
			p.result.addGlobal(g.Namespace, Entry{
				Name:   g.FullName(),
				Unit:   g.Unit,
				Text:   renderDeclarator(g),
				Global: true,
			})
		}
	}
	p.globals = nil
	return p.result
}

func (p *Pass) accumulate(v any) {
	if p.globalSeen[v] {
		return
	}
	p.globalSeen[v] = true
	p.globals = append(p.globals, v)
}

type retained struct {
	member *unit.Member
	text   string
}

func (p *Pass) module(m *unit.Module) {
	if p.done[m] {
		return
	}
	p.done[m] = true
	text, ok := p.synthesize(m)
	if !ok {
		return
	}
	p.result.addModule(m.Namespace, Entry{Name: m.FullName(), Unit: m.Unit(), Text: text})
}

// synthesize renders one module. It reports false when the module has no
// valid structure; such modules are omitted, never reported.
func (p *Pass) synthesize(m *unit.Module) (string, bool) {
	if m == nil || !m.Used || m.ID == "" {
		return "", false
	}
	frags := m.Fragments()
	if len(frags) == 0 {
		return "", false
	}
	owner := frags[0].Unit
	if owner == nil || owner.Excluded() {
		return "", false
	}

	deps := newDepSet(m)

	// widest generics wins, first on ties
	var generics []*unit.GenericParam
	for _, f := range frags {
		if len(f.Generics) > len(generics) {
			generics = f.Generics
		}
	}
	for _, g := range generics {
		p.walkType(g.Constraint, deps)
		p.walkType(g.Default, deps)
	}

	var extends []*unit.Heritage
	for _, f := range frags {
		if len(f.Extends) > 0 {
			extends = f.Extends
			break
		}
	}
	for _, h := range extends {
		deps.add(h.Target)
		for _, a := range h.Args {
			p.walkType(a, deps)
		}
	}

	var implements []*unit.Heritage
	for _, f := range frags {
		if len(f.Implements) > len(implements) {
			implements = f.Implements
		}
		for _, h := range f.Implements {
			deps.add(h.Target)
		}
	}
	for _, h := range implements {
		for _, a := range h.Args {
			p.walkType(a, deps)
		}
	}

	var members []retained
	for _, f := range frags {
		for _, mem := range f.Members {
			if mem.Modifier == unit.ModifierPrivate {
				continue
			}
			if mem.Kind.Inheritable() && inherited(m, mem) {
				continue
			}
			p.memberDeps(mem, deps)
			members = append(members, retained{member: mem, text: renderMember(mem)})
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return rank(members[i].member) < rank(members[j].member)
	})

	for _, d := range deps.list {
		p.accumulate(d)
	}

	var lines []string
	imports := p.imports(m, frags, deps)
	for _, imp := range imports {
		lines = append(lines, moduleIndent+imp)
	}
	p.recordImports(owner, imports)

	var comments []unit.Comment
	for _, f := range frags {
		comments = append(comments, f.Comments...)
	}
	header := "declare " + m.Kind.String() + " " + m.ID + unit.RenderGenerics(generics)
	if len(extends) > 0 {
		header += " extends " + renderHeritage(extends)
	}
	if len(implements) > 0 {
		header += " implements " + renderHeritage(implements)
	}
	lines = append(lines, withComments(comments, moduleIndent, header+" {"))
	for _, r := range members {
		lines = append(lines, r.text)
	}
	lines = append(lines, moduleIndent+"}")
	return strings.Join(lines, "\n"), true
}

// imports selects the import lines for m: resolved entities that m
// depends on, outside m's namespace and outside global documents, each
// at most once.
func (p *Pass) imports(m *unit.Module, frags []*unit.Fragment, deps *depSet) []string {
	seen := make(map[any]bool)
	var out []string
	for _, f := range frags {
		for _, imp := range f.Imports {
			ent := imp.Entity()
			if ent == nil || seen[ent] || !deps.has(ent) {
				continue
			}
			if imp.Namespace() == m.Namespace {
				continue
			}
			if fromGlobalDocument(ent) {
				continue
			}
			seen[ent] = true
			out = append(out, renderImport(imp))
		}
	}
	if m.Kind == unit.KindClass {
		if file, ok := p.opts.EmitFiles[m.Unit()]; ok && file != "" {
			out = append(out, `import `+m.ID+` from "`+strings.ReplaceAll(file, `\`, "/")+`";`)
		}
	}
	return out
}

func (p *Pass) recordImports(u *unit.Unit, lines []string) {
	have := p.result.imports[u]
	for _, l := range lines {
		dup := false
		for _, h := range have {
			if h == l {
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, l)
		}
	}
	p.result.imports[u] = have
}

func fromGlobalDocument(ent any) bool {
	var u *unit.Unit
	switch e := ent.(type) {
	case *unit.Module:
		u = e.Unit()
	case *unit.Declarator:
		u = e.Unit
	}
	return u != nil && u.GlobalDocument
}
