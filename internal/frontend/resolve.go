package frontend

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/esbridge/internal/unit"
)

// typeOf converts a type node. Named types are recorded for resolution
// and start out as TypeModule references carrying only the written name.
func (w *walker) typeOf(n *sitter.Node, sc scope) *unit.TypeRef {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "type_annotation", "opting_type_annotation", "omitting_type_annotation",
		"constraint", "default_type", "parenthesized_type", "readonly_type":
		if n.NamedChildCount() == 0 {
			return nil
		}
		return w.typeOf(n.NamedChild(0), sc)
	case "type_identifier", "nested_type_identifier", "identifier":
		ref := &unit.TypeRef{Kind: unit.TypeModule, Name: w.text(n)}
		w.st.refs = append(w.st.refs, pendingRef{ref: ref, sc: sc})
		return ref
	case "generic_type":
		return &unit.TypeRef{
			Kind:     unit.TypeGeneric,
			Base:     w.typeOf(n.ChildByFieldName("name"), sc),
			Elements: w.typeArgs(n.ChildByFieldName("type_arguments"), sc),
		}
	case "union_type":
		return &unit.TypeRef{Kind: unit.TypeUnion, Elements: w.flatten(n, sc)}
	case "intersection_type":
		return &unit.TypeRef{Kind: unit.TypeIntersection, Elements: w.flatten(n, sc)}
	case "array_type":
		return &unit.TypeRef{Kind: unit.TypeArray, Elements: []*unit.TypeRef{w.typeOf(n.NamedChild(0), sc)}}
	case "tuple_type":
		t := &unit.TypeRef{Kind: unit.TypeTuple}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			t.Elements = append(t.Elements, w.typeOf(n.NamedChild(i), sc))
		}
		return t
	case "function_type":
		t := &unit.TypeRef{Kind: unit.TypeFunction}
		t.Generics = w.generics(field(n, "type_parameters", "type_parameters"), sc)
		fsc := sc.with(t.Generics)
		t.Params = w.params(field(n, "parameters", "formal_parameters"), fsc)
		ret := n.ChildByFieldName("return_type")
		if ret == nil && n.NamedChildCount() > 0 {
			ret = n.NamedChild(int(n.NamedChildCount()) - 1)
		}
		t.Return = w.typeOf(ret, fsc)
		return t
	case "index_type_query":
		if n.NamedChildCount() == 0 {
			return unit.Builtin(w.text(n))
		}
		return &unit.TypeRef{Kind: unit.TypeKeyof, Base: w.typeOf(n.NamedChild(0), sc)}
	}
	return unit.Builtin(w.text(n))
}

func (w *walker) typeArgs(n *sitter.Node, sc scope) []*unit.TypeRef {
	if n == nil {
		return nil
	}
	var out []*unit.TypeRef
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, w.typeOf(n.NamedChild(i), sc))
	}
	return out
}

// flatten collects the operands of a left-nested union or intersection.
func (w *walker) flatten(n *sitter.Node, sc scope) []*unit.TypeRef {
	var out []*unit.TypeRef
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == n.Type() {
			out = append(out, w.flatten(c, sc)...)
			continue
		}
		out = append(out, w.typeOf(c, sc))
	}
	return out
}

// resolve binds e's imports, type references, heritage clauses and
// parameter defaults, recording the units they live in as dependencies.
func (c *Compiler) resolve(e *entry) {
	u, st := e.unit, e.state
	if st == nil {
		return
	}
	r := &resolver{c: c, u: u}

	for _, ri := range st.imports {
		if ri.target == "" {
			continue
		}
		dep, ok := c.Lookup(ri.target)
		if !ok {
			continue
		}
		r.depend(dep)
		if ri.imp == nil {
			continue
		}
		if !c.bindImport(ri.imp, dep) {
			u.Diagnostics = append(u.Diagnostics, unit.Diagnostic{
				Severity: unit.SeverityWarning,
				Code:     codeNoExportedMember,
				Message:  "module " + quote(ri.source) + " has no exported member " + quote(ri.imp.Imported),
				Path:     u.Path,
				Line:     ri.line,
				Column:   ri.col,
			})
		}
	}

	for _, p := range st.refs {
		mod, decl, gp := r.lookup(p.ref.Name, p.sc)
		switch {
		case gp != nil:
			p.ref.Kind, p.ref.Param = unit.TypeParam, gp
		case mod != nil:
			p.ref.Module = mod
			r.depend(mod.Unit())
		case decl != nil && decl.Kind == unit.DeclAlias:
			p.ref.Kind, p.ref.Alias = unit.TypeAlias, decl
			r.depend(decl.Unit)
		default:
			p.ref.Kind = unit.TypeBuiltin
		}
	}
	for _, h := range st.heritage {
		if mod, _, _ := r.lookup(h.h.Name, h.sc); mod != nil {
			h.h.Target = mod
			r.depend(mod.Unit())
		}
	}
	for _, d := range st.defaults {
		if _, decl, _ := r.lookup(d.p.Default, d.sc); decl != nil && decl.Kind == unit.DeclVariable {
			d.p.DefaultRef = decl
			r.depend(decl.Unit)
		}
	}
}

// bindImport points imp at the module or declarator dep exports under
// imp.Imported. A default import binds the module named after the file,
// or the first used module.
func (c *Compiler) bindImport(imp *unit.Import, dep *unit.Unit) bool {
	de, err := c.entry(dep)
	if err != nil {
		return false
	}
	de.parseMu.Lock()
	modules := append([]*unit.Module(nil), dep.Modules...)
	decls := append([]*unit.Declarator(nil), dep.Declarators...)
	de.parseMu.Unlock()

	name := imp.Imported
	if name == "default" {
		base := strings.TrimSuffix(filepath.Base(dep.Path), c.suffix)
		for _, m := range modules {
			if m.ID == base {
				imp.Module = m
				return true
			}
		}
		for _, m := range modules {
			if m.Used {
				imp.Module = m
				return true
			}
		}
		return false
	}
	for _, m := range modules {
		if m.ID == name {
			imp.Module = m
			return true
		}
	}
	for _, d := range decls {
		if d.Name == name {
			imp.Declarator = d
			return true
		}
	}
	return false
}

type resolver struct {
	c *Compiler
	u *unit.Unit
}

func (r *resolver) depend(d *unit.Unit) {
	if d == nil || d == r.u {
		return
	}
	for _, have := range r.u.Dependencies {
		if have == d {
			return
		}
	}
	r.u.Dependencies = append(r.u.Dependencies, d)
}

// lookup resolves a written type name: generic parameters first, then the
// unit's imports, then the namespace chain outwards. The root namespace is
// last, so a dotted name also resolves as a fully qualified one.
func (r *resolver) lookup(name string, sc scope) (*unit.Module, *unit.Declarator, *unit.GenericParam) {
	if name == "" {
		return nil, nil, nil
	}
	if !strings.Contains(name, ".") {
		for i := len(sc.generics) - 1; i >= 0; i-- {
			if sc.generics[i].Name == name {
				return nil, nil, sc.generics[i]
			}
		}
		for _, imp := range r.u.Imports {
			if imp.Local == name && imp.Entity() != nil {
				return imp.Module, imp.Declarator, nil
			}
		}
	}
	for ns := sc.ns; ns != nil; ns = ns.Parent {
		if m, d := r.inNamespace(ns.FullName, name); m != nil || d != nil {
			return m, d, nil
		}
	}
	return nil, nil, nil
}

// inNamespace looks name up relative to the namespace called base.
func (r *resolver) inNamespace(base, name string) (*unit.Module, *unit.Declarator) {
	full := name
	if base != "" {
		full = base + "." + name
	}
	nsName, id := "", full
	if i := strings.LastIndex(full, "."); i >= 0 {
		nsName, id = full[:i], full[i+1:]
	}
	ns, ok := r.c.tree.Lookup(nsName)
	if !ok {
		return nil, nil
	}
	if m, ok := ns.LookupModule(id); ok {
		return m, nil
	}
	if d, ok := ns.LookupDeclarator(id); ok {
		return nil, d
	}
	return nil, nil
}

func quote(s string) string {
	return `"` + s + `"`
}
