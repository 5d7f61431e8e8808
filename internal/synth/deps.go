package synth

import "github.com/jward/esbridge/internal/unit"

// depSet is the ordered, identity-keyed dependency set of one module.
// First discovery wins.
type depSet struct {
	self *unit.Module
	seen map[any]bool
	list []any
}

func newDepSet(self *unit.Module) *depSet {
	return &depSet{self: self, seen: make(map[any]bool)}
}

func (d *depSet) add(v any) {
	switch e := v.(type) {
	case *unit.Module:
		if e == nil || e == d.self {
			return
		}
	case *unit.Declarator:
		if e == nil {
			return
		}
	default:
		return
	}
	if d.seen[v] || fromGlobalDocument(v) {
		return
	}
	d.seen[v] = true
	d.list = append(d.list, v)
}

func (d *depSet) has(v any) bool {
	return d.seen[v]
}

// walkType records the declared entities t refers to. Module and alias
// targets are recorded at every site; descent into composite types and
// alias bodies is guarded by the pass-wide visited set, which keeps
// self-referential aliases and generics from recursing forever.
func (p *Pass) walkType(t *unit.TypeRef, deps *depSet) {
	if t == nil {
		return
	}
	switch t.Kind {
	case unit.TypeModule:
		if t.Module != nil {
			deps.add(t.Module)
		}
		return
	case unit.TypeAlias:
		if t.Alias != nil {
			deps.add(t.Alias)
		}
	}
	if p.visited[t] {
		return
	}
	p.visited[t] = true

	switch t.Kind {
	case unit.TypeAlias:
		if t.Alias != nil {
			p.walkType(t.Alias.Value, deps)
		}
	case unit.TypeParam:
		if t.Param != nil {
			p.walkType(t.Param.Constraint, deps)
		}
	case unit.TypeUnion, unit.TypeIntersection, unit.TypeTuple, unit.TypeArray:
		for _, el := range t.Elements {
			p.walkType(el, deps)
		}
	case unit.TypeGeneric:
		p.walkType(t.Base, deps)
		for _, el := range t.Elements {
			p.walkType(el, deps)
		}
	case unit.TypeKeyof:
		p.walkType(t.Base, deps)
	case unit.TypeFunction:
		for _, prm := range t.Params {
			p.walkType(prm.Type, deps)
		}
		p.walkType(t.Return, deps)
		for _, g := range t.Generics {
			p.walkType(g.Constraint, deps)
		}
	}
}

// memberDeps walks the types a retained member exposes.
func (p *Pass) memberDeps(m *unit.Member, deps *depSet) {
	for _, prm := range m.Params {
		if prm.DefaultRef != nil {
			deps.add(prm.DefaultRef)
		}
		p.walkType(prm.Type, deps)
	}
	p.walkType(m.Type, deps)
	p.walkType(m.KeyType, deps)
	for _, g := range m.Generics {
		p.walkType(g.Constraint, deps)
		p.walkType(g.Default, deps)
	}
}

// inherited reports whether an ancestor of m, reached through extends and
// implements, declares a non-private member with mem's name, kind and
// staticness.
func inherited(m *unit.Module, mem *unit.Member) bool {
	seen := map[*unit.Module]bool{m: true}
	var walk func(cur *unit.Module) bool
	walk = func(cur *unit.Module) bool {
		for _, sup := range cur.Supers() {
			if seen[sup] {
				continue
			}
			seen[sup] = true
			for _, d := range sup.Members(mem.Name) {
				if d.Kind == mem.Kind && d.Static == mem.Static && d.Modifier != unit.ModifierPrivate {
					return true
				}
			}
			if walk(sup) {
				return true
			}
		}
		return false
	}
	return walk(m)
}
