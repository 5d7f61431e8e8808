package unit

import (
	"sort"
	"strings"
	"sync"
)

// Kind distinguishes class-like from interface-like modules.
type Kind int

const (
	KindClass Kind = iota
	KindInterface
)

func (k Kind) String() string {
	if k == KindInterface {
		return "interface"
	}
	return "class"
}

// Modifier is a member's resolved accessibility.
type Modifier int

const (
	ModifierPublic Modifier = iota
	ModifierProtected
	ModifierPrivate
)

func (m Modifier) String() string {
	switch m {
	case ModifierProtected:
		return "protected"
	case ModifierPrivate:
		return "private"
	default:
		return "public"
	}
}

// MemberKind is the declaration form of a member.
type MemberKind int

const (
	MemberProperty MemberKind = iota
	MemberMethod
	MemberGetter
	MemberSetter
	MemberConstructor
	MemberCall
	MemberNew
)

func (k MemberKind) String() string {
	switch k {
	case MemberMethod:
		return "method"
	case MemberGetter:
		return "getter"
	case MemberSetter:
		return "setter"
	case MemberConstructor:
		return "constructor"
	case MemberCall:
		return "call"
	case MemberNew:
		return "new"
	default:
		return "property"
	}
}

// Callable reports whether the member has a parameter list.
func (k MemberKind) Callable() bool {
	return k != MemberProperty
}

// Signature reports whether the member is a constructor, call or construct
// signature.
func (k MemberKind) Signature() bool {
	return k == MemberConstructor || k == MemberCall || k == MemberNew
}

// Inheritable reports whether a redeclaration of the member is dropped when
// an ancestor already declares it. Only methods and accessors are.
func (k MemberKind) Inheritable() bool {
	return k == MemberMethod || k == MemberGetter || k == MemberSetter
}

// Comment is a source comment with its delimiters stripped.
type Comment struct {
	Block bool
	Text  string
}

// GenericParam is one entry of a generics list: `T extends C = D`.
type GenericParam struct {
	Name       string
	Constraint *TypeRef
	Default    *TypeRef
}

// Param is one callable parameter.
type Param struct {
	Name     string
	Type     *TypeRef
	Rest     bool
	Optional bool
	Default  string
	// DefaultRef is set when Default names a top-level variable.
	DefaultRef *Declarator
}

// Member is one declaration inside a module fragment.
type Member struct {
	Name     string
	Kind     MemberKind
	Modifier Modifier
	Static   bool
	Readonly bool
	Optional bool
	// Computed members render as `[Name: KeyType]`.
	Computed bool
	KeyType  *TypeRef

	Generics []*GenericParam
	Params   []*Param
	// Type is the property type or the callable's return type.
	Type        *TypeRef
	Init        string
	InitLiteral bool

	Comments []Comment
	Offset   int
}

// Heritage is one entry of an extends or implements clause.
type Heritage struct {
	Name   string
	Args   []*TypeRef
	Target *Module
}

func (h *Heritage) String() string {
	if len(h.Args) == 0 {
		return h.Name
	}
	return h.Name + "<" + joinTypes(h.Args, ", ") + ">"
}

// Fragment is one partial declaration of a module. Declaration merging and
// mixin-style augmentation produce modules with several fragments.
type Fragment struct {
	Unit       *Unit
	Offset     int
	Generics   []*GenericParam
	Extends    []*Heritage
	Implements []*Heritage
	Members    []*Member
	Imports    []*Import
	Comments   []Comment
}

// Module is a class- or interface-like declared type.
type Module struct {
	ID        string
	Namespace *Namespace
	Kind      Kind
	Used      bool

	mu        sync.RWMutex
	fragments []*Fragment
}

// NewModule returns an empty module owned by ns.
func NewModule(id string, ns *Namespace, kind Kind) *Module {
	return &Module{ID: id, Namespace: ns, Kind: kind}
}

// FullName is the namespace-qualified name.
func (m *Module) FullName() string {
	if m.Namespace == nil || m.Namespace.FullName == "" {
		return m.ID
	}
	return m.Namespace.FullName + "." + m.ID
}

func (m *Module) String() string {
	return m.FullName()
}

// AddFragment merges f into the module. Fragments are kept ordered by
// (unit path, offset) so merging is independent of parse order.
func (m *Module) AddFragment(f *Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fragments = append(m.fragments, f)
	sort.SliceStable(m.fragments, func(i, j int) bool {
		a, b := m.fragments[i], m.fragments[j]
		if a.Unit.Path != b.Unit.Path {
			return a.Unit.Path < b.Unit.Path
		}
		return a.Offset < b.Offset
	})
}

// DropFragments removes every fragment contributed by u and reports how
// many fragments remain.
func (m *Module) DropFragments(u *Unit) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.fragments[:0]
	for _, f := range m.fragments {
		if f.Unit != u {
			kept = append(kept, f)
		}
	}
	for i := len(kept); i < len(m.fragments); i++ {
		m.fragments[i] = nil
	}
	m.fragments = kept
	return len(kept)
}

// Fragments returns a snapshot of the ordered fragments.
func (m *Module) Fragments() []*Fragment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Fragment, len(m.fragments))
	copy(out, m.fragments)
	return out
}

// Unit returns the unit declaring the module's first fragment.
func (m *Module) Unit() *Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.fragments) == 0 {
		return nil
	}
	return m.fragments[0].Unit
}

// Supers returns the resolved extends and implements targets across all
// fragments, extends first, without duplicates.
func (m *Module) Supers() []*Module {
	seen := make(map[*Module]bool)
	var out []*Module
	add := func(hs []*Heritage) {
		for _, h := range hs {
			if h.Target != nil && !seen[h.Target] {
				seen[h.Target] = true
				out = append(out, h.Target)
			}
		}
	}
	frags := m.Fragments()
	for _, f := range frags {
		add(f.Extends)
	}
	for _, f := range frags {
		add(f.Implements)
	}
	return out
}

// Members returns every member named name across all fragments.
func (m *Module) Members(name string) []*Member {
	var out []*Member
	for _, f := range m.Fragments() {
		for _, mem := range f.Members {
			if mem.Name == name {
				out = append(out, mem)
			}
		}
	}
	return out
}

// DeclaratorKind distinguishes type aliases from variables.
type DeclaratorKind int

const (
	DeclAlias DeclaratorKind = iota
	DeclVariable
)

// Declarator is a top-level type alias or variable.
type Declarator struct {
	Kind      DeclaratorKind
	Name      string
	Namespace *Namespace
	Unit      *Unit

	Generics []*GenericParam
	// Value is the aliased type.
	Value *TypeRef

	// VarKind is const, let or var.
	VarKind string
	Type    *TypeRef
	Init    string
	// InitSimple is set when Init is a literal or a bare identifier.
	InitSimple bool

	Comments []Comment
	Offset   int
}

// FullName is the namespace-qualified name.
func (d *Declarator) FullName() string {
	if d.Namespace == nil || d.Namespace.FullName == "" {
		return d.Name
	}
	return d.Namespace.FullName + "." + d.Name
}

// Import is one imported binding as written in a fragment.
type Import struct {
	// Local is the binding name in the importing unit.
	Local string
	// Imported is the exported name in the source unit.
	Imported string
	Source   string

	Module     *Module
	Declarator *Declarator
}

// Entity returns the resolved target, or nil when unresolved.
func (i *Import) Entity() any {
	switch {
	case i.Module != nil:
		return i.Module
	case i.Declarator != nil:
		return i.Declarator
	}
	return nil
}

// Namespace returns the namespace of the resolved target.
func (i *Import) Namespace() *Namespace {
	switch {
	case i.Module != nil:
		return i.Module.Namespace
	case i.Declarator != nil:
		return i.Declarator.Namespace
	}
	return nil
}

// FullName returns the qualified name of the resolved target.
func (i *Import) FullName() string {
	switch {
	case i.Module != nil:
		return i.Module.FullName()
	case i.Declarator != nil:
		return i.Declarator.FullName()
	}
	return i.Imported
}

// Aliased reports whether the local binding differs from the target name.
func (i *Import) Aliased() bool {
	name := i.Imported
	switch {
	case i.Module != nil:
		name = i.Module.ID
	case i.Declarator != nil:
		name = i.Declarator.Name
	}
	return i.Local != "" && i.Local != name
}

func joinTypes(ts []*TypeRef, sep string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, sep)
}
