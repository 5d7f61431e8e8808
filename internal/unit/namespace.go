package unit

import (
	"sort"
	"strings"
	"sync"
)

// Namespace is a node in the namespace tree, keyed by fully-qualified name.
// The root has an empty FullName.
type Namespace struct {
	FullName string
	Name     string
	Parent   *Namespace

	mu          sync.RWMutex
	children    map[string]*Namespace
	modules     map[string]*Module
	declarators map[string]*Declarator
}

func newNamespace(name string, parent *Namespace) *Namespace {
	full := name
	if parent != nil && parent.FullName != "" {
		full = parent.FullName + "." + name
	}
	return &Namespace{
		FullName:    full,
		Name:        name,
		Parent:      parent,
		children:    make(map[string]*Namespace),
		modules:     make(map[string]*Module),
		declarators: make(map[string]*Declarator),
	}
}

// Depth is the number of segments in FullName; the root has depth 0.
func (n *Namespace) Depth() int {
	if n.FullName == "" {
		return 0
	}
	return strings.Count(n.FullName, ".") + 1
}

// Chain returns the namespaces from the outermost segment down to n,
// excluding the root.
func (n *Namespace) Chain() []*Namespace {
	var chain []*Namespace
	for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (n *Namespace) String() string {
	return n.FullName
}

// Child returns the direct child namespace called name, creating it.
func (n *Namespace) Child(name string) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[name]
	if !ok {
		c = newNamespace(name, n)
		n.children[name] = c
	}
	return c
}

// Children returns the direct children sorted by name.
func (n *Namespace) Children() []*Namespace {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Namespace, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Module returns the module with the given id, creating it with kind when
// absent. The boolean reports whether the module already existed.
func (n *Namespace) Module(id string, kind Kind) (*Module, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m, ok := n.modules[id]; ok {
		return m, true
	}
	m := NewModule(id, n, kind)
	n.modules[id] = m
	return m, false
}

// LookupModule returns an existing module.
func (n *Namespace) LookupModule(id string) (*Module, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.modules[id]
	return m, ok
}

// RemoveModule forgets a module, typically once its last fragment is gone.
func (n *Namespace) RemoveModule(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.modules, id)
}

// Modules returns the owned modules sorted by id.
func (n *Namespace) Modules() []*Module {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Module, 0, len(n.modules))
	for _, m := range n.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetDeclarator registers d under its name, replacing any previous entry.
func (n *Namespace) SetDeclarator(d *Declarator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.declarators[d.Name] = d
}

// LookupDeclarator returns a registered alias or variable.
func (n *Namespace) LookupDeclarator(name string) (*Declarator, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	d, ok := n.declarators[name]
	return d, ok
}

// RemoveDeclarator forgets d if it is still the registered entry.
func (n *Namespace) RemoveDeclarator(d *Declarator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.declarators[d.Name] == d {
		delete(n.declarators, d.Name)
	}
}

// Tree is the namespace tree of one compiler instance.
type Tree struct {
	root *Namespace
}

// NewTree returns a tree holding only the root namespace.
func NewTree() *Tree {
	return &Tree{root: newNamespace("", nil)}
}

// Root returns the root namespace.
func (t *Tree) Root() *Namespace {
	return t.root
}

// Ensure returns the namespace for a dotted name, creating every missing
// segment. The empty name is the root.
func (t *Tree) Ensure(fullName string) *Namespace {
	ns := t.root
	if fullName == "" {
		return ns
	}
	for _, seg := range strings.Split(fullName, ".") {
		ns = ns.Child(seg)
	}
	return ns
}

// Lookup returns the namespace for a dotted name without creating it.
func (t *Tree) Lookup(fullName string) (*Namespace, bool) {
	ns := t.root
	if fullName == "" {
		return ns, true
	}
	for _, seg := range strings.Split(fullName, ".") {
		ns.mu.RLock()
		c, ok := ns.children[seg]
		ns.mu.RUnlock()
		if !ok {
			return nil, false
		}
		ns = c
	}
	return ns, true
}
