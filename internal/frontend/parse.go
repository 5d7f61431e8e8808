package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/esbridge/internal/bundle"
	"github.com/jward/esbridge/internal/unit"
)

// Diagnostic codes.
const (
	codeExpected         = 1005
	codeSyntax           = 1128
	codeNoExportedMember = 2305
	codeCannotFindModule = 2307
	codeFileNotFound     = 6053
)

// scope is the lexical context a type name is resolved in.
type scope struct {
	ns       *unit.Namespace
	generics []*unit.GenericParam
}

func (s scope) with(gs []*unit.GenericParam) scope {
	if len(gs) == 0 {
		return s
	}
	all := make([]*unit.GenericParam, 0, len(s.generics)+len(gs))
	all = append(all, s.generics...)
	all = append(all, gs...)
	return scope{ns: s.ns, generics: all}
}

type rawImport struct {
	imp    *unit.Import // nil for side-effect imports
	source string
	target string // resolved unit path
	line   int
	col    int
}

type pendingRef struct {
	ref *unit.TypeRef
	sc  scope
}

type pendingHeritage struct {
	h  *unit.Heritage
	sc scope
}

type pendingDefault struct {
	p  *unit.Param
	sc scope
}

// parseState is what a parse leaves behind for resolution.
type parseState struct {
	imports   []*rawImport
	refs      []pendingRef
	heritage  []pendingHeritage
	defaults  []pendingDefault
	fragments []*unit.Fragment
}

func newParseState() *parseState {
	return &parseState{}
}

// walker turns one syntax tree into declarations.
type walker struct {
	c   *Compiler
	u   *unit.Unit
	src []byte
	st  *parseState

	nsSeen  map[*unit.Namespace]bool
	modSeen map[*unit.Module]bool
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *walker) diag(sev unit.Severity, code int, n *sitter.Node, format string, args ...any) {
	p := n.StartPoint()
	w.u.Diagnostics = append(w.u.Diagnostics, unit.Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Path:     w.u.Path,
		Line:     int(p.Row) + 1,
		Column:   int(p.Column) + 1,
	})
}

// diagnose reports ERROR and MISSING nodes.
func (w *walker) diagnose(root *sitter.Node) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case n.IsMissing():
			w.diag(unit.SeverityError, codeExpected, n, "'%s' expected", n.Type())
			continue
		case n.Type() == "ERROR":
			snippet := strings.TrimSpace(w.text(n))
			if len(snippet) > 24 {
				snippet = snippet[:24] + "..."
			}
			w.diag(unit.SeverityError, codeSyntax, n, "unexpected %q", snippet)
			continue
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
}

func (w *walker) addNamespace(ns *unit.Namespace) {
	if w.nsSeen == nil {
		w.nsSeen = make(map[*unit.Namespace]bool)
	}
	if !w.nsSeen[ns] {
		w.nsSeen[ns] = true
		w.u.Namespaces = append(w.u.Namespaces, ns)
	}
}

func (w *walker) addModule(m *unit.Module) {
	if w.modSeen == nil {
		w.modSeen = make(map[*unit.Module]bool)
	}
	if !w.modSeen[m] {
		w.modSeen[m] = true
		w.u.Modules = append(w.u.Modules, m)
	}
}

func (w *walker) statements(n *sitter.Node, ns *unit.Namespace, exported bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.statement(n.NamedChild(i), ns, exported)
	}
}

func (w *walker) statement(n *sitter.Node, ns *unit.Namespace, exported bool) {
	switch n.Type() {
	case "export_statement":
		w.statements(n, ns, true)
	case "expression_statement", "ambient_declaration":
		w.statements(n, ns, exported)
	case "internal_module", "module":
		w.namespace(n, ns)
	case "class_declaration", "abstract_class_declaration":
		w.module(n, ns, exported, unit.KindClass)
	case "interface_declaration":
		w.module(n, ns, exported, unit.KindInterface)
	case "type_alias_declaration":
		w.alias(n, ns)
	case "lexical_declaration", "variable_declaration":
		w.variables(n, ns)
	case "import_statement":
		w.importStatement(n)
	}
}

func (w *walker) namespace(n *sitter.Node, parent *unit.Namespace) {
	name := strings.Trim(w.text(n.ChildByFieldName("name")), `"'`)
	if name == "" {
		return
	}
	full := name
	if parent.FullName != "" {
		full = parent.FullName + "." + name
	}
	ns := w.c.tree.Ensure(full)
	if body := n.ChildByFieldName("body"); body != nil {
		w.statements(body, ns, false)
	}
}

func (w *walker) module(n *sitter.Node, ns *unit.Namespace, exported bool, kind unit.Kind) {
	id := w.text(n.ChildByFieldName("name"))
	if id == "" {
		return
	}
	m, _ := ns.Module(id, kind)

	frag := &unit.Fragment{
		Unit:     w.u,
		Offset:   int(n.StartByte()),
		Comments: w.comments(n),
	}
	frag.Generics = w.generics(n.ChildByFieldName("type_parameters"), scope{ns: ns})
	sc := scope{ns: ns}.with(frag.Generics)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "class_heritage":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				clause := c.NamedChild(j)
				switch clause.Type() {
				case "extends_clause":
					frag.Extends = append(frag.Extends, w.extendsClause(clause, sc)...)
				case "implements_clause":
					frag.Implements = append(frag.Implements, w.heritageTypes(clause, sc)...)
				}
			}
		case "extends_type_clause":
			frag.Extends = append(frag.Extends, w.heritageTypes(c, sc)...)
		case "extends_clause":
			frag.Extends = append(frag.Extends, w.extendsClause(c, sc)...)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		frag.Members = w.members(body, sc)
	}

	m.AddFragment(frag)
	if exported || ns.FullName == "" {
		m.Used = true
	}
	w.st.fragments = append(w.st.fragments, frag)
	w.addModule(m)
	w.addNamespace(ns)
}

// extendsClause reads a class extends clause: value expressions, each
// optionally followed by type arguments.
func (w *walker) extendsClause(n *sitter.Node, sc scope) []*unit.Heritage {
	var out []*unit.Heritage
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "type_arguments" {
			if len(out) > 0 {
				out[len(out)-1].Args = w.typeArgs(c, sc)
			}
			continue
		}
		h := &unit.Heritage{Name: w.text(c)}
		w.st.heritage = append(w.st.heritage, pendingHeritage{h: h, sc: sc})
		out = append(out, h)
	}
	return out
}

func (w *walker) heritageTypes(n *sitter.Node, sc scope) []*unit.Heritage {
	var out []*unit.Heritage
	for i := 0; i < int(n.NamedChildCount()); i++ {
		t := n.NamedChild(i)
		h := &unit.Heritage{Name: w.text(t)}
		if t.Type() == "generic_type" {
			h.Name = w.text(t.ChildByFieldName("name"))
			h.Args = w.typeArgs(t.ChildByFieldName("type_arguments"), sc)
		}
		w.st.heritage = append(w.st.heritage, pendingHeritage{h: h, sc: sc})
		out = append(out, h)
	}
	return out
}

func (w *walker) members(body *sitter.Node, sc scope) []*unit.Member {
	var out []*unit.Member
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		var m *unit.Member
		switch c.Type() {
		case "method_definition", "method_signature", "abstract_method_signature":
			m = w.method(c, sc)
		case "public_field_definition", "property_signature":
			m = w.property(c, sc)
		case "call_signature":
			m = w.callSignature(c, sc, unit.MemberCall)
		case "construct_signature":
			m = w.callSignature(c, sc, unit.MemberNew)
		case "index_signature":
			m = w.index(c, sc)
		}
		if m == nil {
			continue
		}
		m.Comments = w.comments(c)
		m.Offset = int(c.StartByte())
		out = append(out, m)
	}
	return out
}

// modifiers reads the keyword children of a member node.
func (w *walker) modifiers(n *sitter.Node, m *unit.Member) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "accessibility_modifier":
			switch w.text(c) {
			case "private":
				m.Modifier = unit.ModifierPrivate
			case "protected":
				m.Modifier = unit.ModifierProtected
			}
		case "static":
			m.Static = true
		case "readonly":
			m.Readonly = true
		case "get":
			m.Kind = unit.MemberGetter
		case "set":
			m.Kind = unit.MemberSetter
		case "?":
			m.Optional = true
		}
	}
}

func (w *walker) memberName(n *sitter.Node, m *unit.Member) string {
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	switch name.Type() {
	case "private_property_identifier":
		m.Modifier = unit.ModifierPrivate
	case "computed_property_name":
		return strings.TrimSuffix(strings.TrimPrefix(w.text(name), "["), "]")
	}
	return w.text(name)
}

func (w *walker) method(n *sitter.Node, sc scope) *unit.Member {
	m := &unit.Member{Kind: unit.MemberMethod}
	w.modifiers(n, m)
	m.Name = w.memberName(n, m)
	if m.Name == "" {
		return nil
	}
	if m.Name == "constructor" && m.Kind == unit.MemberMethod {
		m.Kind = unit.MemberConstructor
	}
	m.Generics = w.generics(n.ChildByFieldName("type_parameters"), sc)
	msc := sc.with(m.Generics)
	m.Params = w.params(n.ChildByFieldName("parameters"), msc)
	m.Type = w.typeOf(n.ChildByFieldName("return_type"), msc)
	return m
}

func (w *walker) property(n *sitter.Node, sc scope) *unit.Member {
	m := &unit.Member{Kind: unit.MemberProperty}
	w.modifiers(n, m)
	m.Name = w.memberName(n, m)
	if m.Name == "" {
		return nil
	}
	m.Type = w.typeOf(n.ChildByFieldName("type"), sc)
	if v := n.ChildByFieldName("value"); v != nil {
		m.Init = w.text(v)
		m.InitLiteral = isLiteral(v)
	}
	return m
}

func (w *walker) callSignature(n *sitter.Node, sc scope, kind unit.MemberKind) *unit.Member {
	m := &unit.Member{Kind: kind}
	m.Generics = w.generics(field(n, "type_parameters", "type_parameters"), sc)
	msc := sc.with(m.Generics)
	m.Params = w.params(field(n, "parameters", "formal_parameters"), msc)
	ret := n.ChildByFieldName("return_type")
	if ret == nil {
		ret = field(n, "type", "type_annotation")
	}
	m.Type = w.typeOf(ret, msc)
	return m
}

func (w *walker) index(n *sitter.Node, sc scope) *unit.Member {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	m := &unit.Member{Kind: unit.MemberProperty, Computed: true, Name: w.text(name)}
	w.modifiers(n, m)
	m.KeyType = w.typeOf(n.ChildByFieldName("index_type"), sc)
	m.Type = w.typeOf(n.ChildByFieldName("type"), sc)
	return m
}

func (w *walker) params(n *sitter.Node, sc scope) []*unit.Param {
	if n == nil {
		return nil
	}
	var out []*unit.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "required_parameter" && c.Type() != "optional_parameter" {
			continue
		}
		p := &unit.Param{Optional: c.Type() == "optional_parameter"}
		pattern := c.ChildByFieldName("pattern")
		if pattern == nil {
			continue
		}
		if pattern.Type() == "rest_pattern" {
			p.Rest = true
			if pattern.NamedChildCount() > 0 {
				pattern = pattern.NamedChild(0)
			}
		}
		p.Name = w.text(pattern)
		if p.Name == "this" {
			continue
		}
		p.Type = w.typeOf(c.ChildByFieldName("type"), sc)
		if v := c.ChildByFieldName("value"); v != nil {
			p.Default = w.text(v)
			if v.Type() == "identifier" {
				w.st.defaults = append(w.st.defaults, pendingDefault{p: p, sc: sc})
			}
		}
		out = append(out, p)
	}
	return out
}

// generics reads a type_parameters list. Constraints and defaults may
// refer to any parameter of the same list.
func (w *walker) generics(n *sitter.Node, sc scope) []*unit.GenericParam {
	if n == nil {
		return nil
	}
	var gs []*unit.GenericParam
	var nodes []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "type_parameter" {
			continue
		}
		gs = append(gs, &unit.GenericParam{Name: w.text(c.ChildByFieldName("name"))})
		nodes = append(nodes, c)
	}
	gsc := sc.with(gs)
	for i, c := range nodes {
		gs[i].Constraint = w.typeOf(c.ChildByFieldName("constraint"), gsc)
		gs[i].Default = w.typeOf(c.ChildByFieldName("value"), gsc)
	}
	return gs
}

func (w *walker) alias(n *sitter.Node, ns *unit.Namespace) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	d := &unit.Declarator{
		Kind:      unit.DeclAlias,
		Name:      name,
		Namespace: ns,
		Unit:      w.u,
		Offset:    int(n.StartByte()),
		Comments:  w.comments(n),
	}
	d.Generics = w.generics(n.ChildByFieldName("type_parameters"), scope{ns: ns})
	d.Value = w.typeOf(n.ChildByFieldName("value"), scope{ns: ns}.with(d.Generics))
	ns.SetDeclarator(d)
	w.u.Declarators = append(w.u.Declarators, d)
	w.addNamespace(ns)
}

func (w *walker) variables(n *sitter.Node, ns *unit.Namespace) {
	kind := "var"
	if n.ChildCount() > 0 {
		switch first := n.Child(0).Type(); first {
		case "const", "let":
			kind = first
		}
	}
	comments := w.comments(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "variable_declarator" {
			continue
		}
		name := c.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			continue
		}
		d := &unit.Declarator{
			Kind:      unit.DeclVariable,
			Name:      w.text(name),
			Namespace: ns,
			Unit:      w.u,
			VarKind:   kind,
			Offset:    int(c.StartByte()),
			Comments:  comments,
		}
		d.Type = w.typeOf(c.ChildByFieldName("type"), scope{ns: ns})
		if v := c.ChildByFieldName("value"); v != nil {
			d.Init = w.text(v)
			d.InitSimple = isLiteral(v) || v.Type() == "identifier"
		}
		ns.SetDeclarator(d)
		w.u.Declarators = append(w.u.Declarators, d)
		w.addNamespace(ns)
	}
}

func (w *walker) importStatement(n *sitter.Node) {
	srcNode := n.ChildByFieldName("source")
	source := strings.Trim(w.text(srcNode), "\"'`")
	if source == "" {
		return
	}
	p := n.StartPoint()

	if !strings.HasSuffix(source, w.c.suffix) && bundle.AssetFilter.MatchString(source) {
		asset := source
		if !filepath.IsAbs(asset) {
			asset = filepath.Join(filepath.Dir(w.u.Path), source)
		}
		for _, a := range w.u.Assets {
			if a == asset {
				return
			}
		}
		w.u.Assets = append(w.u.Assets, asset)
		return
	}

	target := w.c.resolveSource(w.u.Path, source)
	if target == "" {
		w.diag(unit.SeverityWarning, codeCannotFindModule, n, "cannot find module %q", source)
	}

	var specs []*unit.Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			c := clause.NamedChild(j)
			switch c.Type() {
			case "identifier":
				specs = append(specs, &unit.Import{Local: w.text(c), Imported: "default", Source: source})
			case "named_imports":
				for k := 0; k < int(c.NamedChildCount()); k++ {
					spec := c.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					imported := w.text(spec.ChildByFieldName("name"))
					local := imported
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = w.text(alias)
					}
					specs = append(specs, &unit.Import{Local: local, Imported: imported, Source: source})
				}
			}
		}
	}

	line, col := int(p.Row)+1, int(p.Column)+1
	if len(specs) == 0 {
		w.st.imports = append(w.st.imports, &rawImport{source: source, target: target, line: line, col: col})
		return
	}
	for _, imp := range specs {
		w.u.Imports = append(w.u.Imports, imp)
		w.st.imports = append(w.st.imports, &rawImport{imp: imp, source: source, target: target, line: line, col: col})
	}
}

// finish hands the unit's imports to every fragment it declared.
func (w *walker) finish() {
	for _, f := range w.st.fragments {
		f.Imports = w.u.Imports
	}
}

// comments collects the comment siblings directly above n, or above the
// export or declare statement wrapping it. A comment trailing the previous
// statement on its last line is not included.
func (w *walker) comments(n *sitter.Node) []unit.Comment {
	target := n
	if p := n.Parent(); p != nil && (p.Type() == "export_statement" || p.Type() == "ambient_declaration") {
		target = p
	}
	var rev []unit.Comment
	for s := target.PrevNamedSibling(); s != nil && s.Type() == "comment"; s = s.PrevNamedSibling() {
		if prev := s.PrevNamedSibling(); prev != nil && prev.Type() != "comment" && prev.EndPoint().Row == s.StartPoint().Row {
			break
		}
		rev = append(rev, toComment(w.text(s)))
	}
	out := make([]unit.Comment, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

func toComment(text string) unit.Comment {
	if strings.HasPrefix(text, "/*") {
		return unit.Comment{Block: true, Text: strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/")}
	}
	return unit.Comment{Text: strings.TrimPrefix(text, "//")}
}

// field returns the named field of n, or its first named child of type
// typ when the grammar does not label it.
func field(n *sitter.Node, name, typ string) *sitter.Node {
	if c := n.ChildByFieldName(name); c != nil {
		return c
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func isLiteral(n *sitter.Node) bool {
	switch n.Type() {
	case "number", "string", "true", "false", "null":
		return true
	case "template_string":
		return n.NamedChildCount() == 0
	case "unary_expression":
		return n.NamedChildCount() == 1 && n.NamedChild(0).Type() == "number"
	}
	return false
}

// resolveSource maps an import source to a unit path, or "" when nothing
// on disk matches. Bare sources are looked up in node_modules directories
// from the importing file upwards.
func (c *Compiler) resolveSource(from, source string) string {
	if strings.HasPrefix(source, ".") || filepath.IsAbs(source) {
		base := source
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(from), source)
		}
		return c.candidate(base)
	}
	for dir := filepath.Dir(from); ; dir = filepath.Dir(dir) {
		if found := c.candidate(filepath.Join(dir, "node_modules", source)); found != "" {
			return found
		}
		if parent := filepath.Dir(dir); parent == dir {
			return ""
		}
	}
}

func (c *Compiler) candidate(base string) string {
	tries := []string{base + c.suffix, base + DescriptorSuffix, filepath.Join(base, "index"+c.suffix)}
	if strings.HasSuffix(base, c.suffix) {
		tries = append([]string{base}, tries...)
	}
	for _, p := range tries {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return normalize(p)
		}
	}
	return ""
}
