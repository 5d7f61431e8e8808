package synth

import (
	"strconv"
	"strings"

	"github.com/jward/esbridge/internal/unit"
)

const (
	moduleIndent = "\t"
	memberIndent = "\t\t"
)

// renderComments renders comments one per line at indent. Continuation
// lines of block comments are re-indented.
func renderComments(cs []unit.Comment, indent string) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		text := strings.ReplaceAll(c.Text, "\r", "")
		if !c.Block {
			out = append(out, indent+"//"+text)
			continue
		}
		lines := strings.Split(text, "\n")
		for i := 1; i < len(lines); i++ {
			lines[i] = indent + strings.TrimLeft(lines[i], " \t")
		}
		out = append(out, indent+"/*"+strings.Join(lines, "\n")+"*/")
	}
	return out
}

func withComments(cs []unit.Comment, indent, line string) string {
	lines := renderComments(cs, indent)
	lines = append(lines, indent+strings.TrimLeft(line, " \t"))
	return strings.Join(lines, "\n")
}

func memberKey(m *unit.Member) string {
	if m.Computed {
		return "[" + m.Name + ":" + m.KeyType.String() + "]"
	}
	return m.Name
}

// literalType infers the declared type of a literal initializer.
func literalType(init string) string {
	switch {
	case init == "true" || init == "false":
		return "boolean"
	case init == "null":
		return "null"
	case strings.HasPrefix(init, `"`), strings.HasPrefix(init, "'"), strings.HasPrefix(init, "`"):
		return "string"
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(init, "_", ""), 64); err == nil {
		return "number"
	}
	return "any"
}

func signature(m *unit.Member) string {
	var b strings.Builder
	b.WriteString(unit.RenderGenerics(m.Generics))
	b.WriteString("(")
	b.WriteString(unit.RenderParams(m.Params))
	b.WriteString(")")
	switch {
	case m.Type != nil:
		b.WriteString(":" + m.Type.String())
	case m.Kind != unit.MemberConstructor:
		b.WriteString(":void")
	}
	return b.String()
}

// renderMember serializes one retained member. Modifiers come in the order
// static, protected, const.
func renderMember(m *unit.Member) string {
	var b strings.Builder
	if m.Static {
		b.WriteString("static ")
	}
	if m.Modifier == unit.ModifierProtected {
		b.WriteString("protected ")
	}
	switch m.Kind {
	case unit.MemberProperty:
		if m.Readonly {
			b.WriteString("const ")
		}
		b.WriteString(memberKey(m))
		if m.Optional {
			b.WriteString("?")
		}
		switch {
		case m.Type != nil:
			b.WriteString(":" + m.Type.String())
		case m.InitLiteral:
			b.WriteString(":" + literalType(m.Init))
		default:
			b.WriteString(":any")
		}
		if m.InitLiteral && m.Init != "" {
			b.WriteString("=" + m.Init)
		}
	case unit.MemberGetter:
		b.WriteString("get " + memberKey(m) + signature(m))
	case unit.MemberSetter:
		b.WriteString("set " + memberKey(m) + signature(m))
	case unit.MemberConstructor:
		b.WriteString("constructor" + signature(m))
	case unit.MemberCall:
		b.WriteString(signature(m))
	case unit.MemberNew:
		b.WriteString("new" + signature(m))
	default:
		b.WriteString(memberKey(m))
		if m.Optional {
			b.WriteString("?")
		}
		b.WriteString(signature(m))
	}
	return withComments(m.Comments, memberIndent, b.String())
}

// rank orders members: static, protected, signatures, properties,
// accessors, everything else.
func rank(m *unit.Member) int {
	switch {
	case m.Static:
		return -5
	case m.Modifier == unit.ModifierProtected:
		return -4
	case m.Kind.Signature():
		return -3
	case m.Kind == unit.MemberProperty:
		return -2
	case m.Kind == unit.MemberGetter || m.Kind == unit.MemberSetter:
		return -1
	}
	return 0
}

// renderDeclarator serializes a top-level alias or variable.
func renderDeclarator(d *unit.Declarator) string {
	var line string
	switch d.Kind {
	case unit.DeclAlias:
		line = "declare type " + d.Name + unit.RenderGenerics(d.Generics) + " = " + d.Value.String() + ";"
	default:
		kind := d.VarKind
		if kind == "" {
			kind = "var"
		}
		typ := "any"
		switch {
		case d.Type != nil:
			typ = d.Type.String()
		case d.InitSimple && d.Init != "":
			typ = literalType(d.Init)
		}
		line = "declare " + kind + " " + d.Name + ":" + typ
		if d.InitSimple && d.Init != "" {
			line += " = " + d.Init
		}
		line += ";"
	}
	return withComments(d.Comments, moduleIndent, line)
}

func renderHeritage(hs []*unit.Heritage) string {
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = h.String()
	}
	return strings.Join(parts, ", ")
}

func renderImport(imp *unit.Import) string {
	if imp.Aliased() {
		return "import " + imp.FullName() + " as " + imp.Local + ";"
	}
	return "import " + imp.FullName() + ";"
}
