package unit

import "strings"

// TypeKind enumerates the TypeRef variants.
type TypeKind int

const (
	// TypeBuiltin covers predefined, literal and otherwise opaque types;
	// Name holds the text as written.
	TypeBuiltin TypeKind = iota
	TypeModule
	TypeAlias
	TypeParam
	TypeUnion
	TypeIntersection
	TypeTuple
	TypeArray
	TypeFunction
	TypeGeneric
	TypeKeyof
)

// TypeRef is a reference to a type as written at one site. Composite kinds
// keep their operands in Elements; TypeGeneric keeps the instantiated type
// in Base and the arguments in Elements; TypeKeyof keeps its operand in Base.
type TypeRef struct {
	Kind TypeKind
	Name string

	Module *Module
	Alias  *Declarator
	Param  *GenericParam

	Elements []*TypeRef
	Base     *TypeRef

	Generics []*GenericParam
	Params   []*Param
	Return   *TypeRef
}

// Builtin returns an opaque type reference rendering as name.
func Builtin(name string) *TypeRef {
	return &TypeRef{Kind: TypeBuiltin, Name: name}
}

func (t *TypeRef) String() string {
	if t == nil {
		return "any"
	}
	switch t.Kind {
	case TypeModule:
		if t.Name == "" && t.Module != nil {
			return t.Module.ID
		}
		return t.Name
	case TypeUnion:
		return joinTypes(t.Elements, " | ")
	case TypeIntersection:
		return joinTypes(t.Elements, " & ")
	case TypeTuple:
		return "[" + joinTypes(t.Elements, ", ") + "]"
	case TypeArray:
		if len(t.Elements) == 0 {
			return "any[]"
		}
		el := t.Elements[0]
		switch el.Kind {
		case TypeUnion, TypeIntersection, TypeFunction:
			return "(" + el.String() + ")[]"
		}
		return el.String() + "[]"
	case TypeFunction:
		var b strings.Builder
		b.WriteString(RenderGenerics(t.Generics))
		b.WriteString("(")
		b.WriteString(RenderParams(t.Params))
		b.WriteString(")=>")
		b.WriteString(t.Return.String())
		return b.String()
	case TypeGeneric:
		return t.Base.String() + "<" + joinTypes(t.Elements, ", ") + ">"
	case TypeKeyof:
		return "keyof " + t.Base.String()
	default:
		return t.Name
	}
}

// RenderGenerics renders a generics list as `<T extends C = D, U>`, or the
// empty string for an empty list.
func RenderGenerics(gs []*GenericParam) string {
	if len(gs) == 0 {
		return ""
	}
	parts := make([]string, len(gs))
	for i, g := range gs {
		s := g.Name
		if g.Constraint != nil {
			s += " extends " + g.Constraint.String()
		}
		if g.Default != nil {
			s += " = " + g.Default.String()
		}
		parts[i] = s
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// RenderParams renders a parameter list without the surrounding parens.
// Defaulted parameters drop the optional marker.
func RenderParams(ps []*Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		var b strings.Builder
		if p.Rest {
			b.WriteString("...")
		}
		b.WriteString(p.Name)
		if p.Default != "" {
			if p.Type != nil {
				b.WriteString(":" + p.Type.String())
			}
			b.WriteString("=" + p.Default)
		} else {
			if p.Optional {
				b.WriteString("?")
			}
			if p.Type != nil {
				b.WriteString(":" + p.Type.String())
			}
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}
