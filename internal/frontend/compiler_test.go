package frontend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/esbridge/internal/synth"
	"github.com/jward/esbridge/internal/unit"
)

const shapeSrc = `namespace app {
	export class Shape {
		protected name: string;
		getName(): string { return this.name; }
	}
}
`

const circleSrc = `import { Shape } from "./Shape";

namespace app {
	export class Circle extends Shape {
		radius: number = 1;
		getName(): string { return "circle"; }
	}
}
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func openReady(t *testing.T, c *Compiler, path string) *unit.Unit {
	t.Helper()
	u, err := c.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, c.Ready(context.Background(), u))
	return u
}

func memberNames(f *unit.Fragment) []string {
	var out []string
	for _, m := range f.Members {
		out = append(out, m.Name)
	}
	return out
}

func TestOpen_SameUnitForEquivalentPaths(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc})
	c := New()

	a, err := c.Open(context.Background(), filepath.Join(dir, "Shape.es"))
	require.NoError(t, err)
	b, err := c.Open(context.Background(), filepath.Join(dir, ".", "sub", "..", "Shape.es"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	got, ok := c.Lookup(filepath.Join(dir, "Shape.es"))
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, err = c.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestReady_CircleExtendsShape(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc, "Circle.es": circleSrc})
	c := New()
	circle := openReady(t, c, filepath.Join(dir, "Circle.es"))

	require.Len(t, circle.Modules, 1)
	m := circle.Modules[0]
	assert.Equal(t, "app.Circle", m.FullName())
	assert.True(t, m.Used)

	shapeUnit, ok := c.Lookup(filepath.Join(dir, "Shape.es"))
	require.True(t, ok)
	assert.Equal(t, []*unit.Unit{shapeUnit}, circle.Dependencies)

	frags := m.Fragments()
	require.Len(t, frags, 1)
	require.Len(t, frags[0].Extends, 1)
	require.NotNil(t, frags[0].Extends[0].Target)
	assert.Equal(t, "app.Shape", frags[0].Extends[0].Target.FullName())
	assert.Equal(t, []string{"radius", "getName"}, memberNames(frags[0]))

	radius := frags[0].Members[0]
	assert.Equal(t, "number", radius.Type.String())
	assert.Equal(t, "1", radius.Init)
	assert.True(t, radius.InitLiteral)

	pass := synth.NewPass(synth.Options{})
	pass.Unit(circle)
	res := pass.Result()
	ns, ok := c.Tree().Lookup("app")
	require.True(t, ok)
	entries := res.Entries(ns)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "declare class Circle extends Shape {")
	assert.Contains(t, entries[0].Text, "radius:number=1")
	assert.NotContains(t, entries[0].Text, "getName", "inherited method is suppressed")
}

func TestReady_MembersAndModifiers(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Widget.es": `export class Widget {
	private secret: number;
	#hidden = 1;
	static readonly LIMIT = 10;
	label?: string;
	constructor(id: string, ...rest: number[]) {}
	get size(): number { return 1; }
	set size(v: number) {}
	render(depth: number = 2): void {}
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "Widget.es"))
	require.Len(t, u.Modules, 1)
	members := u.Modules[0].Fragments()[0].Members

	byName := func(name string, kind unit.MemberKind) *unit.Member {
		for _, m := range members {
			if m.Name == name && m.Kind == kind {
				return m
			}
		}
		t.Fatalf("member %s (%s) not found", name, kind)
		return nil
	}

	assert.Equal(t, unit.ModifierPrivate, byName("secret", unit.MemberProperty).Modifier)
	assert.Equal(t, unit.ModifierPrivate, byName("#hidden", unit.MemberProperty).Modifier)

	limit := byName("LIMIT", unit.MemberProperty)
	assert.True(t, limit.Static)
	assert.True(t, limit.Readonly)

	assert.True(t, byName("label", unit.MemberProperty).Optional)

	ctor := byName("constructor", unit.MemberConstructor)
	require.Len(t, ctor.Params, 2)
	assert.True(t, ctor.Params[1].Rest)
	assert.Equal(t, "rest", ctor.Params[1].Name)
	assert.Equal(t, "number[]", ctor.Params[1].Type.String())

	byName("size", unit.MemberGetter)
	byName("size", unit.MemberSetter)

	render := byName("render", unit.MemberMethod)
	require.Len(t, render.Params, 1)
	assert.Equal(t, "2", render.Params[0].Default)
	assert.Equal(t, "void", render.Type.String())
}

func TestReady_GenericsResolveToParams(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Box.es": `export class Box<T> {
	value: T;
	map<U>(fn: (v: T) => U): Box<U> { return null; }
	keys(): keyof T { return null; }
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "Box.es"))
	frag := u.Modules[0].Fragments()[0]
	require.Len(t, frag.Generics, 1)
	assert.Equal(t, "T", frag.Generics[0].Name)

	value := frag.Members[0]
	assert.Equal(t, unit.TypeParam, value.Type.Kind)
	assert.Same(t, frag.Generics[0], value.Type.Param)

	mapper := frag.Members[1]
	require.Len(t, mapper.Generics, 1)
	assert.Equal(t, "(v:T)=>U", mapper.Params[0].Type.String())
	assert.Equal(t, unit.TypeGeneric, mapper.Type.Kind)
	assert.Same(t, u.Modules[0], mapper.Type.Base.Module, "Box<U> refers back to the module")

	assert.Equal(t, "keyof T", frag.Members[2].Type.String())
}

func TestReady_InterfaceHeritageAndSignatures(t *testing.T) {
	dir := writeFiles(t, map[string]string{"types.es": `namespace lib {
	export interface Base { id: number; }
	export interface Named extends Base {
		name?: string;
		(x: number): string;
		new (x: number): Named;
		[key: string]: any;
	}
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "types.es"))
	require.Len(t, u.Modules, 2)

	named := u.Modules[1]
	assert.Equal(t, unit.KindInterface, named.Kind)
	frag := named.Fragments()[0]
	require.Len(t, frag.Extends, 1)
	assert.Same(t, u.Modules[0], frag.Extends[0].Target)

	kinds := make([]unit.MemberKind, 0, len(frag.Members))
	for _, m := range frag.Members {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []unit.MemberKind{unit.MemberProperty, unit.MemberCall, unit.MemberNew, unit.MemberProperty}, kinds)
	assert.True(t, frag.Members[0].Optional)
	assert.True(t, frag.Members[3].Computed)
	assert.Equal(t, "string", frag.Members[3].KeyType.String())
}

func TestReady_AliasesAndVariables(t *testing.T) {
	dir := writeFiles(t, map[string]string{"consts.es": `namespace cfg {
	export type Id = string | number;
	export const LIMIT = 10;
	export let current: Id = compute();
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "consts.es"))
	require.Len(t, u.Declarators, 3)

	id := u.Declarators[0]
	assert.Equal(t, unit.DeclAlias, id.Kind)
	assert.Equal(t, "cfg.Id", id.FullName())
	assert.Equal(t, "string | number", id.Value.String())

	limit := u.Declarators[1]
	assert.Equal(t, "const", limit.VarKind)
	assert.True(t, limit.InitSimple)

	current := u.Declarators[2]
	assert.Equal(t, "let", current.VarKind)
	assert.False(t, current.InitSimple)
	assert.Equal(t, unit.TypeAlias, current.Type.Kind)
	assert.Same(t, id, current.Type.Alias)
}

func TestReady_Diagnostics(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Broken.es": `import { Gone } from "./missing";
export class Broken {
	foo( {
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "Broken.es"))

	var errs, warns int
	for _, d := range u.Diagnostics {
		switch d.Severity {
		case unit.SeverityError:
			errs++
		case unit.SeverityWarning:
			warns++
			assert.Equal(t, codeCannotFindModule, d.Code)
			assert.Equal(t, 1, d.Line)
		}
	}
	assert.Positive(t, errs)
	assert.Equal(t, 1, warns)
}

func TestReady_MissingFileIsDiagnosed(t *testing.T) {
	c := New()
	u := openReady(t, c, filepath.Join(t.TempDir(), "Nope.es"))
	require.Len(t, u.Diagnostics, 1)
	assert.Equal(t, codeFileNotFound, u.Diagnostics[0].Code)
}

func TestReady_AssetImports(t *testing.T) {
	dir := writeFiles(t, map[string]string{"App.es": `import "./theme.css";
import logo from "./img/logo.png";
import "./theme.css";
export class App {}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "App.es"))
	assert.Equal(t, []string{filepath.Join(dir, "theme.css"), filepath.Join(dir, "img", "logo.png")}, u.Assets)
	assert.Empty(t, u.Dependencies)
	assert.Empty(t, u.Diagnostics)
}

func TestReady_ThirdPartyDependency(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"src/App.es":                  "import { Lib } from \"vendor\";\nexport class App { lib: Lib; }\n",
		"node_modules/vendor/index.es": "export class Lib {}\n",
	})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "src", "App.es"))
	require.Len(t, u.Dependencies, 1)
	assert.True(t, u.Dependencies[0].ThirdParty)
	assert.False(t, u.ThirdParty)
}

func TestReady_CyclicImportsTerminate(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"A.es": "import { B } from \"./B\";\nexport class A { b: B; }\n",
		"B.es": "import { A } from \"./A\";\nexport class B { a: A; }\n",
	})
	c := New()
	a := openReady(t, c, filepath.Join(dir, "A.es"))
	b := openReady(t, c, filepath.Join(dir, "B.es"))
	assert.Equal(t, []*unit.Unit{b}, a.Dependencies)
	assert.Equal(t, []*unit.Unit{a}, b.Dependencies)
}

func TestPrepare_ResolvesSiblingsWithoutImports(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"Shape.es":  shapeSrc,
		"Square.es": "namespace app {\n\texport class Square extends Shape {}\n}\n",
	})
	c := New()
	ctx := context.Background()
	square, err := c.Open(ctx, filepath.Join(dir, "Square.es"))
	require.NoError(t, err)
	shape, err := c.Open(ctx, filepath.Join(dir, "Shape.es"))
	require.NoError(t, err)

	require.NoError(t, c.Prepare(ctx, []*unit.Unit{square, shape}))
	require.NoError(t, c.Ready(ctx, square))
	assert.Equal(t, []*unit.Unit{shape}, square.Dependencies)
}

func TestInvalidAndClear(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc})
	path := filepath.Join(dir, "Shape.es")
	c := New()
	u := openReady(t, c, path)
	before := u.Modules[0]
	assert.False(t, c.Invalid(u))

	updated := strings.Replace(shapeSrc, "getName(): string", "getName(): string { return this.name; }\n\t\tgetArea(): number", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	assert.True(t, c.Invalid(u))

	c.Clear(u)
	assert.Empty(t, u.Modules)
	assert.Empty(t, before.Fragments())

	require.NoError(t, c.Ready(context.Background(), u))
	assert.False(t, c.Invalid(u))
	require.Len(t, u.Modules, 1)
	assert.Same(t, before, u.Modules[0], "module identity survives a re-parse")
	assert.Contains(t, memberNames(u.Modules[0].Fragments()[0]), "getArea")
}

func TestDocumentKinds(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"types/globals.es": "declare class Console { log(msg: string): void; }\n",
		"lib.d.es":         "export class Lib {}\n",
	})
	globals := filepath.Join(dir, "types", "globals.es")
	c := New(WithGlobalDocuments(globals))

	g := openReady(t, c, globals)
	assert.True(t, g.GlobalDocument)
	assert.True(t, g.Excluded())

	d := openReady(t, c, filepath.Join(dir, "lib.d.es"))
	assert.True(t, d.DescriptorDocument)
}

func TestComments(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Doc.es": `/** A documented class. */
export class Doc {
	// the value
	value: number;
	other: number; // trailing
	last: number;
}
`})
	c := New()
	u := openReady(t, c, filepath.Join(dir, "Doc.es"))
	frag := u.Modules[0].Fragments()[0]
	require.Len(t, frag.Comments, 1)
	assert.True(t, frag.Comments[0].Block)
	assert.Equal(t, "* A documented class. ", frag.Comments[0].Text)

	require.Len(t, frag.Members, 3)
	assert.Equal(t, []unit.Comment{{Text: " the value"}}, frag.Members[0].Comments)
	assert.Empty(t, frag.Members[2].Comments, "trailing comment belongs to the previous member")
}
