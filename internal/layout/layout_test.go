package layout

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/esbridge/internal/synth"
	"github.com/jward/esbridge/internal/unit"
)

// nestedResult synthesizes modules across three namespace depths, with the
// deepest unit synthesized first.
func nestedResult(t *testing.T) (*synth.Result, []*unit.Unit) {
	t.Helper()
	tree := unit.NewTree()
	deep := &unit.Unit{Path: "/src/com/acme/ui/Button.es"}
	mid := &unit.Unit{Path: "/src/com/acme/App.es"}
	root := &unit.Unit{Path: "/src/Main.es"}

	add := func(u *unit.Unit, ns, id string) {
		m, _ := tree.Ensure(ns).Module(id, unit.KindClass)
		m.Used = true
		m.AddFragment(&unit.Fragment{Unit: u})
		u.Modules = append(u.Modules, m)
	}
	add(deep, "com.acme.ui", "Button")
	add(mid, "com.acme", "App")
	add(root, "", "Main")

	p := synth.NewPass(synth.Options{})
	for _, u := range []*unit.Unit{deep, mid, root} {
		p.Unit(u)
	}
	return p.Result(), []*unit.Unit{deep, mid, root}
}

var packageHead = regexp.MustCompile(`(?m)^package ([\w.]*) ?\{$`)

func TestMonolithic_DepthOrdering(t *testing.T) {
	t.Parallel()
	r, _ := nestedResult(t)

	f := Monolithic(r, "/out")
	assert.Equal(t, filepath.Join("/out", "index.d.es"), f.Path)

	var depths []int
	for _, m := range packageHead.FindAllStringSubmatch(f.Content, -1) {
		if m[1] == "" {
			depths = append(depths, 0)
			continue
		}
		depths = append(depths, strings.Count(m[1], ".")+1)
	}
	require.Len(t, depths, 3)
	for i := 1; i < len(depths); i++ {
		assert.LessOrEqual(t, depths[i-1], depths[i], "blocks must be non-decreasing in depth:\n%s", f.Content)
	}
	assert.True(t, strings.HasPrefix(f.Content, "package {\n\tdeclare class Main {\n\t}\n}"), f.Content)
	assert.Contains(t, f.Content, "package com.acme.ui {\n\tdeclare class Button {\n\t}\n}")
	assert.ElementsMatch(t, []string{"Main", "com.acme.App", "com.acme.ui.Button"}, f.Names)
}

func TestMonolithic_GlobalsFirstInBlock(t *testing.T) {
	t.Parallel()
	tree := unit.NewTree()
	u := &unit.Unit{Path: "/src/app/A.es"}
	ns := tree.Ensure("app")
	alias := &unit.Declarator{Kind: unit.DeclAlias, Name: "Id", Namespace: ns, Unit: u, Value: unit.Builtin("string")}
	m, _ := ns.Module("A", unit.KindClass)
	m.Used = true
	m.AddFragment(&unit.Fragment{Unit: u, Members: []*unit.Member{
		{Name: "id", Kind: unit.MemberProperty, Type: &unit.TypeRef{Kind: unit.TypeAlias, Name: "Id", Alias: alias}},
	}})
	u.Modules = []*unit.Module{m}

	p := synth.NewPass(synth.Options{})
	p.Unit(u)
	f := Monolithic(p.Result(), "/out")

	assert.Equal(t, "package app {\n\tdeclare type Id = string;\n\n\tdeclare class A {\n\t\tid:Id\n\t}\n}", f.Content)
}

func TestByFile_MirrorsSourcePaths(t *testing.T) {
	t.Parallel()
	r, units := nestedResult(t)

	files := ByFile(r, Options{BuildDir: "/out", SourceDir: "/src", Dirname: "types"})
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join("/out", "types", "com", "acme", "ui", "Button.d.es"), files[0].Path)
	assert.Equal(t, filepath.Join("/out", "types", "com", "acme", "App.d.es"), files[1].Path)
	assert.Equal(t, filepath.Join("/out", "types", "Main.d.es"), files[2].Path)
	assert.Equal(t, "package com.acme.ui {\n\tdeclare class Button {\n\t}\n}", files[0].Content)
	_ = units
}

func TestOutputPath(t *testing.T) {
	t.Parallel()
	outside := "/vendor/lib/widget.view.es"
	sum := md5.Sum([]byte(outside))
	hashed := "widget-" + hex.EncodeToString(sum[:])[:6] + ".d.es"

	tests := []struct {
		name   string
		source string
		opts   Options
		want   string
	}{
		{"relative dirname", "/src/a/B.es", Options{BuildDir: "/out", SourceDir: "/src", Dirname: "types"}, "/out/types/a/B.d.es"},
		{"default dirname", "/src/a/B.es", Options{BuildDir: "/out", SourceDir: "/src"}, "/out/a/B.d.es"},
		{"absolute dirname", "/src/a/B.es", Options{BuildDir: "/out", SourceDir: "/src", Dirname: "/typings"}, "/typings/a/B.d.es"},
		{"descriptor keeps name", "/src/env.d.es", Options{BuildDir: "/out", SourceDir: "/src"}, "/out/env.d.es"},
		{"outside source root", outside, Options{BuildDir: "/out", SourceDir: "/src"}, filepath.Join("/out", hashed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), OutputPath(tt.source, tt.opts))
		})
	}
}

func TestFile_Write(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := File{Path: filepath.Join(dir, "nested", "deep", "x.d.es"), Content: "package {\n}"}
	require.NoError(t, f.Write())

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "package {\n}", string(data))
}
