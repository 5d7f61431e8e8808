package esbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/esbridge/internal/unit"
)

const shapeSrc = `namespace app {
	export class Shape {
		protected name: string;
		getName(): string { return this.name; }
	}
}
`

const shapeWithAreaSrc = `namespace app {
	export class Shape {
		protected name: string;
		getName(): string { return this.name; }
		getArea(): number { return 0; }
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuild_ShapeCircleMonolithic(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc, "Circle.es": circleSrc})
	e := newTestEngine(t, WithWorkspace(dir), WithPlugins(AssetsPlugin()), WithBundler(newFakeBundler()))

	report, err := e.Build(context.Background(), []string{"Circle.es"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Circle.es"), filepath.Join(dir, "Shape.es")}, report.Units)
	assert.Zero(t, report.Errors())

	index := filepath.Join(dir, "build", "index.d.es")
	assert.Equal(t, []string{index}, report.Outputs)
	text := readFile(t, index)
	assert.Contains(t, text, "package app {")
	assert.Contains(t, text, "declare class Circle extends Shape {")
	assert.Contains(t, text, "declare class Shape {")
	assert.Equal(t, 1, strings.Count(text, "package app {"), "one block per namespace")
}

func TestBuild_ShapeCircleByFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc, "Circle.es": circleSrc})
	e := newTestEngine(t,
		WithWorkspace(dir),
		WithPlugins(AssetsPlugin()),
		WithBundler(newFakeBundler()),
		WithTypings(Typings{Emit: true, ByFile: true, Dirname: "types"}),
	)

	report, err := e.Build(context.Background(), []string{"Circle.es"})
	require.NoError(t, err)
	circle := filepath.Join(dir, "build", "types", "Circle.d.es")
	shape := filepath.Join(dir, "build", "types", "Shape.d.es")
	assert.ElementsMatch(t, []string{circle, shape}, report.Outputs)
	assert.Contains(t, readFile(t, circle), "declare class Circle extends Shape {")
	assert.NotContains(t, readFile(t, circle), "declare class Shape {")
	assert.Contains(t, readFile(t, shape), "declare class Shape {")
	assert.NoFileExists(t, filepath.Join(dir, "build", "index.d.es"))
}

func TestBuild_TypingsDisabled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"App.es": shapeSrc})
	e := newTestEngine(t,
		WithWorkspace(dir),
		WithPlugins(AssetsPlugin()),
		WithBundler(newFakeBundler()),
		WithTypings(Typings{}),
	)
	report, err := e.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outputs)
	assert.NoFileExists(t, filepath.Join(dir, "build", "index.d.es"))
}

func TestRebuild_MergesIntoMonolithicIndex(t *testing.T) {
	dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc, "Circle.es": circleSrc})
	e := newTestEngine(t, WithWorkspace(dir), WithPlugins(AssetsPlugin()), WithBundler(newFakeBundler()))
	ctx := context.Background()

	_, err := e.Build(ctx, []string{"Circle.es"})
	require.NoError(t, err)
	index := filepath.Join(dir, "build", "index.d.es")
	assert.NotContains(t, readFile(t, index), "getArea")

	shape := filepath.Join(dir, "Shape.es")
	require.NoError(t, os.WriteFile(shape, []byte(shapeWithAreaSrc), 0o644))
	report, err := e.Rebuild(ctx, shape)
	require.NoError(t, err)
	assert.Equal(t, []string{shape}, report.Units, "a dependency's closure does not reach its dependents")

	text := readFile(t, index)
	assert.Contains(t, text, "getArea")
	assert.Contains(t, text, "declare class Circle extends Shape {", "untouched units stay in the index")
	assert.Equal(t, 1, strings.Count(text, "declare class Shape {"))
}

func TestBuild_LedgerSkipsUnchangedOutputs(t *testing.T) {
	dir := writeFiles(t, map[string]string{"App.es": shapeSrc})
	ledger := filepath.Join(dir, "build", ".esbridge", "ledger.db")
	e := newTestEngine(t,
		WithWorkspace(dir),
		WithPlugins(AssetsPlugin()),
		WithBundler(newFakeBundler()),
		WithLedger(ledger),
		WithClear(false),
	)
	ctx := context.Background()
	index := filepath.Join(dir, "build", "index.d.es")

	report, err := e.Build(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{index}, report.Outputs)

	report, err = e.Build(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outputs)
	assert.Equal(t, []string{index}, report.Unchanged)

	require.NoError(t, os.Remove(index))
	report, err = e.Build(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{index}, report.Outputs, "a missing file is rewritten")

	rec, err := e.Store().UnitByPath(filepath.Join(dir, "App.es"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	mods, err := e.Store().ModulesByUnit(rec.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "app.Shape", mods[0].FullName)
}

func TestManifest(t *testing.T) {
	for _, withLedger := range []bool{false, true} {
		t.Run(map[bool]string{false: "memory", true: "ledger"}[withLedger], func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"Shape.es": shapeSrc, "Circle.es": circleSrc})
			opts := []Option{
				WithWorkspace(dir),
				WithPlugins(AssetsPlugin()),
				WithBundler(newFakeBundler()),
				WithTypings(Typings{Emit: true, ByFile: true, Dirname: "types"}),
			}
			if withLedger {
				opts = append(opts, WithLedger(filepath.Join(dir, "build", ".esbridge", "ledger.db")))
			}
			e := newTestEngine(t, opts...)
			_, err := e.Build(context.Background(), []string{"Circle.es"})
			require.NoError(t, err)

			m, err := e.Manifest("@acme/shapes")
			require.NoError(t, err)
			assert.Equal(t, "@acme/shapes", m.Scope)
			assert.Equal(t, []string{"types/Circle.d.es", "types/Shape.d.es"}, m.Files)
			assert.Equal(t, []int{0}, m.Types["app.Circle"].Indexers)
			assert.Equal(t, []int{1}, m.Types["app.Shape"].Indexers)

			data, err := m.JSON()
			require.NoError(t, err)
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Contains(t, decoded, "scope")
			assert.Contains(t, decoded, "files")
			assert.Contains(t, decoded, "types")
		})
	}
}

func TestReport_Summary(t *testing.T) {
	r := &Report{OutputDir: "/w/build"}
	assert.Equal(t, "Build done.", r.Summary())

	r.Diagnostics = []unit.Diagnostic{
		{Severity: unit.SeverityError, Code: 2304, Message: "Cannot find name", Path: "/w/a.es", Line: 1, Column: 1},
		{Severity: unit.SeverityWarning, Code: 2307, Message: "Cannot find module", Path: "/w/a.es", Line: 2, Column: 1},
		{Severity: unit.SeverityInfo, Code: 1, Message: "note", Path: "/w/a.es", Line: 3, Column: 1},
	}
	assert.Equal(t, 2, r.Errors())
	assert.Equal(t, "Build done. but found 2 errors", r.Summary())

	var buf bytes.Buffer
	r.Watching = true
	r.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "/w/a.es:1:1: error[2304]: Cannot find name")
	assert.NotContains(t, out, "note")
	assert.NotContains(t, out, "Build successful!")
	assert.Contains(t, out, "Output /w/build")
	assert.Contains(t, out, "Starting compilation in watch mode...")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "/w/build")
	out := buf.String()
	assert.Contains(t, out, "Build successful!")
	assert.Contains(t, out, "Output:/w/build")
	assert.Contains(t, out, strings.Repeat("*", len("Output:/w/build")+10))
}
