package esbridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jward/esbridge/internal/unit"
)

// benchSource is a realistic class with generics, accessors and an
// inherited base, for exercising the full build pipeline.
const benchSource = `import { Base } from "./Base";

namespace app.models {
	/** A keyed collection of records. */
	export class Store%[1]d<T> extends Base {
		private items: T[] = [];
		static readonly LIMIT = 100;
		label?: string;

		constructor(name: string, ...seed: T[]) { super(); }

		get size(): number { return this.items.length; }
		set size(v: number) {}

		add(item: T): Store%[1]d<T> { this.items.push(item); return this; }
		find(pred: (item: T) => boolean): T | undefined { return undefined; }
		map<U>(fn: (item: T) => U): U[] { return []; }
		keys(): keyof T { return null; }
	}
}
`

const benchBase = `namespace app.models {
	export class Base {
		protected id: number = 0;
		describe(): string { return ""; }
	}
}
`

// writeBenchProject writes n model files importing one base class and an
// entry importing them all.
func writeBenchProject(b *testing.B, n int) string {
	b.Helper()
	dir := b.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	write("Base.es", benchBase)
	var entry strings.Builder
	for i := 0; i < n; i++ {
		write(fmt.Sprintf("Store%d.es", i), fmt.Sprintf(benchSource, i))
		fmt.Fprintf(&entry, "import { Store%[1]d } from \"./Store%[1]d\";\n", i)
	}
	write("App.es", entry.String())
	return dir
}

func BenchmarkBuild(b *testing.B) {
	ctx := context.Background()
	dir := writeBenchProject(b, 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e, err := New(WithWorkspace(dir), WithOutputDir(b.TempDir()), WithPlugins(AssetsPlugin()), WithBundler(newFakeBundler()))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := e.Build(ctx, nil); err != nil {
			e.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		e.Close()
		b.StartTimer()
	}
}

func BenchmarkRebuild(b *testing.B) {
	ctx := context.Background()
	dir := writeBenchProject(b, 20)
	e, err := New(WithWorkspace(dir), WithOutputDir(b.TempDir()), WithPlugins(AssetsPlugin()), WithBundler(newFakeBundler()))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if _, err := e.Build(ctx, nil); err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(dir, "Store0.es")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		src := fmt.Sprintf(benchSource, 0) + fmt.Sprintf("// edit %d\n", i)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := e.Rebuild(ctx, path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkClosure(b *testing.B) {
	units := make([]*unit.Unit, 500)
	for i := range units {
		units[i] = &unit.Unit{Path: fmt.Sprintf("/w/u%d.es", i)}
	}
	for i, u := range units {
		u.Dependencies = []*unit.Unit{units[(i+1)%len(units)], units[(i*7)%len(units)]}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got := Closure(units[:1]); len(got) != len(units) {
			b.Fatalf("closure has %d units, want %d", len(got), len(units))
		}
	}
}
