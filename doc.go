// Package esbridge is the build core of an ES-dialect compiler toolchain.
// It sits between a source compiler, which parses and resolves source
// files into compilation units, and the build outputs: bundled scripts,
// bundled stylesheets and images, and public-API declaration files.
//
// # Pipeline
//
// A [Engine.Build] runs in stages:
//
//  1. Entries resolve to unit paths and every unit is awaited until the
//     compiler reports it ready.
//  2. The local dependency closure of the entries is walked. Third-party
//     units are never entered.
//  3. Every plugin runs over every closure unit. A plugin handles one
//     unit at a time; distinct plugins run concurrently.
//  4. Assets first registered by the plugins get one secondary build.
//  5. Declarations for the closure are synthesized and written, either as
//     one index.d.es or one file per source file.
//
// # Usage
//
//	e, err := esbridge.New(
//		esbridge.WithWorkspace("path/to/project"),
//		esbridge.WithPlugins(esbridge.AssetsPlugin()),
//	)
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Build(ctx, nil)
//	fmt.Println(report.Summary())
//
// # Incremental Rebuilds
//
// [Engine.Watch] builds once and then serves change events. A changed
// asset gets only its own secondary build; a changed unit is re-awaited,
// re-run through the plugins alone and its closure resynthesized.
// Overlapping events for one path share a single [Engine.Rebuild].
//
// # Plugins
//
// Plugins implement [Plugin]. Scripted plugins are Risor scripts loaded
// through the internal/runtime package; they see the unit and may emit
// module text and register assets.
//
// # Ledger
//
// With [WithLedger] every build is recorded in SQLite: unit and module
// snapshots, diagnostics, asset builds and the hash of each declaration
// file. Unchanged declaration files are not rewritten, and
// [Engine.Manifest] is served from the ledger.
package esbridge
