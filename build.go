package esbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/esbridge/internal/assets"
	"github.com/jward/esbridge/internal/layout"
	"github.com/jward/esbridge/internal/store"
	"github.com/jward/esbridge/internal/synth"
	"github.com/jward/esbridge/internal/unit"
)

// Build runs the full pipeline over entries: units are opened and awaited,
// plugins run over the local dependency closure, newly registered assets
// get their secondary build, and declarations are synthesized and written.
// Per-unit and per-asset failures end up in the report; the returned error
// is reserved for failures that stop the whole build.
func (e *Engine) Build(ctx context.Context, entries []string) (*Report, error) {
	return e.build(ctx, entries, false)
}

func (e *Engine) build(ctx context.Context, entries []string, watching bool) (*Report, error) {
	start := time.Now()
	paths, err := e.ResolveEntries(entries)
	if err != nil {
		return nil, err
	}
	if e.clear && !watching {
		if err := e.clearOutput(); err != nil {
			return nil, err
		}
	}

	if err := e.refreshLedger(); err != nil {
		return nil, err
	}

	report := &Report{OutputDir: e.outDir, Watching: watching}
	roots, failures := e.obtainAll(ctx, paths)
	report.Failures = append(report.Failures, failures...)
	closure, err := e.readyClosure(ctx, roots)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("closure resolved", "entries", len(roots), "units", len(closure))

	r := e.newRun()
	report.Failures = append(report.Failures, e.sequence(ctx, closure, r)...)
	e.buildAssets(ctx, r.newAssets(), report)

	if err := e.emitAll(closure, report); err != nil {
		return nil, err
	}

	e.describe(closure, report)
	if err := e.record(closure, report); err != nil {
		return nil, err
	}
	e.logger.Info("build finished", "units", len(closure), "outputs", len(report.Outputs),
		"errors", report.Errors(), "elapsed", time.Since(start))
	return report, nil
}

// emitAll synthesizes units and writes their declarations, retaining the
// result for later incremental merges.
func (e *Engine) emitAll(units []*unit.Unit, report *Report) error {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	res := e.synthesize(units)
	e.mu.Lock()
	e.retained = res
	e.mu.Unlock()
	return e.emitTypings(res, units, report)
}

// clearOutput empties the output directory, sparing the entry holding
// the ledger.
func (e *Engine) clearOutput() error {
	items, err := os.ReadDir(e.outDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("esbridge: clear output: %w", err)
	}
	for _, it := range items {
		p := filepath.Join(e.outDir, it.Name())
		if e.ledgerPath != "" && within(p, e.ledgerPath) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("esbridge: clear output: %w", err)
		}
	}
	e.mu.Lock()
	clear(e.written)
	e.mu.Unlock()
	return nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Engine) buildAssets(ctx context.Context, recs []*assets.Record, report *Report) {
	failed := e.assets.BuildEach(ctx, recs)
	for _, rec := range recs {
		if !e.assets.Policy().Eligible(rec.Path) {
			continue
		}
		if err, ok := failed[rec.Path]; ok {
			report.Failures = append(report.Failures, Failure{Stage: "asset", Path: rec.Path, Err: err})
			continue
		}
		report.Assets = append(report.Assets, rec.Path)
	}
}

// synthesize runs one declaration pass over units.
func (e *Engine) synthesize(units []*unit.Unit) *synth.Result {
	e.mu.Lock()
	files := make(map[*unit.Unit]string, len(e.emitFiles))
	for u, f := range e.emitFiles {
		files[u] = f
	}
	e.mu.Unlock()

	pass := synth.NewPass(synth.Options{EmitFiles: files})
	for _, u := range units {
		pass.Unit(u)
	}
	return pass.Result()
}

func (e *Engine) layoutOptions() layout.Options {
	return layout.Options{
		BuildDir:  e.outDir,
		SourceDir: e.workspace,
		Dirname:   e.typings.Dirname,
	}
}

// emitTypings lays res out and writes it. In by-file mode only files of
// units are written; the monolithic index always carries everything res
// holds.
func (e *Engine) emitTypings(res *synth.Result, units []*unit.Unit, report *Report) error {
	if !e.typings.Emit {
		return nil
	}
	var files []layout.File
	if e.typings.ByFile {
		scope := make(map[string]bool, len(units))
		for _, u := range units {
			scope[layout.OutputPath(u.Path, e.layoutOptions())] = true
		}
		for _, f := range layout.ByFile(res, e.layoutOptions()) {
			if scope[f.Path] {
				files = append(files, f)
			}
		}
	} else {
		files = append(files, layout.Monolithic(res, e.outDir))
	}
	return e.writeTypings(files, report)
}

// writeTypings writes files, skipping those the ledger shows unchanged.
func (e *Engine) writeTypings(files []layout.File, report *Report) error {
	for _, f := range files {
		hash := store.ContentHash(f.Content, f.Names)
		if e.store != nil {
			same, err := e.store.OutputUnchanged(f.Path, hash)
			if err != nil {
				return fmt.Errorf("esbridge: %w", err)
			}
			if _, statErr := os.Stat(f.Path); same && statErr == nil {
				report.Unchanged = append(report.Unchanged, f.Path)
				e.remember(f)
				continue
			}
		}
		if err := f.Write(); err != nil {
			return fmt.Errorf("esbridge: %w", err)
		}
		if e.store != nil {
			if err := e.store.RecordOutput(f.Path, hash, f.Names); err != nil {
				return fmt.Errorf("esbridge: %w", err)
			}
		}
		e.remember(f)
		report.Outputs = append(report.Outputs, f.Path)
		e.logger.Debug("declarations written", "path", f.Path, "names", len(f.Names))
	}
	return nil
}

func (e *Engine) remember(f layout.File) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.written[f.Path] = f.Names
}

// describe copies the processed units and their diagnostics into report.
func (e *Engine) describe(units []*unit.Unit, report *Report) {
	for _, u := range units {
		report.Units = append(report.Units, u.Path)
		report.Diagnostics = append(report.Diagnostics, u.Diagnostics...)
	}
}

// record commits unit and asset snapshots to the ledger in one batch.
func (e *Engine) record(units []*unit.Unit, report *Report) error {
	if e.store == nil {
		return nil
	}
	now := time.Now().Truncate(time.Second)
	batch := store.NewBatch()
	for _, u := range units {
		snap := &store.UnitSnapshot{Unit: store.UnitRecord{
			Path:           u.Path,
			Hash:           u.Hash,
			ThirdParty:     u.ThirdParty,
			GlobalDocument: u.GlobalDocument,
			LastBuilt:      now,
		}}
		for _, m := range u.Modules {
			snap.Modules = append(snap.Modules, store.ModuleRecord{
				FullName: m.FullName(),
				Kind:     m.Kind.String(),
				Used:     m.Used,
			})
		}
		for _, d := range u.Diagnostics {
			snap.Diagnostics = append(snap.Diagnostics, store.DiagnosticRecord{
				Severity: int(d.Severity),
				Code:     d.Code,
				Message:  d.Message,
				Line:     d.Line,
				Col:      d.Column,
			})
		}
		if err := batch.RecordUnit(snap); err != nil {
			return err
		}
	}
	for _, p := range report.Assets {
		rec, ok := e.assets.Lookup(p)
		if !ok {
			continue
		}
		if err := batch.RecordAsset(assetRow(rec, now)); err != nil {
			return err
		}
	}
	for _, f := range report.Failures {
		if f.Stage != "asset" {
			continue
		}
		if rec, ok := e.assets.Lookup(f.Path); ok {
			if err := batch.RecordAsset(assetRow(rec, now)); err != nil {
				return err
			}
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := e.store.CommitBatch(batch); err != nil {
		return fmt.Errorf("esbridge: commit ledger: %w", err)
	}
	return nil
}

func assetRow(rec *assets.Record, now time.Time) *store.AssetRecord {
	row := &store.AssetRecord{
		Path:      rec.Path,
		Category:  string(rec.Category),
		Output:    rec.Output(),
		Builds:    rec.Builds(),
		LastBuilt: now,
	}
	if err := rec.Err(); err != nil {
		row.Error = err.Error()
	}
	return row
}
