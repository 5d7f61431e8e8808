package esbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jward/esbridge/internal/bundle"
)

// Bundle runs the primary bundler over the entries, feeding it the module
// text the plugins emitted, and then synthesizes declarations whose class
// modules import their default export from the bundled file.
func (e *Engine) Bundle(ctx context.Context, entries []string) (*Report, error) {
	start := time.Now()
	paths, err := e.ResolveEntries(entries)
	if err != nil {
		return nil, err
	}
	if e.clear {
		if err := e.clearOutput(); err != nil {
			return nil, err
		}
	}

	if err := e.refreshLedger(); err != nil {
		return nil, err
	}

	report := &Report{OutputDir: e.outDir}
	roots, failures := e.obtainAll(ctx, paths)
	report.Failures = append(report.Failures, failures...)
	if len(roots) == 0 {
		return nil, ErrNoEntry
	}
	closure, err := e.readyClosure(ctx, roots)
	if err != nil {
		return nil, err
	}

	r := e.newRun()
	report.Failures = append(report.Failures, e.sequence(ctx, closure, r)...)
	e.buildAssets(ctx, r.newAssets(), report)

	policy := e.assets.Policy()
	entryPaths := make([]string, len(roots))
	for i, u := range roots {
		entryPaths[i] = u.Path
	}
	res, err := e.bundler.Build(ctx, bundle.Job{
		Entries:   entryPaths,
		Outdir:    e.outDir,
		WorkDir:   e.workspace,
		Format:    policy.Format,
		Platform:  policy.Platform,
		Minify:    policy.Minify,
		Sourcemap: policy.Sourcemap,
		Intercept: bundle.Intercept{
			SourceSuffix: e.suffix,
			Sources:      e.source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("esbridge: bundle: %w", err)
	}
	for _, w := range res.Warnings {
		e.logger.Warn("bundler", "msg", w)
	}

	e.mu.Lock()
	for _, u := range closure {
		out, ok := res.OutputFor(u.Path)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(e.outDir, out.Path)
		if err != nil {
			continue
		}
		e.emitFiles[u] = "./" + filepath.ToSlash(rel)
	}
	e.mu.Unlock()

	if err := e.emitAll(closure, report); err != nil {
		return nil, err
	}
	e.describe(closure, report)
	if err := e.record(closure, report); err != nil {
		return nil, err
	}
	e.logger.Info("bundle finished", "entries", len(roots), "outputs", len(res.Outputs), "elapsed", time.Since(start))
	return report, nil
}
