package esbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/esbridge/internal/assets"
	"github.com/jward/esbridge/internal/unit"
	"github.com/jward/esbridge/internal/watch"
)

// Rebuild handles one change event for path. A registered asset gets
// only its secondary build. A unit whose source changed is cleared,
// awaited, run through the plugins alone, and its dependency closure
// resynthesized. Anything else is a no-op. Concurrent calls for the same
// path share one rebuild.
func (e *Engine) Rebuild(ctx context.Context, path string) (*Report, error) {
	path = filepath.Clean(path)
	v, err, shared := e.rebuilds.Do(path, func() (any, error) {
		return e.rebuild(ctx, path)
	})
	if shared {
		e.logger.Debug("rebuild shared", "path", path)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

func (e *Engine) rebuild(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	report := &Report{OutputDir: e.outDir, Watching: e.watching()}

	if rec, ok := e.assets.Lookup(path); ok {
		if e.assets.Policy().Eligible(rec.Path) {
			e.buildAssets(ctx, []*assets.Record{rec}, report)
			if err := e.record(nil, report); err != nil {
				return nil, err
			}
		}
		return report, nil
	}

	u, cleared := e.Invalidate(path)
	if !cleared {
		return report, nil
	}
	closure, err := e.readyClosure(ctx, []*unit.Unit{u})
	if err != nil {
		return nil, err
	}

	r := e.newRun()
	report.Failures = append(report.Failures, e.sequence(ctx, []*unit.Unit{u}, r)...)
	e.buildAssets(ctx, r.newAssets(), report)

	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	res := e.synthesize(closure)
	if !e.typings.ByFile {
		e.mu.Lock()
		if e.retained == nil {
			e.retained = res
		} else {
			e.retained.Merge(res)
			res = e.retained
		}
		e.mu.Unlock()
	}
	if err := e.emitTypings(res, closure, report); err != nil {
		return nil, err
	}

	e.describe(closure, report)
	if err := e.record(closure, report); err != nil {
		return nil, err
	}
	e.track(closure)
	e.logger.Info("rebuilt", "path", path, "units", len(closure), "elapsed", time.Since(start))
	return report, nil
}

// Watch builds entries and then serves change events until ctx is done.
// Rebuild failures are logged and never stop the watch.
func (e *Engine) Watch(ctx context.Context, entries []string) error {
	cfg := e.watchCfg
	cfg.OnChange = e.onChange
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	w, err := watch.New(cfg)
	if err != nil {
		return fmt.Errorf("esbridge: %w", err)
	}
	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.watcher = nil
		e.mu.Unlock()
	}()

	report, err := e.build(ctx, entries, true)
	if err != nil {
		return err
	}
	e.notify(report)

	var units []*unit.Unit
	for _, p := range report.Units {
		if u, ok := e.compiler.Lookup(p); ok {
			units = append(units, u)
		}
	}
	e.track(units)
	for _, rec := range e.assets.Records() {
		if _, err := w.Register(rec.Path); err != nil {
			e.logger.Warn("watch asset", "path", rec.Path, "err", err)
		}
	}
	return w.Run(ctx)
}

// track registers unit paths with the running watcher.
func (e *Engine) track(units []*unit.Unit) {
	e.mu.Lock()
	w := e.watcher
	e.mu.Unlock()
	if w == nil {
		return
	}
	for _, u := range units {
		if _, err := w.Register(u.Path); err != nil {
			e.logger.Warn("watch unit", "path", u.Path, "err", err)
		}
	}
}

func (e *Engine) watching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watcher != nil
}

func (e *Engine) notify(r *Report) {
	if e.onReport != nil {
		e.onReport(r)
	}
}

// onChange rebuilds every changed path concurrently.
func (e *Engine) onChange(ctx context.Context, changed []string) error {
	var g errgroup.Group
	for _, p := range changed {
		g.Go(func() error {
			report, err := e.Rebuild(ctx, p)
			if err != nil {
				e.logger.Error("rebuild failed", "path", p, "err", err)
				return nil
			}
			for _, f := range report.Failures {
				e.logger.Error("rebuild failure", "stage", f.Stage, "path", f.Path, "err", f.Err)
			}
			if len(report.Units) > 0 || len(report.Assets) > 0 {
				e.notify(report)
			}
			return nil
		})
	}
	return g.Wait()
}
