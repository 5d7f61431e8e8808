package esbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/esbridge/internal/unit"
)

// preparer is implemented by compilers that can parse a batch of units
// before any of them is resolved.
type preparer interface {
	Prepare(ctx context.Context, units []*unit.Unit) error
}

// Obtain returns the unit for path, creating it on first request.
func (e *Engine) Obtain(ctx context.Context, path string) (*unit.Unit, error) {
	u, err := e.compiler.Open(ctx, filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("esbridge: obtain %s: %w", path, err)
	}
	return u, nil
}

// Ready blocks until u has completed one full parse and resolve pass.
func (e *Engine) Ready(ctx context.Context, u *unit.Unit) error {
	if err := e.compiler.Ready(ctx, u); err != nil {
		return fmt.Errorf("esbridge: ready %s: %w", u.Path, err)
	}
	return nil
}

// Invalidate clears the unit at path when its source changed, so the next
// Ready re-parses it. It returns the unit and whether it was cleared.
func (e *Engine) Invalidate(path string) (*unit.Unit, bool) {
	u, ok := e.compiler.Lookup(path)
	if !ok {
		return nil, false
	}
	if !e.compiler.Invalid(u) {
		return u, false
	}
	e.compiler.Clear(u)
	e.logger.Debug("unit invalidated", "path", u.Path)
	return u, true
}

// obtainAll creates the units for paths concurrently. A path that fails
// is reported and skipped. Units come back in path order, each once.
func (e *Engine) obtainAll(ctx context.Context, paths []string) ([]*unit.Unit, []Failure) {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []Failure
		units    = make([]*unit.Unit, len(paths))
	)
	for i, p := range paths {
		g.Go(func() error {
			u, err := e.Obtain(ctx, p)
			if err != nil {
				e.logger.Error("not resolved compilation", "path", p, "err", err)
				mu.Lock()
				failures = append(failures, Failure{Stage: "open", Path: p, Err: err})
				mu.Unlock()
				return nil
			}
			units[i] = u
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[*unit.Unit]bool, len(units))
	out := units[:0]
	for _, u := range units {
		if u == nil || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, failures
}

// readyAll awaits readiness of every unit. Synthesis must not start
// before this returns, since references cross unit boundaries.
func (e *Engine) readyAll(ctx context.Context, units []*unit.Unit) error {
	if p, ok := e.compiler.(preparer); ok {
		if err := p.Prepare(ctx, units); err != nil {
			return fmt.Errorf("esbridge: prepare: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var (
		mu   sync.Mutex
		errs []error
	)
	for _, u := range units {
		g.Go(func() error {
			if err := e.Ready(gctx, u); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("readiness had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// readyClosure readies roots and then their local dependency closure
// until no new unit turns up, and returns that closure.
func (e *Engine) readyClosure(ctx context.Context, roots []*unit.Unit) ([]*unit.Unit, error) {
	if err := e.readyAll(ctx, roots); err != nil {
		return nil, err
	}
	closure := Closure(roots)
	for {
		if err := e.readyAll(ctx, closure); err != nil {
			return nil, err
		}
		next := Closure(roots)
		if len(next) == len(closure) {
			return next, nil
		}
		closure = next
	}
}
