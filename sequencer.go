package esbridge

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/esbridge/internal/unit"
)

// Failure is an isolated failure: one plugin on one unit, one asset
// build, or one unit that could not be opened.
type Failure struct {
	Stage  string
	Plugin string
	Path   string
	Err    error
}

func (f Failure) Error() string {
	if f.Plugin != "" {
		return fmt.Sprintf("%s %s: plugin %s: %v", f.Stage, f.Path, f.Plugin, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Path, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// sequence runs every plugin over units. Each plugin drains its own
// queue in unit order; the queues of distinct plugins run concurrently.
// A failing run is logged and reported, and the queue moves on.
func (e *Engine) sequence(ctx context.Context, units []*unit.Unit, h Host) []Failure {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []Failure
	)
	for _, p := range e.plugins {
		queue := make(chan *unit.Unit, len(units))
		for _, u := range units {
			queue <- u
		}
		close(queue)

		g.Go(func() error {
			for u := range queue {
				if ctx.Err() != nil {
					return nil
				}
				if err := p.Run(ctx, u, h); err != nil {
					e.logger.Warn("plugin failed", "plugin", p.Name(), "unit", u.Path, "err", err)
					mu.Lock()
					failures = append(failures, Failure{Stage: "plugin", Plugin: p.Name(), Path: u.Path, Err: err})
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
