package esbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jward/esbridge/internal/assets"
	"github.com/jward/esbridge/internal/runtime"
	"github.com/jward/esbridge/internal/unit"
)

// Host is what a plugin may do while it builds one unit.
type Host = runtime.Host

// Plugin is an output plugin, run once per ready unit. A plugin's runs
// never overlap each other; runs of distinct plugins do.
type Plugin interface {
	Name() string
	Run(ctx context.Context, u *unit.Unit, h Host) error
}

var _ Plugin = (*runtime.Script)(nil)

// AssetsPlugin registers every embedded asset a unit references.
func AssetsPlugin() Plugin {
	return assetsPlugin{}
}

type assetsPlugin struct{}

func (assetsPlugin) Name() string { return "assets" }

func (assetsPlugin) Run(_ context.Context, u *unit.Unit, h Host) error {
	for _, a := range u.Assets {
		if err := h.RegisterAsset(u, a); err != nil {
			return err
		}
	}
	return nil
}

// run is the Host of one build or rebuild. It collects the assets first
// registered during the run so only those get an initial secondary build.
type run struct {
	e *Engine

	mu      sync.Mutex
	created []*assets.Record
}

func (e *Engine) newRun() *run {
	return &run{e: e}
}

func (r *run) Emit(u *unit.Unit, content string) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	r.e.emitted[filepath.Clean(u.Path)] = content
}

func (r *run) RegisterAsset(u *unit.Unit, path string) error {
	if path == "" {
		return fmt.Errorf("empty asset path in %s", u.Path)
	}
	rec, created := r.e.assets.Register(path)
	if created {
		r.mu.Lock()
		r.created = append(r.created, rec)
		r.mu.Unlock()
	}
	return nil
}

func (r *run) OutputDir() string {
	return r.e.outDir
}

func (r *run) newAssets() []*assets.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*assets.Record, len(r.created))
	copy(out, r.created)
	return out
}
