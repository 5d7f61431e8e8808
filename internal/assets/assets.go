// Package assets coordinates embedded non-source assets: registration,
// policy selection and secondary bundler builds.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jward/esbridge/internal/bundle"
)

// Category groups assets by how the bundler treats them.
type Category string

const (
	CategoryStyle Category = "style"
	CategoryImage Category = "image"
	CategoryOther Category = "other"
)

// CategoryOf classifies path by extension.
func CategoryOf(path string) Category {
	switch bundle.TypeFor(path, "") {
	case bundle.ContentStylesheet:
		return CategoryStyle
	case bundle.ContentFile:
		return CategoryImage
	}
	return CategoryOther
}

// Policy selects which assets go through a secondary build.
type Policy struct {
	Enable bool
	// Extensions lists eligible extensions without the dot.
	Extensions []string

	Format    string
	Platform  string
	Minify    bool
	Sourcemap bool
}

// DefaultExtensions are bundled when a policy names none.
var DefaultExtensions = []string{"css", "less", "sass", "scss"}

// Eligible reports whether path is bundled under p.
func (p Policy) Eligible(path string) bool {
	if !p.Enable {
		return false
	}
	exts := p.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return slices.Contains(exts, ext)
}

// Record is one registered asset.
type Record struct {
	Path     string
	Category Category

	// build serializes secondary builds of this asset.
	build sync.Mutex

	mu     sync.Mutex
	output string
	builds int
	err    error
}

// Output returns the resolved output path, empty until the first build.
func (r *Record) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

// Builds returns the number of secondary builds attempted.
func (r *Record) Builds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds
}

// Err returns the last build failure.
func (r *Record) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Tracker receives paths that should be watched.
type Tracker interface {
	Register(path string) (bool, error)
}

// Registry holds the assets of one engine, keyed by normalized path.
type Registry struct {
	bundler bundle.Bundler
	policy  Policy
	outDir  string
	workDir string
	tracker Tracker
	logger  *log.Logger
	limit   int

	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithTracker arms file watching for registered assets.
func WithTracker(t Tracker) Option {
	return func(r *Registry) { r.tracker = t }
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithWorkDir sets the bundler working directory.
func WithWorkDir(dir string) Option {
	return func(r *Registry) { r.workDir = dir }
}

// WithConcurrency bounds concurrent secondary builds; zero means no bound.
func WithConcurrency(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// NewRegistry returns an empty registry writing bundled assets under
// outDir/assets.
func NewRegistry(b bundle.Bundler, policy Policy, outDir string, opts ...Option) *Registry {
	r := &Registry{
		bundler: b,
		policy:  policy,
		outDir:  outDir,
		logger:  log.New(io.Discard),
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the active bundling policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Register records path and arms watch tracking for it. It returns the
// record and whether this call created it; registering a known path is
// idempotent.
func (r *Registry) Register(path string) (*Record, bool) {
	norm := normalize(path)
	r.mu.Lock()
	rec, ok := r.records[norm]
	if !ok {
		rec = &Record{Path: norm, Category: CategoryOf(norm)}
		r.records[norm] = rec
		r.order = append(r.order, norm)
	}
	r.mu.Unlock()

	if r.tracker != nil {
		if _, err := r.tracker.Register(norm); err != nil {
			r.logger.Warn("watch asset", "path", norm, "err", err)
		}
	}
	return rec, !ok
}

// Lookup returns the record registered for path.
func (r *Registry) Lookup(path string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[normalize(path)]
	return rec, ok
}

// Records returns every record in registration order.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.order))
	for i, p := range r.order {
		out[i] = r.records[p]
	}
	return out
}

// OutputDir is where bundled assets are written.
func (r *Registry) OutputDir() string {
	return filepath.Join(r.outDir, "assets")
}

// ErrNotEligible is returned when building an asset the policy excludes.
var ErrNotEligible = errors.New("assets: not eligible for bundling")

// Build runs the secondary build for rec. On success the previous output
// is removed and the record's output path updated. Builds of the same
// asset never overlap.
func (r *Registry) Build(ctx context.Context, rec *Record) error {
	if !r.policy.Eligible(rec.Path) {
		return ErrNotEligible
	}
	rec.build.Lock()
	defer rec.build.Unlock()

	rec.mu.Lock()
	rec.builds++
	rec.mu.Unlock()

	res, err := r.bundler.Build(ctx, bundle.Job{
		Entries:   []string{rec.Path},
		Outdir:    r.OutputDir(),
		WorkDir:   r.workDir,
		Format:    r.policy.Format,
		Platform:  r.policy.Platform,
		Minify:    r.policy.Minify,
		Sourcemap: r.policy.Sourcemap,
	})
	if err == nil {
		if _, ok := res.OutputFor(rec.Path); !ok {
			err = fmt.Errorf("no output for entry %s", rec.Path)
		}
	}
	if err != nil {
		err = fmt.Errorf("assets: build %s: %w", rec.Path, err)
		rec.mu.Lock()
		rec.err = err
		rec.mu.Unlock()
		return err
	}

	out, _ := res.OutputFor(rec.Path)
	rec.mu.Lock()
	prev := rec.output
	rec.output = out.Path
	rec.err = nil
	rec.mu.Unlock()

	if prev != "" && prev != out.Path {
		if err := os.Remove(prev); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("remove previous asset output", "path", prev, "err", err)
		}
	}
	r.logger.Debug("asset built", "path", rec.Path, "output", out.Path)
	return nil
}

// BuildAll builds every eligible asset concurrently. A failing asset is
// logged and does not affect the others; the failures are returned keyed
// by asset path.
func (r *Registry) BuildAll(ctx context.Context) map[string]error {
	return r.BuildEach(ctx, r.Records())
}

// BuildEach builds the eligible records among recs concurrently, with the
// same failure isolation as BuildAll.
func (r *Registry) BuildEach(ctx context.Context, recs []*Record) map[string]error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for _, rec := range recs {
		if !r.policy.Eligible(rec.Path) {
			continue
		}
		g.Go(func() error {
			if err := r.Build(ctx, rec); err != nil {
				r.logger.Error("asset build failed", "path", rec.Path, "err", err)
				mu.Lock()
				failures[rec.Path] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
