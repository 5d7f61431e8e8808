package esbridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/jward/esbridge/internal/assets"
	"github.com/jward/esbridge/internal/bundle"
	"github.com/jward/esbridge/internal/frontend"
	"github.com/jward/esbridge/internal/runtime"
	"github.com/jward/esbridge/internal/store"
	"github.com/jward/esbridge/internal/synth"
	"github.com/jward/esbridge/internal/unit"
	"github.com/jward/esbridge/internal/watch"
)

var (
	// ErrNoPlugins is returned by New when no plugin is configured.
	ErrNoPlugins = errors.New("not found plugins")
	// ErrNoEntry is returned when no entry file resolves.
	ErrNoEntry = errors.New("not found entry files")
)

// Typings controls declaration output.
type Typings struct {
	Emit bool
	// ByFile writes one declaration file per source file.
	ByFile bool
	// Dirname is the by-file output subdirectory, relative to the output
	// directory unless absolute.
	Dirname string
}

// Engine orchestrates the build: unit access, plugin sequencing, asset
// bundling, declaration synthesis and incremental rebuilds.
type Engine struct {
	compiler    unit.Compiler
	bundler     bundle.Bundler
	plugins     []Plugin
	logger      *log.Logger
	workspace   string
	outDir      string
	suffix      string
	typings     Typings
	policy      assets.Policy
	globalTypes []string
	clear       bool
	ledgerPath  string
	watchCfg    watch.Config
	onReport    func(*Report)

	store        *store.Store
	scriptsHash  string
	staleOutputs bool
	assets       *assets.Registry

	// rebuilds deduplicates overlapping change events per path.
	rebuilds singleflight.Group
	// emitMu serializes synthesis and declaration writes.
	emitMu sync.Mutex

	mu        sync.Mutex
	watcher   *watch.Watcher
	emitted   map[string]string
	emitFiles map[*unit.Unit]string
	retained  *synth.Result
	written   map[string][]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompiler replaces the built-in tree-sitter source compiler.
func WithCompiler(c unit.Compiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithBundler replaces the esbuild bundler.
func WithBundler(b bundle.Bundler) Option {
	return func(e *Engine) { e.bundler = b }
}

// WithPlugins appends output plugins. They run in the order given.
func WithPlugins(plugins ...Plugin) Option {
	return func(e *Engine) { e.plugins = append(e.plugins, plugins...) }
}

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkspace sets the project root entries and the output directory
// are resolved against. Defaults to the working directory.
func WithWorkspace(dir string) Option {
	return func(e *Engine) { e.workspace = dir }
}

// WithOutputDir sets the output directory, default "build".
func WithOutputDir(dir string) Option {
	return func(e *Engine) { e.outDir = dir }
}

// WithSuffix sets the source file suffix, default ".es".
func WithSuffix(s string) Option {
	return func(e *Engine) { e.suffix = s }
}

// WithTypings configures declaration output.
func WithTypings(t Typings) Option {
	return func(e *Engine) { e.typings = t }
}

// WithBundlePolicy selects which assets get a secondary build.
func WithBundlePolicy(p assets.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithGlobalTypes loads paths as global documents.
func WithGlobalTypes(paths ...string) Option {
	return func(e *Engine) { e.globalTypes = append(e.globalTypes, paths...) }
}

// WithClear controls whether a non-watch Build empties the output
// directory first. Enabled by default.
func WithClear(clear bool) Option {
	return func(e *Engine) { e.clear = clear }
}

// WithLedger records builds in a SQLite ledger at path.
func WithLedger(path string) Option {
	return func(e *Engine) { e.ledgerPath = path }
}

// WithWatchConfig tunes the watcher Watch starts. OnChange is always
// replaced by the engine's rebuild handler.
func WithWatchConfig(cfg watch.Config) Option {
	return func(e *Engine) { e.watchCfg = cfg }
}

// WithReportHandler receives the report of the initial watch build and
// of every rebuild that did work. It may be called concurrently.
func WithReportHandler(fn func(*Report)) Option {
	return func(e *Engine) { e.onReport = fn }
}

// New creates an Engine. At least one plugin is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:    log.New(io.Discard),
		outDir:    "build",
		suffix:    ".es",
		typings:   Typings{Emit: true, Dirname: "types"},
		clear:     true,
		emitted:   make(map[string]string),
		emitFiles: make(map[*unit.Unit]string),
		written:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.plugins) == 0 {
		return nil, ErrNoPlugins
	}

	if e.workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("esbridge: working directory: %w", err)
		}
		e.workspace = wd
	}
	ws, err := filepath.Abs(e.workspace)
	if err != nil {
		return nil, fmt.Errorf("esbridge: workspace: %w", err)
	}
	e.workspace = ws
	if !filepath.IsAbs(e.outDir) {
		e.outDir = filepath.Join(e.workspace, e.outDir)
	}
	for i, p := range e.globalTypes {
		if !filepath.IsAbs(p) {
			e.globalTypes[i] = filepath.Join(e.workspace, p)
		}
	}

	if e.compiler == nil {
		e.compiler = frontend.New(
			frontend.WithSuffix(e.suffix),
			frontend.WithGlobalDocuments(e.globalTypes...),
			frontend.WithLogger(e.logger),
		)
	}
	if e.bundler == nil {
		e.bundler = bundle.NewESBuild()
	}
	e.assets = assets.NewRegistry(e.bundler, e.policy, e.outDir,
		assets.WithTracker(watchTracker{e}),
		assets.WithLogger(e.logger),
		assets.WithWorkDir(e.workspace),
	)

	if e.ledgerPath != "" {
		if err := e.openLedger(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// openLedger opens and migrates the ledger and notes whether the recorded
// declaration outputs were produced under a different plugin script set.
func (e *Engine) openLedger() error {
	if err := os.MkdirAll(filepath.Dir(e.ledgerPath), 0o755); err != nil {
		return fmt.Errorf("esbridge: ledger dir: %w", err)
	}
	s, err := store.NewStore(e.ledgerPath)
	if err != nil {
		return fmt.Errorf("esbridge: create ledger: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return fmt.Errorf("esbridge: migrate: %w", err)
	}

	var scripts []*runtime.Script
	for _, p := range e.plugins {
		if sc, ok := p.(*runtime.Script); ok {
			scripts = append(scripts, sc)
		}
	}
	e.scriptsHash = runtime.ScriptsHash(scripts)
	stored, err := s.GetMetadata("scripts_hash")
	if err != nil {
		s.Close()
		return fmt.Errorf("esbridge: read ledger metadata: %w", err)
	}
	e.staleOutputs = stored != e.scriptsHash
	e.store = s
	return nil
}

// refreshLedger discards recorded declaration outputs when the plugin
// scripts changed since they were written, so every file is rewritten.
func (e *Engine) refreshLedger() error {
	if e.store == nil || !e.staleOutputs {
		return nil
	}
	if err := e.store.ResetOutputs(); err != nil {
		return fmt.Errorf("esbridge: %w", err)
	}
	if err := e.store.SetMetadata("scripts_hash", e.scriptsHash); err != nil {
		return fmt.Errorf("esbridge: %w", err)
	}
	e.staleOutputs = false
	e.logger.Debug("ledger outputs reset", "scripts_hash", e.scriptsHash)
	return nil
}

// Close releases the ledger.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// OutputDir returns the absolute output directory.
func (e *Engine) OutputDir() string {
	return e.outDir
}

// Workspace returns the absolute workspace root.
func (e *Engine) Workspace() string {
	return e.workspace
}

// Compiler returns the source compiler the engine drives.
func (e *Engine) Compiler() unit.Compiler {
	return e.compiler
}

// Assets returns the engine's asset registry.
func (e *Engine) Assets() *assets.Registry {
	return e.assets
}

// Store returns the build ledger, or nil when none is configured.
func (e *Engine) Store() *store.Store {
	return e.store
}

// source returns the plugin-emitted text for a source path.
func (e *Engine) source(path string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.emitted[filepath.Clean(path)]
	return s, ok
}

// watchTracker arms the running watcher, if any, for registered assets.
type watchTracker struct{ e *Engine }

func (t watchTracker) Register(path string) (bool, error) {
	t.e.mu.Lock()
	w := t.e.watcher
	t.e.mu.Unlock()
	if w == nil {
		return false, nil
	}
	return w.Register(path)
}
