// Package watch tracks registered source and asset paths and reports
// debounced change events for them.
//
// Paths move from Unwatched to Watched on their first registration. The
// underlying fsnotify watcher observes parent directories, so editors that
// replace a file through rename still produce an event for the path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// defaultIgnores are never watched, whatever gets registered.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// State is the watch state of one path.
type State int

const (
	Unwatched State = iota
	Watched
)

func (s State) String() string {
	if s == Watched {
		return "watched"
	}
	return "unwatched"
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Ignore adds doublestar patterns to the built-in ignores.
		Ignore []string

		// Debounce is the quiet period after the last event before
		// OnChange fires. Zero or negative values use 100ms.
		Debounce time.Duration

		// OnChange receives the deduplicated, sorted set of changed
		// registered paths. Invocations may overlap when a callback runs
		// longer than the debounce window.
		OnChange func(ctx context.Context, changed []string) error

		Logger *log.Logger
	}

	// Watcher is the file-watch service.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		debounce time.Duration
		logger   *log.Logger
		started  atomic.Bool

		mu    sync.Mutex
		paths map[string]State
		dirs  map[string]bool
	}
)

// New creates a Watcher with no registered paths.
func New(cfg Config) (*Watcher, error) {
	if err := validatePatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ignores := make([]string, 0, len(defaultIgnores)+len(cfg.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, cfg.Ignore...)

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  ignores,
		debounce: debounce,
		logger:   logger,
		paths:    make(map[string]State),
		dirs:     make(map[string]bool),
	}, nil
}

// Register starts tracking path. Registering a watched path again is a
// no-op. Ignored paths stay Unwatched and report false.
func (w *Watcher) Register(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	if w.isIgnored(abs) {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paths[abs] == Watched {
		return true, nil
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return false, fmt.Errorf("watch: add directory %q: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.paths[abs] = Watched
	return true, nil
}

// State returns the watch state of path.
func (w *Watcher) State(path string) State {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Unwatched
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[abs]
}

// Paths returns every watched path, sorted.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.paths))
}

// Run blocks until ctx is cancelled, coalescing filesystem events for
// registered paths and dispatching them to OnChange. It returns nil on
// cancellation and must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu       sync.Mutex
		pending  = make(map[string]struct{})
		timer    *time.Timer
		inflight sync.WaitGroup
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange == nil {
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("change callback failed", "paths", changed, "err", err)
			}
		}()
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		inflight.Wait()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(evt.Name)
			if w.State(path) != Watched {
				continue
			}

			mu.Lock()
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) isIgnored(path string) bool {
	normalized := strings.TrimPrefix(filepath.ToSlash(path), "/")
	if vol := filepath.VolumeName(path); vol != "" {
		normalized = strings.TrimPrefix(strings.TrimPrefix(normalized, vol), "/")
	}
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}
	return nil
}
