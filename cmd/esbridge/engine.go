package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jward/esbridge"
	"github.com/jward/esbridge/internal/assets"
	"github.com/jward/esbridge/internal/config"
	"github.com/jward/esbridge/internal/runtime"
	"github.com/jward/esbridge/internal/watch"
)

// engineOptions translates cfg into engine options. The built-in assets
// plugin always runs first, followed by the configured plugin scripts.
func engineOptions(cfg *config.Config, logger *log.Logger) ([]esbridge.Option, error) {
	plugins := []esbridge.Plugin{esbridge.AssetsPlugin()}
	rt := runtime.NewRuntime(cfg.Workspace, runtime.WithRuntimeLogger(logger))
	for _, path := range cfg.Plugins {
		sc, err := rt.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading plugin %s: %w", path, err)
		}
		plugins = append(plugins, sc)
	}

	return []esbridge.Option{
		esbridge.WithLogger(logger),
		esbridge.WithPlugins(plugins...),
		esbridge.WithWorkspace(cfg.Workspace),
		esbridge.WithOutputDir(cfg.Output),
		esbridge.WithSuffix(cfg.Suffix),
		esbridge.WithGlobalTypes(cfg.Types...),
		esbridge.WithClear(cfg.Clear),
		esbridge.WithLedger(cfg.Ledger),
		esbridge.WithTypings(esbridge.Typings{
			Emit:    cfg.Typings.Emit,
			ByFile:  cfg.Typings.ByFile,
			Dirname: cfg.Typings.Dirname,
		}),
		esbridge.WithBundlePolicy(assets.Policy{
			Enable:     cfg.Bundle.Enable,
			Extensions: cfg.Bundle.Extensions,
			Format:     cfg.Bundle.Format,
			Platform:   cfg.Bundle.Platform,
			Minify:     cfg.Bundle.Minify,
			Sourcemap:  cfg.Bundle.Sourcemap,
		}),
		esbridge.WithWatchConfig(watch.Config{
			Debounce: cfg.Debounce,
			Logger:   logger,
		}),
	}, nil
}

func newEngine(cfg *config.Config, logger *log.Logger, extra ...esbridge.Option) (*esbridge.Engine, error) {
	opts, err := engineOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine, err := esbridge.New(append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}
	return engine, nil
}
