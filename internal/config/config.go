// Package config loads esbridge settings using Viper. Values are layered:
// defaults, then an optional esbridge.{yaml,json,toml} file, then
// ESBRIDGE_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name and config file base name.
	AppName = "esbridge"
	// EnvPrefix prefixes environment overrides, e.g. ESBRIDGE_TYPINGS_BY_FILE.
	EnvPrefix = "ESBRIDGE"
)

type (
	// Config is the resolved build configuration. Paths are absolute once
	// Load returns.
	Config struct {
		Workspace string        `mapstructure:"workspace"`
		Output    string        `mapstructure:"output"`
		Suffix    string        `mapstructure:"suffix"`
		Entries   []string      `mapstructure:"entries"`
		Plugins   []string      `mapstructure:"plugins"`
		Types     []string      `mapstructure:"types"`
		Watch     bool          `mapstructure:"watch"`
		Clear     bool          `mapstructure:"clear"`
		Typings   Typings       `mapstructure:"typings"`
		Bundle    Bundle        `mapstructure:"bundle"`
		Ledger    string        `mapstructure:"ledger"`
		Debounce  time.Duration `mapstructure:"debounce"`

		// File is the config file that was read, if any.
		File string `mapstructure:"-"`
	}

	// Typings controls declaration output.
	Typings struct {
		Emit bool `mapstructure:"emit"`
		// ByFile writes one declaration file per source file instead of a
		// single monolithic file.
		ByFile  bool   `mapstructure:"by_file"`
		Dirname string `mapstructure:"dirname"`
	}

	// Bundle controls secondary asset builds and the primary bundle mode.
	Bundle struct {
		Enable     bool     `mapstructure:"enable"`
		Extensions []string `mapstructure:"extensions"`
		Format     string   `mapstructure:"format"`
		Platform   string   `mapstructure:"platform"`
		Minify     bool     `mapstructure:"minify"`
		Sourcemap  bool     `mapstructure:"sourcemap"`
	}
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		Output:    "build",
		Suffix:    ".es",
		Clear:     true,
		Typings:   Typings{Emit: true, Dirname: "types"},
		Bundle: Bundle{
			Enable:     true,
			Extensions: []string{"css", "less", "sass", "scss"},
			Format:     "esm",
			Platform:   "browser",
		},
		Debounce: 500 * time.Millisecond,
	}
}

// flagKeys maps config keys to the flag names RegisterFlags declares.
var flagKeys = map[string]string{
	"workspace":       "workspace",
	"output":          "output",
	"suffix":          "suffix",
	"entries":         "entry",
	"plugins":         "plugin",
	"types":           "types",
	"watch":           "watch",
	"clear":           "clear",
	"typings.emit":    "typings",
	"typings.by_file": "by-file",
	"bundle.enable":   "bundle",
	"bundle.minify":   "minify",
	"ledger":          "ledger",
}

// RegisterFlags declares the flags Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.StringP("workspace", "w", d.Workspace, "workspace root")
	fs.StringP("output", "o", d.Output, "output directory, relative to the workspace")
	fs.String("suffix", d.Suffix, "source file suffix")
	fs.StringSliceP("entry", "e", nil, "entry file or directory (repeatable)")
	fs.StringSliceP("plugin", "p", nil, "plugin script (repeatable)")
	fs.StringSlice("types", nil, "global declaration documents")
	fs.Bool("watch", d.Watch, "keep running and rebuild on change")
	fs.Bool("clear", d.Clear, "empty the output directory before building")
	fs.Bool("typings", d.Typings.Emit, "emit declaration files")
	fs.Bool("by-file", d.Typings.ByFile, "emit one declaration file per source file")
	fs.Bool("bundle", d.Bundle.Enable, "build embedded stylesheets")
	fs.Bool("minify", d.Bundle.Minify, "minify bundled output")
	fs.String("ledger", "", "build ledger path (default <output>/.esbridge/ledger.db)")
}

// Load resolves the configuration. When path is empty an esbridge config
// file in the workspace is used if present. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("output", d.Output)
	v.SetDefault("suffix", d.Suffix)
	v.SetDefault("entries", d.Entries)
	v.SetDefault("plugins", d.Plugins)
	v.SetDefault("types", d.Types)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("clear", d.Clear)
	v.SetDefault("typings.emit", d.Typings.Emit)
	v.SetDefault("typings.by_file", d.Typings.ByFile)
	v.SetDefault("typings.dirname", d.Typings.Dirname)
	v.SetDefault("bundle.enable", d.Bundle.Enable)
	v.SetDefault("bundle.extensions", d.Bundle.Extensions)
	v.SetDefault("bundle.format", d.Bundle.Format)
	v.SetDefault("bundle.platform", d.Bundle.Platform)
	v.SetDefault("bundle.minify", d.Bundle.Minify)
	v.SetDefault("bundle.sourcemap", d.Bundle.Sourcemap)
	v.SetDefault("ledger", "")
	v.SetDefault("debounce", d.Debounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(v.GetString("workspace"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve makes every path absolute and fills derived defaults.
func (c *Config) resolve() error {
	ws, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("config: workspace: %w", err)
	}
	c.Workspace = ws
	if c.Suffix == "" {
		return errors.New("config: suffix must not be empty")
	}
	if !strings.HasPrefix(c.Suffix, ".") {
		c.Suffix = "." + c.Suffix
	}
	c.Output = c.abs(c.Output)
	if c.Ledger == "" {
		c.Ledger = filepath.Join(c.Output, "."+AppName, "ledger.db")
	} else {
		c.Ledger = c.abs(c.Ledger)
	}
	for i, p := range c.Plugins {
		c.Plugins[i] = c.abs(p)
	}
	for i, p := range c.Types {
		c.Types[i] = c.abs(p)
	}
	for i, ext := range c.Bundle.Extensions {
		c.Bundle.Extensions[i] = strings.TrimPrefix(strings.ToLower(ext), ".")
	}
	return nil
}

func (c *Config) abs(p string) string {
	switch {
	case p == "":
		return c.Workspace
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	}
	return filepath.Join(c.Workspace, p)
}
