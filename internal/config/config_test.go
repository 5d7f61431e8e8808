package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	ws := t.TempDir()
	cfg, err := Load("", newFlags(t, "--workspace", ws))
	require.NoError(t, err)

	assert.Equal(t, ws, cfg.Workspace)
	assert.Equal(t, filepath.Join(ws, "build"), cfg.Output)
	assert.Equal(t, ".es", cfg.Suffix)
	assert.Empty(t, cfg.Entries)
	assert.True(t, cfg.Clear)
	assert.True(t, cfg.Typings.Emit)
	assert.False(t, cfg.Typings.ByFile)
	assert.True(t, cfg.Bundle.Enable)
	assert.Equal(t, []string{"css", "less", "sass", "scss"}, cfg.Bundle.Extensions)
	assert.Equal(t, "esm", cfg.Bundle.Format)
	assert.Equal(t, "browser", cfg.Bundle.Platform)
	assert.Equal(t, filepath.Join(ws, "build", ".esbridge", "ledger.db"), cfg.Ledger)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Empty(t, cfg.File)
}

func TestLoad_WorkspaceConfigFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "esbridge.yaml"), []byte(`
output: dist
suffix: ts
entries:
  - src/App.ts
plugins:
  - plugins/compile.risor
typings:
  by_file: true
bundle:
  extensions: [".CSS", "png"]
  minify: true
debounce: 250ms
`), 0o644))

	cfg, err := Load("", newFlags(t, "--workspace", ws))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(ws, "esbridge.yaml"), cfg.File)
	assert.Equal(t, filepath.Join(ws, "dist"), cfg.Output)
	assert.Equal(t, ".ts", cfg.Suffix)
	assert.Equal(t, []string{"src/App.ts"}, cfg.Entries)
	assert.Equal(t, []string{filepath.Join(ws, "plugins", "compile.risor")}, cfg.Plugins)
	assert.True(t, cfg.Typings.ByFile)
	assert.True(t, cfg.Typings.Emit, "unset keys keep their defaults")
	assert.Equal(t, []string{"css", "png"}, cfg.Bundle.Extensions)
	assert.True(t, cfg.Bundle.Minify)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "esbridge.yaml"), []byte("output: dist\nclear: true\n"), 0o644))

	cfg, err := Load("", newFlags(t, "--workspace", ws, "-o", "out", "--clear=false", "-e", "a.es", "-e", "b.es"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "out"), cfg.Output)
	assert.False(t, cfg.Clear)
	assert.Equal(t, []string{"a.es", "b.es"}, cfg.Entries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "esbridge.yaml"), []byte("typings:\n  by_file: false\n"), 0o644))
	t.Setenv("ESBRIDGE_TYPINGS_BY_FILE", "true")
	t.Setenv("ESBRIDGE_LEDGER", "state/ledger.db")

	cfg, err := Load("", newFlags(t, "--workspace", ws))
	require.NoError(t, err)
	assert.True(t, cfg.Typings.ByFile)
	assert.Equal(t, filepath.Join(ws, "state", "ledger.db"), cfg.Ledger)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workspace": "`+filepath.ToSlash(dir)+`", "types": ["lib/globals.d.es"]}`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, []string{filepath.Join(dir, "lib", "globals.d.es")}, cfg.Types)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_EmptySuffixRejected(t *testing.T) {
	ws := t.TempDir()
	_, err := Load("", newFlags(t, "--workspace", ws, "--suffix", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suffix")
}
