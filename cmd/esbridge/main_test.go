package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/esbridge"
	"github.com/jward/esbridge/internal/config"
)

const shapeSrc = `namespace app {
	export class Shape {
		getName(): string { return "shape"; }
	}
}
`

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = dir
	cfg.Output = filepath.Join(dir, "build")
	cfg.Ledger = filepath.Join(dir, "build", ".esbridge", "ledger.db")
	return cfg
}

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()
	assert.Equal(t, log.DebugLevel, newLogger(true).GetLevel())
	assert.Equal(t, log.WarnLevel, newLogger(false).GetLevel())
}

func TestEngineOptions_LoadsPluginScripts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	plugin := filepath.Join(dir, "plugins", "emit.risor")
	require.NoError(t, os.MkdirAll(filepath.Dir(plugin), 0o755))
	require.NoError(t, os.WriteFile(plugin, []byte(`emit("export default 1;")`), 0o644))

	cfg := testConfig(t, dir)
	cfg.Plugins = []string{plugin}
	opts, err := engineOptions(cfg, newLogger(false))
	require.NoError(t, err)

	e, err := esbridge.New(opts...)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, filepath.Join(dir, "build"), e.OutputDir())
	assert.NotNil(t, e.Store())
}

func TestEngineOptions_MissingPlugin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Plugins = []string{filepath.Join(dir, "missing.risor")}

	_, err := engineOptions(cfg, newLogger(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading plugin")
}

func TestCommands_BuildThenManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "App.es"), []byte(shapeSrc), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"build", "-w", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Build done.")
	assert.FileExists(t, filepath.Join(dir, "build", "index.d.es"))

	out.Reset()
	rootCmd.SetArgs([]string{"manifest", "-w", dir, "--scope", "@acme/app"})
	require.NoError(t, rootCmd.Execute())

	var m esbridge.Manifest
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	assert.Equal(t, "@acme/app", m.Scope)
	assert.Equal(t, []string{"index.d.es"}, m.Files)
	assert.Equal(t, []int{0}, m.Types["app.Shape"].Indexers)
}

func TestCommands_ManifestWithoutLedger(t *testing.T) {
	dir := t.TempDir()
	rootCmd.SetArgs([]string{"manifest", "-w", dir})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no build ledger")
}

func TestCommands_Version(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "esbridge dev\n", out.String())
}
