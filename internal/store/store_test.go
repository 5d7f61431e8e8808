package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("scripts_hash", "abc"))
	require.NoError(t, s.SetMetadata("scripts_hash", "def"))
	v, err = s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestRecordUnit_ReplacesChildren(t *testing.T) {
	s := newTestStore(t)

	snap := &UnitSnapshot{
		Unit: UnitRecord{Path: "/src/app/Shape.es", Hash: "h1"},
		Modules: []ModuleRecord{
			{FullName: "app.Shape", Kind: "class", Used: true},
			{FullName: "app.Named", Kind: "interface"},
		},
		Diagnostics: []DiagnosticRecord{{Severity: 0, Code: 1005, Message: "';' expected", Line: 3, Col: 7}},
	}
	require.NoError(t, s.RecordUnit(snap))
	require.NotZero(t, snap.Unit.ID)

	snap2 := &UnitSnapshot{
		Unit:    UnitRecord{Path: "/src/app/Shape.es", Hash: "h2"},
		Modules: []ModuleRecord{{FullName: "app.Shape", Kind: "class", Used: true}},
	}
	require.NoError(t, s.RecordUnit(snap2))
	assert.Equal(t, snap.Unit.ID, snap2.Unit.ID, "same path keeps its row")

	u, err := s.UnitByPath("/src/app/Shape.es")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "h2", u.Hash)
	assert.False(t, u.LastBuilt.IsZero())

	mods, err := s.ModulesByUnit(u.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "app.Shape", mods[0].FullName)
	assert.True(t, mods[0].Used)

	diags, err := s.DiagnosticsByUnit(u.ID)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestUnitByPath_Missing(t *testing.T) {
	s := newTestStore(t)
	u, err := s.UnitByPath("/nope.es")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSeverityCounts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordUnit(&UnitSnapshot{
		Unit: UnitRecord{Path: "/a.es"},
		Diagnostics: []DiagnosticRecord{
			{Severity: 0, Message: "e1"},
			{Severity: 0, Message: "e2"},
			{Severity: 1, Message: "w1"},
		},
	}))
	require.NoError(t, s.RecordUnit(&UnitSnapshot{
		Unit:        UnitRecord{Path: "/b.es"},
		Diagnostics: []DiagnosticRecord{{Severity: 3, Message: "h1"}},
	}))

	counts, err := s.SeverityCounts()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 2, 1: 1, 3: 1}, counts)
}

func TestRecordAsset_Upsert(t *testing.T) {
	s := newTestStore(t)
	a := &AssetRecord{Path: "/src/theme.css", Category: "style", Output: "/out/assets/theme-1.css", Builds: 1}
	require.NoError(t, s.RecordAsset(a))
	a.Output, a.Builds = "/out/assets/theme-2.css", 2
	require.NoError(t, s.RecordAsset(a))

	got, err := s.AssetByPath("/src/theme.css")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/out/assets/theme-2.css", got.Output)
	assert.Equal(t, 2, got.Builds)
	assert.Empty(t, got.Error)
}

func TestOutputs_UnchangedAndManifest(t *testing.T) {
	s := newTestStore(t)

	hash := ContentHash("package app {}", []string{"app.Shape", "app.Circle"})
	same, err := s.OutputUnchanged("/out/index.d.es", hash)
	require.NoError(t, err)
	assert.False(t, same, "never written")

	require.NoError(t, s.RecordOutput("/out/index.d.es", hash, []string{"app.Shape", "app.Circle"}))
	same, err = s.OutputUnchanged("/out/index.d.es", hash)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = s.OutputUnchanged("/out/index.d.es", "other")
	require.NoError(t, err)
	assert.False(t, same)

	require.NoError(t, s.RecordOutput("/out/lib.d.es", "h", []string{"lib.Util"}))
	rows, err := s.ManifestRows()
	require.NoError(t, err)
	assert.Equal(t, []ManifestRow{
		{FullName: "app.Circle", Path: "/out/index.d.es"},
		{FullName: "app.Shape", Path: "/out/index.d.es"},
		{FullName: "lib.Util", Path: "/out/lib.d.es"},
	}, rows)

	require.NoError(t, s.RecordOutput("/out/index.d.es", "h2", []string{"app.Shape"}))
	rows, err = s.ManifestRows()
	require.NoError(t, err)
	assert.Len(t, rows, 2, "rewriting an output replaces its declarations")

	require.NoError(t, s.ResetOutputs())
	o, err := s.Output("/out/index.d.es")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestContentHash_NameOrderIndependent(t *testing.T) {
	a := ContentHash("x", []string{"a", "b"})
	b := ContentHash("x", []string{"b", "a"})
	c := ContentHash("y", []string{"a", "b"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, SourceHash([]byte("x")), 64)
}
