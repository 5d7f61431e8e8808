package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_StateTransitions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	path := filepath.Join(dir, "main.es")
	assert.Equal(t, Unwatched, w.State(path))

	ok, err := w.Register(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Watched, w.State(path))

	ok, err = w.Register(path)
	require.NoError(t, err)
	assert.True(t, ok, "re-registration is idempotent")
	assert.Equal(t, []string{path}, w.Paths())
}

func TestRegister_IgnoredPathsStayUnwatched(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := New(Config{Ignore: []string{"**/*.tmp"}})
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	for _, p := range []string{
		filepath.Join(dir, "node_modules", "lib", "index.es"),
		filepath.Join(dir, "scratch.tmp"),
	} {
		ok, err := w.Register(p)
		require.NoError(t, err)
		assert.False(t, ok, p)
		assert.Equal(t, Unwatched, w.State(p))
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Ignore: []string{"[unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestDefaultIgnores_ReturnsCopy(t *testing.T) {
	t.Parallel()
	got := DefaultIgnores()
	got[0] = "mutated"
	assert.NotEqual(t, "mutated", DefaultIgnores()[0])
}

func TestRun_ReportsRegisteredChangesOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tracked := filepath.Join(dir, "tracked.es")
	other := filepath.Join(dir, "other.es")
	require.NoError(t, os.WriteFile(tracked, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("a"), 0o644))

	var (
		mu      sync.Mutex
		batches [][]string
	)
	done := make(chan struct{}, 1)
	w, err := New(Config{
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			batches = append(batches, changed)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)
	_, err = w.Register(tracked)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("b"), 0o644))
	for range 3 {
		require.NoError(t, os.WriteFile(tracked, []byte("b"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}
	time.Sleep(150 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1, "writes inside the debounce window coalesce")
	assert.Equal(t, []string{tracked}, batches[0])
}

func TestRun_SecondCallFails(t *testing.T) {
	t.Parallel()
	w, err := New(Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	require.Error(t, w.Run(ctx))
	cancel()
	assert.NoError(t, <-errCh)
}
