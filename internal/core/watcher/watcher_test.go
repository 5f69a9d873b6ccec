package watcher

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policyPatterns = []string{"*_context.json", "*_mode.json"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func startWatcher(t *testing.T, dirs ...string) <-chan []string {
	t.Helper()
	changed := make(chan []string, 10)
	w, err := New(30*time.Millisecond, policyPatterns, quietLogger(), func(paths []string) {
		changed <- paths
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	_, err = w.Watch(dirs)
	require.NoError(t, err)
	return changed
}

func expectChange(t *testing.T, changed <-chan []string, path string) {
	t.Helper()
	select {
	case paths := <-changed:
		assert.Contains(t, paths, path)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change to %s", path)
	}
}

func expectQuiet(t *testing.T, changed <-chan []string) {
	t.Helper()
	select {
	case paths := <-changed:
		t.Errorf("unexpected change event: %v", paths)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNew_RejectsNilCallback(t *testing.T) {
	w, err := New(time.Millisecond, nil, nil, nil)
	assert.ErrorIs(t, err, os.ErrInvalid)
	assert.Nil(t, w)
}

func TestNew_RejectsBadPattern(t *testing.T) {
	_, err := New(time.Millisecond, []string{"[unclosed"}, nil, func([]string) {})
	assert.Error(t, err)
}

func TestWatcher_ReportsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	changed := startWatcher(t, dir)

	mode := filepath.Join(dir, "review_mode.json")
	require.NoError(t, os.WriteFile(mode, []byte(`{"name":"review"}`), 0o644))
	expectChange(t, changed, mode)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	expectQuiet(t, changed)

	require.NoError(t, os.Remove(mode))
	expectChange(t, changed, mode)
}

func TestWatcher_IgnoresIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	ctxFile := filepath.Join(dir, "team_context.json")
	content := []byte(`{"name":"team","tools":["find_symbol"]}`)
	require.NoError(t, os.WriteFile(ctxFile, content, 0o644))

	changed := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(ctxFile, content, 0o644))
	expectQuiet(t, changed)

	require.NoError(t, os.WriteFile(ctxFile, []byte(`{"name":"team","tools":[]}`), 0o644))
	expectChange(t, changed, ctxFile)
}

func TestWatcher_SkipsMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New(10*time.Millisecond, nil, quietLogger(), func([]string) {})
	require.NoError(t, err)
	defer w.Close()

	watched, err := w.Watch([]string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, watched)
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(10*time.Millisecond, nil, quietLogger(), func([]string) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
