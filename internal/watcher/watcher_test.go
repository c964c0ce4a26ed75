package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForFile(ch <-chan string, timeout time.Duration) (string, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		return "", false
	}
}

func TestWatcherReportsNewJournal(t *testing.T) {
	dir := t.TempDir()
	w, err := New(50 * time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	got := make(chan string, 10)
	require.NoError(t, w.Watch(dir, func(path string) { got <- path }))
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "may.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	reported, ok := waitForFile(got, 2*time.Second)
	require.True(t, ok, "expected journal to be reported")
	assert.Equal(t, path, reported)

	_, again := waitForFile(got, 200*time.Millisecond)
	assert.False(t, again, "one write burst is reported once")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	got := make(chan string, 10)
	require.NoError(t, w.Watch(dir, func(path string) { got <- path }))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.csv"), []byte("x"), 0o644))

	_, ok := waitForFile(got, 300*time.Millisecond)
	assert.False(t, ok)
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettle, w.settle)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestIsJournal(t *testing.T) {
	tests := map[string]bool{
		"/tmp/may.csv":        true,
		"/tmp/Statement.HTML": true,
		"/tmp/export.xlsx":    true,
		"/tmp/~$export.xlsx":  false,
		"/tmp/may.csv~":       false,
		"/tmp/.may.csv":       false,
		"/tmp/photo.png":      false,
	}
	for path, want := range tests {
		assert.Equal(t, want, IsJournal(path), path)
	}
}
