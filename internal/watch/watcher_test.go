package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracksConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, []string{tmpDir}, w.WatchedPaths())
	assert.Zero(t, w.PendingEdits())
}

func TestStartStop(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
}

func TestPendingEditsTracksWriteThenSettles(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, 150*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	testFile := filepath.Join(tmpDir, "scratch.go")
	require.NoError(t, os.WriteFile(testFile, []byte("package scratch\n"), 0600))

	require.Eventually(t, func() bool {
		return w.PendingEdits() == 1
	}, 2*time.Second, 10*time.Millisecond, "write should register as a pending edit")

	require.Eventually(t, func() bool {
		return w.PendingEdits() == 0
	}, 2*time.Second, 10*time.Millisecond, "edit should settle after the debounce interval")
}

func TestEventsFireOnSettle(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	testFile := filepath.Join(tmpDir, "scratch.go")
	require.NoError(t, os.WriteFile(testFile, []byte("package scratch\n"), 0600))

	select {
	case ev := <-w.Events():
		assert.Equal(t, testFile, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a settle event")
	}
}
