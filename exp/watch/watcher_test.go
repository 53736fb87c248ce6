package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/hotswap"
)

func writeArtifact(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, hotswap.DylibPrefix()+name+"."+hotswap.DylibExt())
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestWatcherPoll(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	w, err := New(dir, "render", "")
	require.NoError(t, err)

	// Nothing built yet.
	d, err := w.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d)
	_, ok := w.Last()
	assert.False(t, ok)

	writeArtifact(t, dir, "render", base)
	d, err = w.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d, "first artifact is the baseline")

	d, err = w.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d)

	writeArtifact(t, dir, "render", base.Add(time.Second))
	d, err = w.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.Reload, d)

	d, err = w.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d, "each rebuild reloads once")

	last, ok := w.Last()
	require.True(t, ok)
	assert.True(t, last.ModTime.Equal(base.Add(time.Second)))
}

func TestWatcherThrottled(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeArtifact(t, dir, "render", base)

	w, err := New(dir, "render", "")
	require.NoError(t, err)
	th := w.Every(time.Second)
	clock := base
	th.now = func() time.Time { return clock }

	d, err := th.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d)

	writeArtifact(t, dir, "render", base.Add(time.Minute))
	clock = clock.Add(500 * time.Millisecond)
	d, err = th.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.None, d, "inside the interval")

	clock = clock.Add(time.Second)
	d, err = th.Poll()
	require.NoError(t, err)
	assert.Equal(t, hotswap.Reload, d)
}

func TestWatcherErrors(t *testing.T) {
	_, err := New("", "render", "")
	require.Error(t, err)
	_, err = New(".", "", "")
	require.Error(t, err)

	w, err := New(filepath.Join(t.TempDir(), "missing"), "render", "")
	require.NoError(t, err)
	_, err = w.Poll()
	require.Error(t, err)
}
