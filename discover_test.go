package hotswap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, fileName string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(path, []byte(fileName), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func dylib(name string) string {
	return DylibPrefix() + name + "." + DylibExt()
}

func TestFindLatestPicksNewestMatching(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	path := writeArtifact(t, dir, dylib("render"), base.Add(1*time.Second))
	// Rebuild overwrites the same artifact.
	writeArtifact(t, dir, dylib("render"), base.Add(3*time.Second))
	writeArtifact(t, dir, dylib("other"), base.Add(5*time.Second))

	artifact, ok, err := FindLatest(dir, "render", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, artifact.Path)
	assert.True(t, artifact.ModTime.Equal(base.Add(3*time.Second)))
}

func TestFindLatestAcrossHashedNames(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	writeArtifact(t, dir, DylibPrefix()+"render-1a2b."+DylibExt(), base.Add(1*time.Second))
	newest := writeArtifact(t, dir, DylibPrefix()+"render-3c4d."+DylibExt(), base.Add(4*time.Second))
	writeArtifact(t, dir, DylibPrefix()+"render-5e6f."+DylibExt(), base.Add(2*time.Second))
	writeArtifact(t, dir, DylibPrefix()+"render-7a8b.d", base.Add(9*time.Second))
	require.NoError(t, os.Mkdir(filepath.Join(dir, DylibPrefix()+"render-dir."+DylibExt()), 0o755))

	artifact, ok, err := FindLatest(dir, "render", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newest, artifact.Path)
}

func TestFindLatestExtensionOverride(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	writeArtifact(t, dir, dylib("render"), base.Add(5*time.Second))
	plug := writeArtifact(t, dir, DylibPrefix()+"render.plug", base.Add(1*time.Second))

	for _, ext := range []string{"plug", ".plug"} {
		artifact, ok, err := FindLatest(dir, "render", ext)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, plug, artifact.Path)
	}
}

func TestFindLatestTieLastObservedWins(t *testing.T) {
	dir := t.TempDir()
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	writeArtifact(t, dir, DylibPrefix()+"render-a."+DylibExt(), same)
	last := writeArtifact(t, dir, DylibPrefix()+"render-b."+DylibExt(), same)

	// os.ReadDir returns entries sorted by name, so render-b is observed last.
	artifact, ok, err := FindLatest(dir, "render", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, last, artifact.Path)
}

func TestFindLatestNoMatch(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, dylib("other"), time.Now())
	writeArtifact(t, dir, "render.txt", time.Now())

	_, ok, err := FindLatest(dir, "render", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindLatestInvalidInput(t *testing.T) {
	_, _, err := FindLatest("", "render", "")
	require.Error(t, err)

	_, _, err = FindLatest(t.TempDir(), "", "")
	require.Error(t, err)

	_, _, err = FindLatest(filepath.Join(t.TempDir(), "missing"), "render", "")
	require.Error(t, err)
}
