package globutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGlobDoubleStarMatchesNestedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "x.py"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "y.txt"), []byte("y"), 0o644))

	matches, err := GlobDoubleStar(filepath.Join(dir, "**/*.py"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, filepath.Join(dir, "a", "b", "x.py"), matches[0])
}

func TestGlobDoubleStarSkipsHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "hidden.py"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.py"), []byte("y"), 0o644))

	matches, err := GlobDoubleStar(filepath.Join(dir, "**/*.py"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, filepath.Join(dir, "visible.py"), matches[0])
}

func TestGlobDoubleStarNoRestMatchesEverything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("y"), 0o644))

	matches, err := GlobDoubleStar(filepath.Join(dir, "**"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestDefaultStatReturnsSizeAndMtimeForRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	mtime, size, ok := DefaultStat(path)
	require.True(t, ok)
	require.Equal(t, int64(5), size)
	require.NotZero(t, mtime)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info.ModTime().UnixNano(), mtime)
}

func TestDefaultStatFalseForMissingFile(t *testing.T) {
	_, _, ok := DefaultStat(filepath.Join(t.TempDir(), "missing.txt"))
	require.False(t, ok)
}

func TestDefaultStatFalseForDirectory(t *testing.T) {
	_, _, ok := DefaultStat(t.TempDir())
	require.False(t, ok)
}

func TestDefaultStatReflectsMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	before, _, _ := DefaultStat(path)
	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, newer, newer))
	after, _, _ := DefaultStat(path)
	require.NotEqual(t, before, after)
}
