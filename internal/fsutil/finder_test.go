package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.hcl"))
	writeFile(t, filepath.Join(root, "nested", "b.hcl"))
	writeFile(t, filepath.Join(root, "c.txt"))

	// --- Act ---
	files, err := FindFilesByExtension(root, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "nested", "b.hcl"),
	}, files)
}

func TestListFiles_SkipsHiddenAndDirectories(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.fq"))
	writeFile(t, filepath.Join(root, "a.fq"))
	writeFile(t, filepath.Join(root, ".hidden"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	// --- Act ---
	files, err := ListFiles(root)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.fq"), filepath.Join(root, "b.fq")}, files)
}

func TestListFiles_MissingDirectory(t *testing.T) {
	t.Parallel()

	files, err := ListFiles(filepath.Join(t.TempDir(), "nope"))

	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCollectInputFiles_DeduplicatesAcrossPaths(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	single := filepath.Join(root, "a.fq.gz")
	writeFile(t, single)
	writeFile(t, filepath.Join(root, "b.fq"))

	// --- Act ---
	files, err := CollectInputFiles([]string{single, root})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(root, "b.fq")}, files)
	assert.True(t, IsGzipped(files[0]))
	assert.False(t, IsGzipped(files[1]))
}
