package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Dune - Messiah", SanitizeFilename("Dune: Messiah"))
	assert.Equal(t, "Fahrenheit 451-2", SanitizeFilename("Fahrenheit 451/2"))
	assert.Equal(t, "a-b", SanitizeFilename(`a\b`))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	assert.False(t, FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir), "directories do not count")
}

func TestWriteFileWithOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "f.txt")

	written, err := WriteFileWithOverwrite(path, []byte("one"), 0o644, false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteFileWithOverwrite(path, []byte("two"), 0o644, false)
	require.NoError(t, err)
	assert.False(t, written, "existing file kept without overwrite")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	written, err = WriteFileWithOverwrite(path, []byte("two"), 0o644, true)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestSaveCover(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveCover(dir, "Dune: Messiah", []byte{0xFF, 0xD8}, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Dune - Messiah - cover.jpg"), path)
	assert.True(t, FileExists(path))

	_, err = SaveCover(dir, "Empty", nil, false)
	require.Error(t, err)
}
