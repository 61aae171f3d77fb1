// Package fileutil holds small filesystem helpers for persisting
// downloaded cover images.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SanitizeFilename cleans a title for use as a filename by replacing
// problematic characters.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, ":", " -")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}

// FileExists checks if a regular file exists at the given path.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFileWithOverwrite writes data to a file, respecting the
// overwrite flag. Returns true if the file was written, false if it was
// skipped because it already exists.
func WriteFileWithOverwrite(path string, data []byte, perm os.FileMode, overwrite bool) (bool, error) {
	if FileExists(path) && !overwrite {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}

	if err := os.WriteFile(path, data, perm); err != nil {
		return false, err
	}
	return true, nil
}

// SaveCover writes cover image bytes into dir as "<title> - cover.jpg"
// and returns the path. Existing files are kept unless overwrite is set.
func SaveCover(dir, title string, data []byte, overwrite bool) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no cover image data")
	}

	path := filepath.Join(dir, SanitizeFilename(title)+" - cover.jpg")
	if _, err := WriteFileWithOverwrite(path, data, 0o644, overwrite); err != nil {
		return "", fmt.Errorf("writing cover image: %w", err)
	}
	return path, nil
}
