package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// WriteFileAtomic writes content to a temp file next to path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	cleanup = false

	// #nosec G304 -- parent directory path is derived from explicit caller-provided destination path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// DirIsEmpty reports whether path is a directory without entries.
// A missing directory counts as empty.
func DirIsEmpty(path string) (bool, error) {
	// #nosec G304 -- directory path is explicit caller input.
	handle, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("open directory: %w", err)
	}
	defer func() {
		_ = handle.Close()
	}()
	if _, err := handle.Readdirnames(1); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("read directory: %w", err)
	}
	return false, nil
}

// JoinWithin joins a slash-separated entry name onto root and rejects names
// that would resolve outside of root.
func JoinWithin(root, name string) (string, error) {
	cleanName := filepath.Clean(filepath.FromSlash(name))
	if cleanName == "." || !filepath.IsLocal(cleanName) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return filepath.Join(root, cleanName), nil
}

// IsHiddenName reports whether a file name is a hidden or system entry
// (leading "." or "__", as produced by archivers such as __MACOSX).
func IsHiddenName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__")
}

// HasHiddenComponent reports whether any element of a slash or OS separated
// path is hidden.
func HasHiddenComponent(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, part := range strings.Split(normalized, "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if IsHiddenName(part) {
			return true
		}
	}
	return false
}
