package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"dedupe-go/internal/dedup"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*dedup.Path, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if err := checkMode(absPath, info.Mode()); err != nil {
		return nil, err
	}

	// The last component is not a symlink, so this only rewrites parents.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("resolving symlinks: %w", err)
	}

	return dedup.NewPath(realPath, info.IsDir(), info), nil
}

// SameFile reports whether two stats describe the same underlying file.
func (m *OSFilesystemManager) SameFile(a, b fs.FileInfo) bool {
	return os.SameFile(a, b)
}

// checkMode rejects file types we never walk, hash or delete.
func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("symlinks not supported: %s", path)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("device files not supported: %s", path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("named pipes not supported: %s", path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("sockets not supported: %s", path)
	}
	return nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (dedup.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return f, nil
}

// Stat returns fresh file info for a path. Symlinks are not followed.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Walk enumerates regular files and directories under root.
func (m *OSFilesystemManager) Walk(root string, fn dedup.WalkFunc) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			entry := dedup.WalkEntry{Path: p, Name: filepath.Base(p)}
			if d != nil {
				entry.IsDir = d.IsDir()
			}
			return fn(entry, err)
		}
		if p == root {
			return nil
		}

		entry := dedup.WalkEntry{Path: p, Name: d.Name(), IsDir: d.IsDir()}
		if d.IsDir() {
			return fn(entry, nil)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fn(entry, fmt.Errorf("stat %s: %w", p, err))
		}
		entry.Size = info.Size()
		return fn(entry, nil)
	})
}

// Remove deletes a verified deletion candidate. Only regular files are removed.
func (m *OSFilesystemManager) Remove(target dedup.Deletable) error {
	if !target.IsValid() {
		return errors.New("refusing to remove unverified path")
	}
	info, err := os.Lstat(target.Path())
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("refusing to remove non-regular file: %s", target.Path())
	}
	return os.Remove(target.Path())
}

// Compile-time check that OSFilesystemManager implements dedup.FilesystemManager interface
var _ dedup.FilesystemManager = (*OSFilesystemManager)(nil)
