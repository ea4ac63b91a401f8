package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dedupe-go/internal/dedup"
)

// FileSystemArchive stores objects as files below a root directory, for
// example a mounted backup disk:
//
//	<root>/
//	  <hostID>/audit.db          (snapshot)
//	  <hostID>/audit.db.version  (decimal version)
//	  <hostID>/reports/...
type FileSystemArchive struct {
	root string
}

// NewFileSystemArchive creates the root directory if needed.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive root: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

// Put writes the object atomically, then its version file.
func (a *FileSystemArchive) Put(name string, r io.Reader, size int64, version int64) error {
	if err := checkName(name); err != nil {
		return err
	}
	current, err := a.Version(name)
	if err != nil {
		return err
	}
	if version < current {
		return fmt.Errorf("%w: %s has version %d, refusing %d", ErrStaleVersion, name, current, version)
	}

	dest := a.path(name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	if err := writeAtomic(dest, r, size); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	v := strings.NewReader(strconv.FormatInt(version, 10))
	if err := writeAtomic(dest+".version", v, v.Size()); err != nil {
		return fmt.Errorf("writing version of %s: %w", name, err)
	}
	return nil
}

func (a *FileSystemArchive) Get(name string, w io.Writer) error {
	if err := checkName(name); err != nil {
		return err
	}
	f, err := os.Open(a.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

// Version returns 0 when no version file exists.
func (a *FileSystemArchive) Version(name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(a.path(name) + ".version")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version of %s: %w", name, err)
	}
	return v, nil
}

// ValidateSetup checks that the root is a writable directory.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}
	probe, err := os.CreateTemp(a.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("archive root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (a *FileSystemArchive) path(name string) string {
	return filepath.Join(a.root, filepath.FromSlash(name))
}

// writeAtomic copies r into a temp file next to dest and renames it into
// place once exactly size bytes were written and synced.
func writeAtomic(dest string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	done := false
	defer func() {
		if !done {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if written != size {
		tmp.Close()
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	done = true
	return nil
}

var _ dedup.Archive = (*FileSystemArchive)(nil)
