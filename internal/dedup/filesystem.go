package dedup

import (
	"io"
	"io/fs"
)

// File is an open, readable file. Random access is required so the quick
// fingerprint can sample the tail without reading the whole stream.
type File interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// WalkEntry describes one entry produced by FilesystemManager.Walk.
type WalkEntry struct {
	Path  string // absolute path
	Name  string // base name
	IsDir bool
	Size  int64 // zero for directories
}

// WalkFunc is called for every entry below the walk root.
// If err is non-nil the entry could not be read (permission denied, vanished);
// returning nil continues the walk. Returning fs.SkipDir for a directory
// entry prevents the walk from descending into it. Any other non-nil return
// aborts the walk and is returned by Walk.
type WalkFunc func(entry WalkEntry, err error) error

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path with symlinked parents
	// replaced by their targets, stats it, and validates it's a regular
	// file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path string) (File, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// SameFile reports whether two results of Stat name the same file,
	// as with hard links or bind mounts.
	SameFile(a, b fs.FileInfo) bool

	// Walk enumerates regular files and directories under root in lexical
	// order. Symlinks and special files are not reported. The root itself
	// is not passed to fn.
	Walk(root string, fn WalkFunc) error

	// Remove deletes a file. Only candidates verified to lie inside a
	// protected scope can be removed.
	Remove(target Deletable) error
}
