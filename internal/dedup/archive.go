package dedup

import "io"

// Archive stores snapshots of the audit log and reports off-host.
// Content is addressed by name and carries a version that only grows, so
// that a stale local audit log can be detected before it is used.
type Archive interface {
	// Put stores size bytes read from r under name at the given version.
	Put(name string, r io.Reader, size int64, version int64) error

	// Get writes the content stored under name to w.
	Get(name string, w io.Writer) error

	// Version returns the stored version for name, or 0 if absent.
	Version(name string) (int64, error)

	// ValidateSetup checks that the archive is reachable and writable.
	ValidateSetup() error
}
