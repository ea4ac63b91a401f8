// Package archive implements off-host storage for audit log snapshots
// and reports.
package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned by Get for a name that was never stored.
	ErrNotFound = errors.New("archived object not found")

	// ErrStaleVersion is returned by Put when the stored version is newer.
	ErrStaleVersion = errors.New("archived version is newer")
)

// SnapshotName is the archive name of a host's audit log snapshot.
func SnapshotName(hostID string) string {
	return path.Join(hostID, "audit.db")
}

// ReportName is the archive name of a report file written on a host.
func ReportName(hostID, file string) string {
	return path.Join(hostID, "reports", file)
}

func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..",
		path.IsAbs(name),
		path.Clean(name) != name,
		strings.HasPrefix(name, "../"):
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}
