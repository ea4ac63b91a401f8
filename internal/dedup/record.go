package dedup

import (
	"path/filepath"
	"strings"
)

// FileRecord is one regular file observed during a walk.
// Records are immutable for the lifetime of a scan; fingerprints are
// computed lazily by the Hasher and cached there, not on the record.
type FileRecord struct {
	Path string
	Size int64
}

// NewFileRecord creates a record for the file at absPath.
func NewFileRecord(absPath string, size int64) *FileRecord {
	return &FileRecord{Path: absPath, Size: size}
}

// Name returns the base name of the file.
func (r *FileRecord) Name() string {
	return filepath.Base(r.Path)
}

// Ext returns the lower-cased extension including the dot, or "" if none.
func (r *FileRecord) Ext() string {
	return strings.ToLower(filepath.Ext(r.Path))
}

// Tier identifies which fingerprint strategy produced a digest.
type Tier string

const (
	TierQuick Tier = "quick"
	TierFull  Tier = "full"
)

// Fingerprint is a content digest together with the strategy that produced it.
// Two fingerprints are equal only if both the tier and the sum match.
type Fingerprint struct {
	Tier Tier   `json:"tier" yaml:"tier"`
	Sum  string `json:"sum" yaml:"sum"`
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f.Sum == ""
}

// IsFull reports whether the fingerprint covers the complete byte stream.
func (f Fingerprint) IsFull() bool {
	return f.Tier == TierFull
}

// String renders the fingerprint as "<tier>:<sum>".
func (f Fingerprint) String() string {
	if f.IsZero() {
		return ""
	}
	return string(f.Tier) + ":" + f.Sum
}
