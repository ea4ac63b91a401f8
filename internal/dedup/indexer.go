package dedup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultProgressEvery is how many files are enumerated between progress logs.
const DefaultProgressEvery = 10000

// IndexOptions controls which files a walk reports.
type IndexOptions struct {
	// Files smaller than MinSize are counted but not indexed.
	MinSize int64
	// Entries whose name starts with HiddenPrefix are pruned. Empty disables.
	HiddenPrefix string
	// Exclude lists paths that are pruned. Relative entries are resolved
	// against Base.
	Exclude []string
	// Ignore is an optional name matcher; matching entries are pruned.
	// relPath is relative to Base.
	Ignore func(relPath string, isDir bool) bool
	// Base anchors Exclude and Ignore. Empty uses the root of each walk,
	// so a Match would apply them to the scope and the volume separately.
	Base string
	// ProgressEvery overrides DefaultProgressEvery when positive.
	ProgressEvery int
}

// SkippedEntry is a path that could not be walked, read or hashed.
type SkippedEntry struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// IndexStats counts what a walk saw.
type IndexStats struct {
	FilesSeen    int   `json:"files_seen" yaml:"files_seen"`
	FilesIndexed int   `json:"files_indexed" yaml:"files_indexed"`
	BytesSeen    int64 `json:"bytes_seen" yaml:"bytes_seen"`
	BytesIndexed int64 `json:"bytes_indexed" yaml:"bytes_indexed"`
	BelowMinSize int   `json:"below_min_size" yaml:"below_min_size"`
}

// SizeBucket is the group of records sharing one exact size.
type SizeBucket struct {
	Size    int64
	Records []*FileRecord
}

// SizeIndex maps exact byte sizes to the records of that size, in
// discovery order.
type SizeIndex struct {
	buckets map[int64][]*FileRecord
	stats   IndexStats
	skipped []SkippedEntry
}

// NewSizeIndex creates an empty index.
func NewSizeIndex() *SizeIndex {
	return &SizeIndex{buckets: make(map[int64][]*FileRecord)}
}

// Add appends rec to the bucket for its size.
func (x *SizeIndex) Add(rec *FileRecord) {
	x.buckets[rec.Size] = append(x.buckets[rec.Size], rec)
}

// Bucket returns the records of the given size.
func (x *SizeIndex) Bucket(size int64) []*FileRecord {
	return x.buckets[size]
}

// Len returns the number of indexed records.
func (x *SizeIndex) Len() int {
	n := 0
	for _, recs := range x.buckets {
		n += len(recs)
	}
	return n
}

// Candidates returns buckets holding at least two records, largest size first.
func (x *SizeIndex) Candidates() []SizeBucket {
	var out []SizeBucket
	for size, recs := range x.buckets {
		if len(recs) >= 2 {
			out = append(out, SizeBucket{Size: size, Records: recs})
		}
	}
	slices.SortFunc(out, func(a, b SizeBucket) int {
		switch {
		case a.Size > b.Size:
			return -1
		case a.Size < b.Size:
			return 1
		}
		return 0
	})
	return out
}

// Stats returns the walk counters.
func (x *SizeIndex) Stats() IndexStats {
	return x.stats
}

// Skipped returns entries the walk could not read.
func (x *SizeIndex) Skipped() []SkippedEntry {
	return x.skipped
}

// Indexer enumerates files below a root.
type Indexer struct {
	fsmgr  FilesystemManager
	logger Logger
	opts   IndexOptions
}

// NewIndexer creates an Indexer.
func NewIndexer(fsmgr FilesystemManager, logger Logger, opts IndexOptions) *Indexer {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Indexer{fsmgr: fsmgr, logger: logger, opts: opts}
}

// BuildSizeIndex walks root and indexes every regular file at or above
// the minimum size.
func (ix *Indexer) BuildSizeIndex(ctx context.Context, root string) (*SizeIndex, error) {
	idx := NewSizeIndex()
	stats, skipped, err := ix.walk(ctx, root, nil, idx.Add)
	if err != nil {
		return nil, err
	}
	idx.stats = stats
	idx.skipped = skipped
	ix.logger.Info("size index built",
		"root", root,
		"files_seen", stats.FilesSeen,
		"files_indexed", stats.FilesIndexed,
		"sizes", len(idx.buckets),
		"skipped", len(skipped))
	return idx, nil
}

// walk visits every indexable file below root. Directories in prune, and
// those named in the exclude options, are not descended.
func (ix *Indexer) walk(ctx context.Context, root string, prune []string, visit func(*FileRecord)) (IndexStats, []SkippedEntry, error) {
	var stats IndexStats
	var skipped []SkippedEntry

	base := ix.opts.Base
	if base == "" {
		base = root
	}
	pruned := make(map[string]bool, len(prune)+len(ix.opts.Exclude))
	for _, p := range prune {
		pruned[filepath.Clean(p)] = true
	}
	for _, p := range ix.opts.Exclude {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		pruned[filepath.Clean(p)] = true
	}

	every := ix.opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	err := ix.fsmgr.Walk(root, func(entry WalkEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			skipped = append(skipped, SkippedEntry{Path: entry.Path, Reason: walkErr.Error()})
			ix.logger.Warn("skipping unreadable entry", "path", entry.Path, "error", walkErr)
			return nil
		}

		if ix.prune(base, entry, pruned) {
			if entry.IsDir {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir {
			return nil
		}

		stats.FilesSeen++
		stats.BytesSeen += entry.Size
		if stats.FilesSeen%every == 0 {
			ix.logger.Info("walk progress", "root", root, "files_seen", stats.FilesSeen)
		}

		if entry.Size < ix.opts.MinSize {
			stats.BelowMinSize++
			return nil
		}
		stats.FilesIndexed++
		stats.BytesIndexed += entry.Size
		visit(NewFileRecord(entry.Path, entry.Size))
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stats, skipped, err
		}
		return stats, skipped, fmt.Errorf("walking %s: %w", root, err)
	}
	return stats, skipped, nil
}

func (ix *Indexer) prune(base string, entry WalkEntry, pruned map[string]bool) bool {
	if ix.opts.HiddenPrefix != "" && strings.HasPrefix(entry.Name, ix.opts.HiddenPrefix) {
		return true
	}
	if pruned[filepath.Clean(entry.Path)] {
		return true
	}
	if ix.opts.Ignore != nil {
		rel, err := filepath.Rel(base, entry.Path)
		if err == nil && ix.opts.Ignore(filepath.ToSlash(rel), entry.IsDir) {
			return true
		}
	}
	return false
}
