package dedup

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Breakdown keys for files that have no top-level directory or extension.
const (
	RootDirectoryKey = "(root)"
	NoExtensionKey   = "no_ext"
)

// DuplicateCluster is a set of at least two files with equal size and
// equal fingerprint.
type DuplicateCluster struct {
	Size        int64       `json:"size" yaml:"size"`
	Fingerprint Fingerprint `json:"fingerprint" yaml:"fingerprint"`
	Count       int         `json:"count" yaml:"count"`
	WastedBytes int64       `json:"wasted_bytes" yaml:"wasted_bytes"`
	Paths       []string    `json:"paths" yaml:"paths"`
}

func newCluster(size int64, fp Fingerprint, members []*FileRecord) DuplicateCluster {
	paths := make([]string, len(members))
	for i, m := range members {
		paths[i] = m.Path
	}
	return DuplicateCluster{
		Size:        size,
		Fingerprint: fp,
		Count:       len(paths),
		WastedBytes: size * int64(len(paths)-1),
		Paths:       paths,
	}
}

// BreakdownRow aggregates duplicate files under one key. Directory rows
// hold the bytes of every member stored there; extension rows hold the
// wasted bytes of their clusters.
type BreakdownRow struct {
	Key   string `json:"key" yaml:"key"`
	Files int    `json:"files" yaml:"files"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// ScanTotals are the headline numbers of a scan.
type ScanTotals struct {
	FilesScanned   int   `json:"files_scanned" yaml:"files_scanned"`
	FilesIndexed   int   `json:"files_indexed" yaml:"files_indexed"`
	BytesScanned   int64 `json:"bytes_scanned" yaml:"bytes_scanned"`
	Clusters       int   `json:"clusters" yaml:"clusters"`
	DuplicateFiles int   `json:"duplicate_files" yaml:"duplicate_files"`
	WastedBytes    int64 `json:"wasted_bytes" yaml:"wasted_bytes"`
	Skipped        int   `json:"skipped" yaml:"skipped"`
}

// ScanReport is the read-only result of a scan.
type ScanReport struct {
	Root        string             `json:"root" yaml:"root"`
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
	MinSize     int64              `json:"min_size" yaml:"min_size"`
	Policy      HashPolicy         `json:"hash_policy" yaml:"hash_policy"`
	Totals      ScanTotals         `json:"totals" yaml:"totals"`
	Clusters    []DuplicateCluster `json:"clusters" yaml:"clusters"`
	ByDirectory []BreakdownRow     `json:"by_directory" yaml:"by_directory"`
	ByExtension []BreakdownRow     `json:"by_extension" yaml:"by_extension"`
	Skipped     []SkippedEntry     `json:"skipped" yaml:"skipped"`
}

// NewScanReport sorts clusters and derives totals and breakdowns.
func NewScanReport(root string, generatedAt time.Time, stats IndexStats, clusters []DuplicateCluster, skipped []SkippedEntry) *ScanReport {
	SortClusters(clusters)

	r := &ScanReport{
		Root:        root,
		GeneratedAt: generatedAt,
		Clusters:    clusters,
		Skipped:     skipped,
		Totals: ScanTotals{
			FilesScanned: stats.FilesSeen,
			FilesIndexed: stats.FilesIndexed,
			BytesScanned: stats.BytesSeen,
			Clusters:     len(clusters),
			Skipped:      len(skipped),
		},
	}

	dirs := make(map[string]*BreakdownRow)
	exts := make(map[string]*BreakdownRow)
	for _, c := range clusters {
		r.Totals.DuplicateFiles += c.Count - 1
		r.Totals.WastedBytes += c.WastedBytes
		for _, p := range c.Paths {
			addBreakdown(dirs, topLevelDir(root, p), 1, c.Size)
		}
		addBreakdown(exts, extensionKey(firstPath(c)), c.Count, c.WastedBytes)
	}
	r.ByDirectory = sortBreakdown(dirs)
	r.ByExtension = sortBreakdown(exts)
	return r
}

// SortClusters orders clusters by wasted bytes, then size, then
// fingerprint, then first path.
func SortClusters(clusters []DuplicateCluster) {
	slices.SortFunc(clusters, func(a, b DuplicateCluster) int {
		if c := cmp.Compare(b.WastedBytes, a.WastedBytes); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Size, a.Size); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Fingerprint.String(), b.Fingerprint.String()); c != 0 {
			return c
		}
		return cmp.Compare(firstPath(a), firstPath(b))
	})
}

func firstPath(c DuplicateCluster) string {
	if len(c.Paths) == 0 {
		return ""
	}
	return c.Paths[0]
}

func addBreakdown(rows map[string]*BreakdownRow, key string, files int, bytes int64) {
	row, ok := rows[key]
	if !ok {
		row = &BreakdownRow{Key: key}
		rows[key] = row
	}
	row.Files += files
	row.Bytes += bytes
}

func sortBreakdown(rows map[string]*BreakdownRow) []BreakdownRow {
	out := make([]BreakdownRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b BreakdownRow) int {
		if c := cmp.Compare(b.Bytes, a.Bytes); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

func topLevelDir(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return RootDirectoryKey
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return RootDirectoryKey
	}
	return parts[0]
}

func extensionKey(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return NoExtensionKey
	}
	return ext
}

// Resolver turns size buckets into duplicate clusters.
type Resolver struct {
	hasher  *Hasher
	logger  Logger
	workers int
}

// NewResolver creates a Resolver. workers bounds concurrent hashing;
// zero or less hashes one file at a time.
func NewResolver(hasher *Hasher, logger Logger, workers int) *Resolver {
	if logger == nil {
		logger = NewNopLogger()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Resolver{hasher: hasher, logger: logger, workers: workers}
}

// Resolve fingerprints every candidate bucket of idx and returns the
// clusters found, unsorted, together with files that could not be hashed.
func (r *Resolver) Resolve(ctx context.Context, idx *SizeIndex) ([]DuplicateCluster, []SkippedEntry, error) {
	policy := r.hasher.Policy()
	var clusters []DuplicateCluster
	var skipped []SkippedEntry

	buckets := idx.Candidates()
	for i, b := range buckets {
		fps, failed, err := r.fingerprintAll(ctx, b.Records, false)
		if err != nil {
			return nil, nil, err
		}
		skipped = append(skipped, failed...)

		for _, g := range partition(b.Records, fps) {
			if len(g.members) < 2 {
				continue
			}
			if g.fp.IsFull() || !policy.RequiresFull(b.Size) {
				clusters = append(clusters, newCluster(b.Size, g.fp, g.members))
				continue
			}

			// Quick match above the escalation threshold: confirm in full.
			full, failed, err := r.fingerprintAll(ctx, g.members, true)
			if err != nil {
				return nil, nil, err
			}
			skipped = append(skipped, failed...)
			for _, fg := range partition(g.members, full) {
				if len(fg.members) >= 2 {
					clusters = append(clusters, newCluster(b.Size, fg.fp, fg.members))
				}
			}
		}

		if (i+1)%100 == 0 {
			r.logger.Info("resolve progress", "buckets", i+1, "of", len(buckets), "clusters", len(clusters))
		}
	}
	return clusters, skipped, nil
}

// fingerprintAll hashes recs concurrently. Each worker writes its own slot,
// so results keep the order of recs. Records that cannot be read are
// returned as skipped and leave a zero fingerprint behind.
func (r *Resolver) fingerprintAll(ctx context.Context, recs []*FileRecord, full bool) ([]Fingerprint, []SkippedEntry, error) {
	fps := make([]Fingerprint, len(recs))
	errs := make([]error, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, rec := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var fp Fingerprint
			var err error
			if full {
				fp, err = r.hasher.Full(gctx, rec)
			} else {
				fp, err = r.hasher.Quick(gctx, rec)
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			fps[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var skipped []SkippedEntry
	for i, err := range errs {
		if err != nil {
			r.logger.Warn("fingerprint failed", "path", recs[i].Path, "error", err)
			skipped = append(skipped, SkippedEntry{Path: recs[i].Path, Reason: "fingerprint read failed: " + err.Error()})
		}
	}
	return fps, skipped, nil
}

type fingerprintGroup struct {
	fp      Fingerprint
	members []*FileRecord
}

// partition groups recs by fingerprint in order of first appearance.
// Records with a zero fingerprint are dropped.
func partition(recs []*FileRecord, fps []Fingerprint) []*fingerprintGroup {
	var groups []*fingerprintGroup
	byFP := make(map[Fingerprint]*fingerprintGroup)
	for i, rec := range recs {
		fp := fps[i]
		if fp.IsZero() {
			continue
		}
		g, ok := byFP[fp]
		if !ok {
			g = &fingerprintGroup{fp: fp}
			byFP[fp] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, rec)
	}
	return groups
}
