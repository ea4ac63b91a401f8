package dedup

import (
	"context"
	"errors"
	"fmt"
)

// Options configures a DedupService.
type Options struct {
	Hash    HashPolicy
	Workers int
}

// DedupService is the orchestration layer that coordinates the walker,
// hasher, matcher, reconciler and audit log for the CLI.
type DedupService struct {
	database Database
	fsmgr    FilesystemManager
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	metrics  Metrics
	hasher   *Hasher
	workers  int
}

// NewDedupService creates a new DedupService with the provided dependencies.
func NewDedupService(database Database, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, metrics Metrics, opts Options) (*DedupService, error) {
	if err := opts.Hash.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hash policy: %w", err)
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &DedupService{
		database: database,
		fsmgr:    fsmgr,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		metrics:  metrics,
		hasher:   NewHasher(fsmgr, opts.Hash, metrics),
		workers:  opts.Workers,
	}, nil
}

// Scan finds duplicate clusters below root. It never modifies the
// filesystem or the audit log.
func (s *DedupService) Scan(ctx context.Context, root *Path, opts IndexOptions) (*ScanReport, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}
	s.logger.Info("scan started", "root", root.String(), "min_size", opts.MinSize)

	idx, err := NewIndexer(s.fsmgr, s.logger, opts).BuildSizeIndex(ctx, root.String())
	if err != nil {
		return nil, fmt.Errorf("building size index: %w", err)
	}
	s.metrics.FilesIndexed(idx.Stats().FilesIndexed)

	clusters, failed, err := NewResolver(s.hasher, s.logger, s.workers).Resolve(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("resolving clusters: %w", err)
	}

	skipped := append(append([]SkippedEntry{}, idx.Skipped()...), failed...)
	report := NewScanReport(root.String(), s.clock.Now(), idx.Stats(), clusters, skipped)
	report.MinSize = opts.MinSize
	report.Policy = s.hasher.Policy()

	s.metrics.ScanCompleted(report.Totals.Clusters, report.Totals.WastedBytes)
	s.logger.Info("scan finished",
		"root", root.String(),
		"clusters", report.Totals.Clusters,
		"duplicate_files", report.Totals.DuplicateFiles,
		"wasted_bytes", report.Totals.WastedBytes,
		"skipped", report.Totals.Skipped)
	return report, nil
}

// Match pairs files inside scopeRoot with same-named, same-sized files
// elsewhere on volume. Nothing is read beyond directory metadata.
func (s *DedupService) Match(ctx context.Context, volume, scopeRoot *Path, opts IndexOptions) (*MatchResult, *Scope, error) {
	if !volume.IsDir() {
		return nil, nil, fmt.Errorf("path is not a directory: %s", volume.String())
	}
	scope, err := NewScope(scopeRoot)
	if err != nil {
		return nil, nil, err
	}
	res, err := NewMatcher(NewIndexer(s.fsmgr, s.logger, opts), s.logger).Match(ctx, volume.String(), scope)
	if err != nil {
		return nil, nil, err
	}
	return res, scope, nil
}

// Reconcile matches candidates and decides each one under runID.
// In live mode the caller must hold the exclusive live-run lock.
func (s *DedupService) Reconcile(ctx context.Context, volume, scopeRoot *Path, opts IndexOptions, ropts ReconcileOptions) (*ReconcileResult, error) {
	if _, err := ParseMode(string(ropts.Mode)); err != nil {
		return nil, err
	}
	s.logger.Info("reconcile started",
		"volume", volume.String(),
		"scope", scopeRoot.String(),
		"mode", ropts.Mode,
		"run_id", ropts.RunID)

	match, scope, err := s.Match(ctx, volume, scopeRoot, opts)
	if err != nil {
		return nil, fmt.Errorf("matching candidates: %w", err)
	}

	rec := NewReconciler(s.database, s.fsmgr, s.hasher, s.logger, s.clock, s.idgen, s.metrics)
	result, err := rec.Run(ctx, match.Pairs, ropts)
	if result != nil {
		result.Scope = scope.Root()
		result.Volume = volume.String()
		result.Skipped = len(match.Skipped)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, err
		}
		return result, fmt.Errorf("reconciling: %w", err)
	}

	s.logger.Info("reconcile finished",
		"run_id", ropts.RunID,
		"candidates", result.Candidates,
		"decided", result.Decided,
		"already_decided", result.AlreadyDecided,
		"bytes_freed", result.Summary.BytesFreed(),
		"bytes_would_free", result.Summary.BytesWouldFree())
	return result, nil
}
