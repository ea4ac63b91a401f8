package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"dedupe-go/internal/archive"
	"dedupe-go/internal/config"
	"dedupe-go/internal/database"
	"dedupe-go/internal/dedup"
	"dedupe-go/internal/encryption"
	"dedupe-go/internal/fs"
	"dedupe-go/internal/metrics"
	"dedupe-go/internal/report"
)

// schemaChecker is implemented by databases that can report pending migrations.
type schemaChecker interface {
	CheckMigrations() error
}

// Option customizes a DedupApp.
type Option func(*DedupApp)

// WithConfirmer replaces the terminal prompt that gates live runs.
func WithConfirmer(c Confirmer) Option {
	return func(a *DedupApp) { a.confirmer = c }
}

// WithStderr sets where warnings are echoed besides the log file.
func WithStderr(w io.Writer) Option {
	return func(a *DedupApp) { a.stderr = w }
}

// WithClock replaces the wall clock.
func WithClock(c dedup.Clock) Option {
	return func(a *DedupApp) { a.clock = c }
}

// DedupApp is the application layer between the CLI and DedupService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and archives the audit log on Close.
type DedupApp struct {
	cfg       *config.Config
	db        dedup.Database
	archive   dedup.Archive
	fsmgr     dedup.FilesystemManager
	encryptor dedup.Encryptor
	service   *dedup.DedupService
	metrics   *metrics.Recorder
	reports   *report.Writer
	confirmer Confirmer
	clock     dedup.Clock
	stderr    io.Writer
	run       *Run
	lock      *fs.Lock
	logFile   *os.File

	// reconcile summary written by this run, archived on Close
	summaryPath string
}

// NewDedupApp creates a fully wired DedupApp from the given config.
// operation names the CLI command being run (e.g. "Scan", "Reconcile").
// The caller must call Close when done.
func NewDedupApp(ctx context.Context, cfg *config.Config, operation string, opts ...Option) (*DedupApp, error) {
	a := &DedupApp{
		cfg:    cfg,
		fsmgr:  fs.NewOSFilesystemManager(),
		clock:  dedup.RealClock{},
		stderr: os.Stderr,
		run:    NewRun(operation, ""),
	}
	for _, opt := range opts {
		opt(a)
	}
	cfg.ApplyDefaults()
	if a.confirmer == nil {
		a.confirmer = NewTerminalConfirmer()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	arch, err := archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	a.archive = arch

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if cfg.Archive.Encrypt && (enc == nil || !enc.IsConfigured()) {
		return nil, fmt.Errorf("archive encryption is enabled but no keys exist: run `dedupe config keys`")
	}
	a.encryptor = enc

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, a.clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if sc, ok := db.(schemaChecker); ok {
		if err := sc.CheckMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}
	a.db = db

	// A newer audit log in the archive means this host lost decisions.
	if arch != nil {
		remoteVersion, err := arch.Version(archive.SnapshotName(cfg.HostID))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking archived audit log version: %w", err)
		}
		localMax, err := db.MaxRunID()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking local audit log version: %w", err)
		}
		if remoteVersion > localMax {
			db.Close()
			return nil, fmt.Errorf("local audit log is behind the archive (local=%d, archive=%d): move it aside and run `dedupe audit pull`", localMax, remoteVersion)
		}
	}

	reports, err := report.NewWriter(cfg.ReportDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.reports = reports

	runTag := a.clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runTag, a.stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logFile = logFile

	a.metrics = metrics.NewRecorder()
	svc, err := dedup.NewDedupService(db, a.fsmgr, &slogAdapter{l: logger}, a.clock, dedup.UUIDGenerator{}, a.metrics, dedup.Options{
		Hash:    hashPolicy(cfg.Hashing),
		Workers: cfg.Scan.Workers,
	})
	if err != nil {
		logFile.Close()
		db.Close()
		return nil, err
	}
	a.service = svc
	return a, nil
}

func hashPolicy(c config.HashingConfig) dedup.HashPolicy {
	return dedup.HashPolicy{
		QuickThreshold:      c.QuickThreshold,
		SampleSize:          c.SampleSize,
		EscalationThreshold: c.EscalationThreshold,
		ChunkSize:           c.ChunkSize,
	}
}

// persistRun saves the run to the database, giving it an auto-increment ID.
// Only commands that write decisions call it.
func (a *DedupApp) persistRun() error {
	if a.run.Persisted() {
		return nil
	}
	r, err := a.db.CreateRun(a.run.Operation, a.run.Parameters)
	if err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}
	a.run.ID = r.ID
	return nil
}

// indexOptions merges the configured walk settings with per-command excludes
// and the ignore file found at root. Relative excludes and ignore paths are
// anchored at root for every walk, including the scope walk of a reconcile.
func (a *DedupApp) indexOptions(root string, minSize int64, exclude []string) (dedup.IndexOptions, error) {
	ignore, err := fs.LoadIgnoreMatcher(root, a.cfg.Scan.Ignore)
	if err != nil {
		return dedup.IndexOptions{}, fmt.Errorf("loading ignore patterns: %w", err)
	}
	var excluded []string
	for _, p := range slices.Concat(a.cfg.Scan.Exclude, exclude) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		excluded = append(excluded, p)
	}
	return dedup.IndexOptions{
		MinSize:      minSize,
		HiddenPrefix: *a.cfg.Scan.HiddenPrefix,
		Exclude:      excluded,
		Ignore:       ignore.Match,
		Base:         root,
	}, nil
}

// ScanResult is a finished scan and the report files written for it.
type ScanResult struct {
	Report *dedup.ScanReport
	Files  report.ScanFiles
}

// Scan resolves rawRoot, finds duplicate clusters below it and writes the
// machine and Markdown reports. Nothing is deleted or recorded.
func (a *DedupApp) Scan(ctx context.Context, rawRoot string, exclude []string) (*ScanResult, error) {
	root, err := a.fsmgr.Resolve(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	opts, err := a.indexOptions(root.String(), *a.cfg.Scan.MinSize, exclude)
	if err != nil {
		return nil, err
	}

	r, err := a.service.Scan(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	files, err := a.reports.WriteScan(r, a.cfg.Scan.Format, a.cfg.Scan.Top)
	if err != nil {
		return nil, fmt.Errorf("writing reports: %w", err)
	}
	return &ScanResult{Report: r, Files: files}, nil
}

// ReconcileRequest selects how a reconcile run behaves.
type ReconcileRequest struct {
	Exclude []string
	Live    bool
	Retry   bool
}

// ReconcileOutput is a finished (or interrupted) run and its summary file.
type ReconcileOutput struct {
	Result      *dedup.ReconcileResult
	SummaryPath string
}

// Reconcile deletes, or in dry-run mode reports, files inside rawScope that
// have a verified identical copy elsewhere on rawVolume. Live runs require
// confirmation and hold the data directory lock until Close.
func (a *DedupApp) Reconcile(ctx context.Context, rawVolume, rawScope string, req ReconcileRequest) (*ReconcileOutput, error) {
	volume, err := a.fsmgr.Resolve(rawVolume)
	if err != nil {
		return nil, fmt.Errorf("resolving volume: %w", err)
	}
	scope, err := a.fsmgr.Resolve(rawScope)
	if err != nil {
		return nil, fmt.Errorf("resolving scope: %w", err)
	}
	s, err := dedup.NewScope(scope)
	if err != nil {
		return nil, err
	}
	if !volume.IsDir() || s.Covers(volume.String()) {
		return nil, fmt.Errorf("volume %s must be a directory outside scope %s", volume.String(), s.Root())
	}
	opts, err := a.indexOptions(volume.String(), *a.cfg.Reconcile.MinSize, req.Exclude)
	if err != nil {
		return nil, err
	}

	mode := dedup.ModeDryRun
	if req.Live {
		mode = dedup.ModeLive
		summary := fmt.Sprintf("LIVE reconcile\n  volume: %s\n  scope:  %s", volume.String(), scope.String())
		if err := a.confirmer.ConfirmLive(summary); err != nil {
			return nil, err
		}
		if err := a.acquireLock(); err != nil {
			return nil, err
		}
	}

	a.run.Parameters = fmt.Sprintf("volume=%s scope=%s mode=%s retry=%t", volume.String(), scope.String(), mode, req.Retry)
	if err := a.persistRun(); err != nil {
		return nil, err
	}

	res, runErr := a.service.Reconcile(ctx, volume, scope, opts, dedup.ReconcileOptions{
		RunID: a.run.ID,
		Mode:  mode,
		Retry: req.Retry,
	})
	a.run.Fail(runErr)

	out := &ReconcileOutput{Result: res}
	if res != nil && res.Summary != nil {
		decisions, err := a.service.ListDecisions(dedup.DecisionFilter{RunID: a.run.ID})
		if err != nil {
			return out, errors.Join(runErr, err)
		}
		path, err := a.reports.WriteReconcile(res, decisions)
		if err != nil {
			return out, errors.Join(runErr, fmt.Errorf("writing summary: %w", err))
		}
		out.SummaryPath = path
		a.summaryPath = path
	}
	return out, runErr
}

func (a *DedupApp) acquireLock() error {
	if a.lock != nil {
		return nil
	}
	if err := os.MkdirAll(a.cfg.BaseDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	lock, err := fs.AcquireLock(LockPath(a.cfg.BaseDir))
	if err != nil {
		return fmt.Errorf("another live run is active: %w", err)
	}
	a.lock = lock
	return nil
}

// Summarize returns outcome totals from the audit log. An empty mode
// covers both modes.
func (a *DedupApp) Summarize(mode string) (*dedup.AuditSummary, error) {
	var filter dedup.DecisionFilter
	if mode != "" {
		m, err := dedup.ParseMode(mode)
		if err != nil {
			return nil, err
		}
		filter.Mode = m
	}
	return a.service.Summarize(filter)
}

// ListDecisions returns the newest audit entries, optionally of one outcome.
func (a *DedupApp) ListDecisions(outcome string, limit int) ([]*dedup.DeletionDecision, error) {
	filter := dedup.DecisionFilter{Limit: limit}
	if outcome != "" {
		o, err := dedup.ParseOutcome(outcome)
		if err != nil {
			return nil, err
		}
		filter.Outcome = o
	}
	return a.service.ListDecisions(filter)
}

// GetHistory returns the most recent runs.
func (a *DedupApp) GetHistory(limit int) ([]*dedup.Run, error) {
	return a.service.GetHistory(limit)
}

// Close finalizes the run and releases all resources.
// For persisted runs it records the final status, snapshots the audit log
// and archives it with version = run ID together with the run summary.
func (a *DedupApp) Close() error {
	var errs []error

	var tmpDir, snapshot string
	if a.run.Persisted() {
		if err := a.db.FinishRun(a.run.ID, a.run.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing run: %w", err))
		}
		if a.archive != nil {
			dir, err := os.MkdirTemp("", "dedupe-archive-*")
			if err != nil {
				errs = append(errs, fmt.Errorf("creating temp dir for snapshot: %w", err))
			} else {
				tmpDir = dir
				snapshot = filepath.Join(dir, "audit.db")
				if err := a.db.Snapshot(snapshot); err != nil {
					errs = append(errs, err)
					snapshot = ""
				}
			}
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		if err := a.archiveFile(archive.SnapshotName(a.cfg.HostID), snapshot, a.run.ID); err != nil {
			errs = append(errs, err)
		}
		if a.summaryPath != "" {
			name := archive.ReportName(a.cfg.HostID, filepath.Base(a.summaryPath))
			if err := a.archiveFile(name, a.summaryPath, a.run.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if tmpDir != "" {
		os.RemoveAll(tmpDir)
	}

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path, float64(a.clock.Now().Unix())); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("releasing lock: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// archiveFile uploads path under name, sealing it first when archive
// encryption is enabled.
func (a *DedupApp) archiveFile(name, path string, version int64) error {
	src := path
	if a.cfg.Archive.Encrypt {
		sealed := path + ".age"
		if err := encryptFile(a.encryptor, path, sealed); err != nil {
			return err
		}
		defer os.Remove(sealed)
		src = sealed
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := a.archive.Put(name, f, info.Size(), version); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

func encryptFile(enc dedup.Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting %s: %w", src, err)
	}
	return out.Close()
}
