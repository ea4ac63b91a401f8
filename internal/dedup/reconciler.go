package dedup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// errAlreadyDeleted signals that the audit log already records the source
// as deleted by some run.
var errAlreadyDeleted = errors.New("source already recorded as deleted")

// ReconcileOptions controls one reconcile run.
type ReconcileOptions struct {
	RunID int64
	Mode  Mode
	// Retry re-evaluates sources already decided in this mode. Deleted
	// sources are never revisited.
	Retry bool
}

// ReconcileResult describes what one reconcile run did.
type ReconcileResult struct {
	RunID          int64         `json:"run_id" yaml:"run_id"`
	Mode           Mode          `json:"mode" yaml:"mode"`
	Scope          string        `json:"scope" yaml:"scope"`
	Volume         string        `json:"volume" yaml:"volume"`
	Candidates     int           `json:"candidates" yaml:"candidates"`
	Decided        int           `json:"decided" yaml:"decided"`
	AlreadyDecided int           `json:"already_decided" yaml:"already_decided"`
	InProgress     int           `json:"in_progress_elsewhere" yaml:"in_progress_elsewhere"`
	Recovered      int           `json:"recovered" yaml:"recovered"`
	Interrupted    bool          `json:"interrupted" yaml:"interrupted"`
	Skipped        int           `json:"walk_skipped" yaml:"walk_skipped"`
	Summary        *AuditSummary `json:"summary" yaml:"summary"`
	StartedAt      time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time     `json:"finished_at" yaml:"finished_at"`
}

// Reconciler decides, and in live mode carries out, the fate of each
// candidate pair. Every decision is written to the audit log before the
// next candidate is considered.
type Reconciler struct {
	db      Database
	fsmgr   FilesystemManager
	hasher  *Hasher
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	metrics Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(db Database, fsmgr FilesystemManager, hasher *Hasher, logger Logger, clock Clock, idgen IDGenerator, metrics Metrics) *Reconciler {
	if logger == nil {
		logger = NewNopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Reconciler{
		db:      db,
		fsmgr:   fsmgr,
		hasher:  hasher,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		metrics: metrics,
	}
}

// Run processes pairs in order. On cancellation it stops between
// candidates and returns the partial result together with the context
// error; every decision made so far is already durable.
//
// In live mode the caller must hold the exclusive live-run lock: pending
// deletion intents found at start are treated as left behind by a run
// that died.
func (r *Reconciler) Run(ctx context.Context, pairs []CandidatePair, opts ReconcileOptions) (*ReconcileResult, error) {
	result := &ReconcileResult{
		RunID:      opts.RunID,
		Mode:       opts.Mode,
		Candidates: len(pairs),
		StartedAt:  r.clock.Now(),
	}

	if opts.Mode == ModeLive {
		recovered, err := r.RecoverIntents()
		if err != nil {
			return result, err
		}
		result.Recovered = recovered
	}

	var runErr error
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			result.Interrupted = true
			runErr = err
			r.logger.Warn("reconcile interrupted", "processed", i, "remaining", len(pairs)-i)
			break
		}

		settled, err := r.settled(pair.Source.Path(), opts)
		if err != nil {
			runErr = err
			break
		}
		if settled {
			result.AlreadyDecided++
			continue
		}

		d, err := r.decide(ctx, pair, opts)
		switch {
		case errors.Is(err, ErrDeletionInProgress):
			r.logger.Warn("deletion in progress elsewhere", "source", pair.Source.Path())
			result.InProgress++
			continue
		case errors.Is(err, errAlreadyDeleted):
			result.AlreadyDecided++
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Interrupted = true
				runErr = ctxErr
			} else {
				runErr = err
			}
		}
		if runErr != nil {
			break
		}

		result.Decided++
		r.metrics.DecisionRecorded(d.Outcome, d.Size)
		r.logger.Info("decision",
			"outcome", d.Outcome,
			"source", d.SourcePath,
			"keeper", d.KeeperPath,
			"size", d.Size,
			"reason", d.Reason)
	}

	result.FinishedAt = r.clock.Now()
	summary, err := r.db.SummarizeDecisions(DecisionFilter{RunID: opts.RunID})
	if err != nil {
		return result, errors.Join(runErr, fmt.Errorf("summarizing run %d: %w", opts.RunID, err))
	}
	result.Summary = summary
	return result, runErr
}

// RecoverIntents resolves deletion intents left by a run that died between
// writing the intent and recording the result. A source that is gone is
// recorded as deleted; a source that still exists has its intent dropped
// so it can be evaluated again.
func (r *Reconciler) RecoverIntents() (int, error) {
	intents, err := r.db.ListDeletionIntents()
	if err != nil {
		return 0, fmt.Errorf("listing deletion intents: %w", err)
	}

	recovered := 0
	for _, in := range intents {
		_, statErr := r.fsmgr.Stat(in.SourcePath)
		switch {
		case errors.Is(statErr, fs.ErrNotExist):
			d := &DeletionDecision{
				RunID:       in.RunID,
				DecisionID:  in.DecisionID,
				Timestamp:   r.clock.Now(),
				Mode:        ModeLive,
				SourcePath:  in.SourcePath,
				KeeperPath:  in.KeeperPath,
				Size:        in.Size,
				Fingerprint: in.Fingerprint,
				Outcome:     OutcomeDeleted,
				Reason:      ReasonRecoveredDeleted,
			}
			ok, err := r.db.CompleteDeletion(d)
			if err != nil {
				return recovered, fmt.Errorf("recovering intent for %s: %w", in.SourcePath, err)
			}
			if ok {
				recovered++
				r.metrics.DecisionRecorded(OutcomeDeleted, in.Size)
				r.logger.Warn("recovered interrupted deletion", "source", in.SourcePath, "run_id", in.RunID)
			}
		case statErr == nil:
			if err := r.db.DropDeletionIntent(in.SourcePath); err != nil {
				return recovered, fmt.Errorf("dropping intent for %s: %w", in.SourcePath, err)
			}
			r.logger.Warn("dropped stale deletion intent", "source", in.SourcePath, "run_id", in.RunID)
		default:
			r.logger.Warn("leaving deletion intent unresolved", "source", in.SourcePath, "error", statErr)
		}
	}
	return recovered, nil
}

// settled reports whether a source needs no further evaluation.
func (r *Reconciler) settled(source string, opts ReconcileOptions) (bool, error) {
	deleted, err := r.db.HasDeletedDecision(source)
	if err != nil {
		return false, fmt.Errorf("checking audit log for %s: %w", source, err)
	}
	if deleted {
		return true, nil
	}
	if opts.Retry {
		return false, nil
	}
	latest, err := r.db.FindLatestDecision(source, opts.Mode)
	if err != nil {
		return false, fmt.Errorf("checking audit log for %s: %w", source, err)
	}
	return latest != nil, nil
}

// decide evaluates one pair and records exactly one decision for it.
// Errors are returned only when nothing could be recorded.
func (r *Reconciler) decide(ctx context.Context, pair CandidatePair, opts ReconcileOptions) (*DeletionDecision, error) {
	src := pair.Source
	d := &DeletionDecision{
		RunID:      opts.RunID,
		DecisionID: r.idgen.New(),
		Mode:       opts.Mode,
		SourcePath: src.Path(),
		Size:       src.Size(),
	}
	if len(pair.Keepers) > 0 {
		d.KeeperPath = pair.Keepers[0].Path()
	}

	srcInfo, err := r.fsmgr.Stat(src.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return r.record(d, OutcomeRejected, ReasonSourceMissing)
	}
	if err != nil {
		return r.record(d, OutcomeSkipped, ReasonReadFailed+": source: "+err.Error())
	}
	if srcInfo.Size() != src.Size() {
		return r.record(d, OutcomeRejected, ReasonSourceChanged)
	}

	var live []Keeper
	var lastReason string
	for _, k := range pair.Keepers {
		info, err := r.fsmgr.Stat(k.Path())
		switch {
		case errors.Is(err, fs.ErrNotExist):
			lastReason = ReasonKeeperMissing
		case err != nil:
			lastReason = ReasonReadFailed + ": keeper: " + err.Error()
		case r.fsmgr.SameFile(srcInfo, info):
			lastReason = ReasonKeeperIsSource
		case info.Size() != src.Size():
			lastReason = ReasonKeeperChanged
		default:
			live = append(live, k)
		}
	}
	if len(live) == 0 {
		if strings.HasPrefix(lastReason, ReasonReadFailed) {
			return r.record(d, OutcomeSkipped, lastReason)
		}
		return r.record(d, OutcomeRejected, lastReason)
	}
	d.KeeperPath = live[0].Path()

	srcFP, err := r.hasher.Verify(ctx, src.Path(), src.Size())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.record(d, OutcomeSkipped, ReasonReadFailed+": source: "+err.Error())
	}
	d.Fingerprint = srcFP.Sum

	var match *Keeper
	var readErr error
	for _, k := range live {
		fp, err := r.hasher.Verify(ctx, k.Path(), k.Size())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			readErr = err
			continue
		}
		if fp == srcFP {
			match = &k
			break
		}
	}
	if match == nil {
		if readErr != nil {
			return r.record(d, OutcomeSkipped, ReasonReadFailed+": keeper: "+readErr.Error())
		}
		return r.record(d, OutcomeRejected, ReasonMismatch)
	}
	d.KeeperPath = match.Path()

	if opts.Mode != ModeLive {
		return r.record(d, OutcomeWouldDelete, ReasonConfirmed)
	}
	return r.delete(src, d)
}

// delete removes a confirmed source under a write-ahead intent.
func (r *Reconciler) delete(src Deletable, d *DeletionDecision) (*DeletionDecision, error) {
	deleted, err := r.db.HasDeletedDecision(src.Path())
	if err != nil {
		return nil, fmt.Errorf("checking audit log for %s: %w", src.Path(), err)
	}
	if deleted {
		return nil, errAlreadyDeleted
	}

	intent := &DeletionIntent{
		RunID:       d.RunID,
		DecisionID:  d.DecisionID,
		SourcePath:  d.SourcePath,
		KeeperPath:  d.KeeperPath,
		Size:        d.Size,
		Fingerprint: d.Fingerprint,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.db.BeginDeletion(intent); err != nil {
		return nil, err
	}

	d.Outcome, d.Reason = OutcomeDeleted, ReasonConfirmed
	if err := r.fsmgr.Remove(src); err != nil {
		d.Outcome, d.Reason = OutcomeSkipped, ReasonDeleteFailed+": "+err.Error()
	}
	d.Timestamp = r.clock.Now()

	ok, err := r.db.CompleteDeletion(d)
	if err != nil {
		return nil, fmt.Errorf("recording deletion of %s: %w", src.Path(), err)
	}
	if !ok {
		return nil, errAlreadyDeleted
	}
	return d, nil
}

func (r *Reconciler) record(d *DeletionDecision, outcome Outcome, reason string) (*DeletionDecision, error) {
	d.Outcome = outcome
	d.Reason = reason
	d.Timestamp = r.clock.Now()
	if err := r.db.AppendDecision(d); err != nil {
		return nil, fmt.Errorf("recording decision for %s: %w", d.SourcePath, err)
	}
	return d, nil
}
