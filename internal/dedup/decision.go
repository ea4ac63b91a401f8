package dedup

import (
	"database/sql"
	"fmt"
	"time"
)

// Outcome is the terminal state of one candidate in one run.
type Outcome string

const (
	OutcomeDeleted     Outcome = "deleted"
	OutcomeWouldDelete Outcome = "would_delete"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeRejected    Outcome = "rejected"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeDeleted, OutcomeWouldDelete, OutcomeSkipped, OutcomeRejected}

// ParseOutcome validates s as an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range Outcomes {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Mode selects whether a reconcile run may delete.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// ParseMode validates s as a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeLive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Reasons recorded with decisions.
const (
	ReasonConfirmed        = "confirmed duplicate of keeper"
	ReasonSourceMissing    = "source no longer exists"
	ReasonSourceChanged    = "source size changed"
	ReasonKeeperMissing    = "keeper no longer exists"
	ReasonKeeperChanged    = "keeper size changed"
	ReasonKeeperIsSource   = "keeper is the source"
	ReasonMismatch         = "fingerprint mismatch"
	ReasonReadFailed       = "fingerprint read failed"
	ReasonDeleteFailed     = "delete failed"
	ReasonRecoveredDeleted = "deletion recovered after interrupted run"
)

// DeletionDecision is one row of the append-only audit log.
type DeletionDecision struct {
	ID          int64     `json:"id" yaml:"id"`
	RunID       int64     `json:"run_id" yaml:"run_id"`
	DecisionID  string    `json:"decision_id" yaml:"decision_id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Mode        Mode      `json:"mode" yaml:"mode"`
	SourcePath  string    `json:"source_path" yaml:"source_path"`
	KeeperPath  string    `json:"keeper_path" yaml:"keeper_path"`
	Size        int64     `json:"size" yaml:"size"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Outcome     Outcome   `json:"outcome" yaml:"outcome"`
	Reason      string    `json:"reason" yaml:"reason"`
}

// DeletionIntent marks a source that a live run is about to delete.
// It is written before the file is removed and cleared together with
// the decision that records the result.
type DeletionIntent struct {
	RunID       int64
	DecisionID  string
	SourcePath  string
	KeeperPath  string
	Size        int64
	Fingerprint string
	CreatedAt   time.Time
}

// Run statuses.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// Run is one recorded invocation of a mutating command.
type Run struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// DecisionFilter narrows audit queries. Zero fields match everything.
type DecisionFilter struct {
	RunID   int64
	Mode    Mode
	Outcome Outcome
	Limit   int
}

// OutcomeTotals is the count and byte sum of one outcome.
type OutcomeTotals struct {
	Count int   `json:"count" yaml:"count"`
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// AuditSummary is computed from the audit log, never from in-memory counters.
type AuditSummary struct {
	ByOutcome map[Outcome]OutcomeTotals `json:"by_outcome" yaml:"by_outcome"`
}

// NewAuditSummary creates an empty summary.
func NewAuditSummary() *AuditSummary {
	return &AuditSummary{ByOutcome: make(map[Outcome]OutcomeTotals)}
}

// Count returns the number of decisions with outcome o.
func (s *AuditSummary) Count(o Outcome) int {
	return s.ByOutcome[o].Count
}

// Bytes returns the total size of decisions with outcome o.
func (s *AuditSummary) Bytes(o Outcome) int64 {
	return s.ByOutcome[o].Bytes
}

// Total returns the number of decisions.
func (s *AuditSummary) Total() int {
	n := 0
	for _, t := range s.ByOutcome {
		n += t.Count
	}
	return n
}

// BytesFreed is the size of files actually deleted.
func (s *AuditSummary) BytesFreed() int64 {
	return s.Bytes(OutcomeDeleted)
}

// BytesWouldFree is the size of files a live run would delete.
func (s *AuditSummary) BytesWouldFree() int64 {
	return s.Bytes(OutcomeWouldDelete)
}
