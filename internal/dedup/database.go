package dedup

// Database provides the persistent audit log.
// Every method is safe to call from multiple goroutines; writes are
// serialized by the implementation.
type Database interface {
	// Run operations
	CreateRun(operation, parameters string) (*Run, error)
	FinishRun(id int64, status string) error
	ListRuns(limit int) ([]*Run, error)
	MaxRunID() (int64, error)

	// Decision operations
	AppendDecision(d *DeletionDecision) error
	// FindLatestDecision returns nil, nil when the source has no decision.
	// An empty mode matches any mode.
	FindLatestDecision(sourcePath string, mode Mode) (*DeletionDecision, error)
	HasDeletedDecision(sourcePath string) (bool, error)
	ListDecisions(filter DecisionFilter) ([]*DeletionDecision, error)
	SummarizeDecisions(filter DecisionFilter) (*AuditSummary, error)

	// Deletion intent operations
	// BeginDeletion returns ErrDeletionInProgress if an intent already
	// exists for the source path.
	BeginDeletion(intent *DeletionIntent) error
	// CompleteDeletion records d and clears the matching intent atomically.
	// It reports false, without recording, if the intent was already
	// resolved elsewhere.
	CompleteDeletion(d *DeletionDecision) (bool, error)
	DropDeletionIntent(sourcePath string) error
	ListDeletionIntents() ([]*DeletionIntent, error)

	// Snapshot writes a consistent copy of the database to path.
	Snapshot(path string) error

	Close() error
}
