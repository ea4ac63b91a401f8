package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"dedupe-go/internal/database/migrations"
	"dedupe-go/internal/dedup"
)

// busyTimeoutMillis is how long a writer waits for a competing lock.
const busyTimeoutMillis = 5000

// SQLiteDatabase implements the Database interface using SQLite.
// Writes are serialized by mu in addition to the single connection.
type SQLiteDatabase struct {
	mu      sync.Mutex
	db      *sql.DB
	queries *queries
	clock   dedup.Clock
	path    string
}

// NewSQLiteDatabase opens the audit log at path and applies pending
// migrations. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string, clock dedup.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock dedup.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = dedup.RealClock{}
	}
	return &SQLiteDatabase{
		db:      db,
		queries: newQueries(db),
		clock:   clock,
		path:    path,
	}
}

// OpenConnection opens and configures a SQLite database connection.
// Decisions must survive power loss, so file databases use WAL with
// synchronous=FULL. A single connection serializes every writer and keeps
// ":memory:" databases on one instance.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", path, busyTimeoutMillis)
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL&_synchronous=FULL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Run operations

func (s *SQLiteDatabase) CreateRun(operation, parameters string) (*dedup.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	id, err := s.queries.insertRun(ctx, operation, parameters, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	run, err := s.queries.getRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading run %d: %w", id, err)
	}
	return &run, nil
}

func (s *SQLiteDatabase) FinishRun(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.queries.finishRun(context.Background(), id, status, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: no run with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*dedup.Run, error) {
	runs, err := s.queries.listRuns(context.Background(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	result := make([]*dedup.Run, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxRunID() (int64, error) {
	id, err := s.queries.maxRunID(context.Background())
	if err != nil {
		return 0, fmt.Errorf("getting max run ID: %w", err)
	}
	return id, nil
}

// Decision operations

func (s *SQLiteDatabase) AppendDecision(d *dedup.DeletionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.queries.insertDecision(context.Background(), d)
	if err != nil {
		return fmt.Errorf("appending decision: %w", err)
	}
	d.ID = id
	return nil
}

func (s *SQLiteDatabase) FindLatestDecision(sourcePath string, mode dedup.Mode) (*dedup.DeletionDecision, error) {
	d, err := s.queries.latestDecision(context.Background(), sourcePath, mode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding latest decision: %w", err)
	}
	return &d, nil
}

func (s *SQLiteDatabase) HasDeletedDecision(sourcePath string) (bool, error) {
	n, err := s.queries.countDeleted(context.Background(), sourcePath)
	if err != nil {
		return false, fmt.Errorf("checking deleted decisions: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) ListDecisions(filter dedup.DecisionFilter) ([]*dedup.DeletionDecision, error) {
	decisions, err := s.queries.listDecisions(context.Background(), filter)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	result := make([]*dedup.DeletionDecision, len(decisions))
	for i := range decisions {
		result[i] = &decisions[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) SummarizeDecisions(filter dedup.DecisionFilter) (*dedup.AuditSummary, error) {
	rows, err := s.queries.summarize(context.Background(), filter)
	if err != nil {
		return nil, fmt.Errorf("summarizing decisions: %w", err)
	}
	summary := dedup.NewAuditSummary()
	for _, r := range rows {
		summary.ByOutcome[r.outcome] = dedup.OutcomeTotals{Count: r.count, Bytes: r.bytes}
	}
	return summary, nil
}

// Deletion intent operations

func (s *SQLiteDatabase) BeginDeletion(intent *dedup.DeletionIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.queries.insertIntent(context.Background(), intent)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", dedup.ErrDeletionInProgress, intent.SourcePath)
		}
		return fmt.Errorf("recording deletion intent: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CompleteDeletion(d *dedup.DeletionDecision) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.withTx(tx)

	n, err := qtx.deleteIntentForDecision(ctx, d.SourcePath, d.DecisionID)
	if err != nil {
		return false, fmt.Errorf("clearing deletion intent: %w", err)
	}
	if n == 0 {
		// The intent was resolved by someone else; nothing to record.
		return false, nil
	}

	id, err := qtx.insertDecision(ctx, d)
	if err != nil {
		return false, fmt.Errorf("appending decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	d.ID = id
	return true, nil
}

func (s *SQLiteDatabase) DropDeletionIntent(sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.queries.deleteIntent(context.Background(), sourcePath); err != nil {
		return fmt.Errorf("dropping deletion intent: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListDeletionIntents() ([]*dedup.DeletionIntent, error) {
	intents, err := s.queries.listIntents(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing deletion intents: %w", err)
	}
	result := make([]*dedup.DeletionIntent, len(intents))
	for i := range intents {
		result[i] = &intents[i]
	}
	return result, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Snapshot creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) Snapshot(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements dedup.Database interface
var _ dedup.Database = (*SQLiteDatabase)(nil)
