package app

import (
	"context"
	"errors"

	"dedupe-go/internal/dedup"
)

// Run tracks one CLI invocation that may write to the audit log.
// Runs start in memory with ID=0 and get an ID from the database only when
// a command persists them.
type Run struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewRun creates an in-memory run that will finish as completed unless
// Fail is called.
func NewRun(operation, parameters string) *Run {
	return &Run{
		Operation:  operation,
		Parameters: parameters,
		Status:     dedup.RunStatusCompleted,
	}
}

// Persisted reports whether the run has been saved to the database.
func (r *Run) Persisted() bool {
	return r.ID != 0
}

// Fail records err as the run's final status. Cancellation marks the run
// interrupted; a nil error leaves the status unchanged.
func (r *Run) Fail(err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.Status = dedup.RunStatusInterrupted
	default:
		r.Status = dedup.RunStatusFailed
	}
}
