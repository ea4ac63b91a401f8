package dedup

import "errors"

var (
	// ErrOutsideScope is returned when a deletable candidate is requested for
	// a path that is not strictly inside the protected scope.
	ErrOutsideScope = errors.New("path is not inside the protected scope")

	// ErrInsideScope is returned when a keeper is requested for a path that
	// lies inside (or is) the protected scope.
	ErrInsideScope = errors.New("path is inside the protected scope")

	// ErrDeletionInProgress is returned by Database.BeginDeletion when another
	// run already holds a deletion intent for the same source path.
	ErrDeletionInProgress = errors.New("deletion already in progress for source")

	// ErrConfirmationRequired is returned when a live run is started without
	// the interactive confirmation token.
	ErrConfirmationRequired = errors.New("live mode requires interactive confirmation")
)
