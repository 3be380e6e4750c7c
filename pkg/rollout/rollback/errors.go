package rollback

import (
	"errors"
	"fmt"
)

// Common rollback errors that can be checked with errors.Is().
var (
	// ErrNoStableSnapshot is returned when automatic rollback finds no
	// snapshot with an idle deployment state to restore.
	ErrNoStableSnapshot = errors.New("no stable snapshot available")

	// ErrSnapshotNotFound is returned for an unknown snapshot ID.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrRollbackInProgress is returned when a rollback is started while
	// another is still executing. The caller should retry once the
	// active rollback finishes.
	ErrRollbackInProgress = errors.New("rollback already in progress")

	// ErrExecutionFailed wraps failures during rollback execution.
	ErrExecutionFailed = errors.New("rollback execution failed")
)

// SnapshotNotFoundError carries the unknown ID.
type SnapshotNotFoundError struct {
	SnapshotID string
}

// Error implements the error interface.
func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot %q not found", e.SnapshotID)
}

// Is implements error matching for errors.Is().
func (e *SnapshotNotFoundError) Is(target error) bool {
	return target == ErrSnapshotNotFound
}

// ExecutionError wraps a failure during rollback execution with the
// completion fraction reached before the failure.
type ExecutionError struct {
	RollbackID string
	Progress   float64
	Cause      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rollback %s failed at %.0f%% completion: %v",
		e.RollbackID, e.Progress*100, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// Unwrap returns the wrapped cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
