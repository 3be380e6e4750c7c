package updater

import (
	"errors"
	"fmt"
)

// Common updater errors that can be checked with errors.Is().
var (
	// ErrValidationFailed is returned when the candidate policy has
	// critical validation findings. Nothing was mutated.
	ErrValidationFailed = errors.New("policy validation failed")

	// ErrApplyFailed is returned when the swap was rejected.
	ErrApplyFailed = errors.New("policy apply failed")

	// ErrNilPolicy is returned when a nil policy is supplied.
	ErrNilPolicy = errors.New("policy cannot be nil")
)

// ValidationFailedError carries the critical finding count.
type ValidationFailedError struct {
	PolicyID      string
	CriticalCount int
}

// Error implements the error interface.
func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("policy %q rejected: %d critical validation findings",
		e.PolicyID, e.CriticalCount)
}

// Is implements error matching for errors.Is().
func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidationFailed
}
