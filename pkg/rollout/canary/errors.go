package canary

import (
	"errors"
	"fmt"
)

// Common canary errors that can be checked with errors.Is().
var (
	// ErrDeploymentActive is returned when a deployment is started while
	// another is already running. The caller should stop the active
	// deployment first, or retry later.
	ErrDeploymentActive = errors.New("canary deployment already active")

	// ErrNoActiveDeployment is returned by operations that require a
	// running deployment.
	ErrNoActiveDeployment = errors.New("no active canary deployment")

	// ErrInvalidPercentage is returned for percentages outside [0,100].
	ErrInvalidPercentage = errors.New("percentage outside [0,100]")

	// ErrNilPolicy is returned when a nil policy is supplied.
	ErrNilPolicy = errors.New("policy cannot be nil")
)

// InvalidPercentageError carries the rejected value.
type InvalidPercentageError struct {
	Percentage float64
}

// Error implements the error interface.
func (e *InvalidPercentageError) Error() string {
	return fmt.Sprintf("traffic percentage %.2f outside [0,100]", e.Percentage)
}

// Is implements error matching for errors.Is().
func (e *InvalidPercentageError) Is(target error) bool {
	return target == ErrInvalidPercentage
}
