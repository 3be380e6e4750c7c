package hotreload

import (
	"errors"
	"fmt"
)

var (
	// ErrReloadInProgress is returned when a reload is requested while
	// another one is still running.
	ErrReloadInProgress = errors.New("reload already in progress")

	// ErrUnknownStrategy is returned by ParseStrategy for names it does
	// not recognize.
	ErrUnknownStrategy = errors.New("unknown reload strategy")

	// ErrValidationFailed is returned when a stage or soak check rejects
	// the candidate policy.
	ErrValidationFailed = errors.New("reload validation failed")

	// ErrNilPolicy is returned when a reload is requested with no policy.
	ErrNilPolicy = errors.New("policy must not be nil")
)

// StageError reports which gradual stage rejected the candidate.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q rejected policy: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

func (e *StageError) Is(target error) bool { return target == ErrValidationFailed }
