package version

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a version ID is unknown to the manager.
	ErrNotFound = errors.New("version not found")

	// ErrBrokenLineage is returned by History when a parent link points at
	// an evicted or unknown version.
	ErrBrokenLineage = errors.New("version lineage is broken")

	// ErrNilPolicy is returned when a version is created from no policy.
	ErrNilPolicy = errors.New("policy must not be nil")
)

// NotFoundError carries the ID that failed to resolve.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("version %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
