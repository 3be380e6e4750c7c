package audit

import (
	"errors"
	"time"
)

var (
	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("audit store is closed")
)

// Record is one flattened audit entry.
type Record struct {
	// ID is a UUID assigned when the record is created.
	ID string

	// Timestamp is when the underlying event happened.
	Timestamp time.Time

	// Component names the emitting subsystem, e.g. "canary" or "rollback".
	Component string

	// EventType is the component-level event name.
	EventType string

	// PolicyID is the policy the event concerns, empty when not applicable.
	PolicyID string

	// Detail holds the component-specific payload, stored as JSON.
	Detail map[string]any
}

// QueryFilter narrows a record query. Zero-valued fields are ignored.
type QueryFilter struct {
	Component string
	EventType string
	PolicyID  string
	// Since and Until bound the timestamp range inclusively.
	Since time.Time
	Until time.Time
	// Limit caps the result size. Zero means DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit bounds queries that do not set their own limit.
const DefaultQueryLimit = 500
