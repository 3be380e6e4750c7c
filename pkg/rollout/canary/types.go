package canary

import (
	"fmt"
	"slices"
	"time"
)

// CriteriaKind selects the request attribute used for traffic hashing.
type CriteriaKind int

const (
	// CriteriaRandom hashes the request ID, giving a fresh decision per
	// request.
	CriteriaRandom CriteriaKind = iota

	// CriteriaUserIDHash hashes the user ID, pinning each user to one branch.
	CriteriaUserIDHash

	// CriteriaIPAddressHash hashes the client IP address.
	CriteriaIPAddressHash

	// CriteriaCustom names an externally-defined criteria. No custom
	// criteria are registered today; the splitter falls back to random
	// hashing and flags the fallback, so the degradation is visible
	// rather than silent.
	CriteriaCustom
)

// String returns the criteria name.
func (k CriteriaKind) String() string {
	switch k {
	case CriteriaRandom:
		return "random"
	case CriteriaUserIDHash:
		return "user_id_hash"
	case CriteriaIPAddressHash:
		return "ip_address_hash"
	case CriteriaCustom:
		return "custom"
	default:
		return fmt.Sprintf("criteria(%d)", int(k))
	}
}

// ParseCriteriaKind converts a criteria name to a CriteriaKind.
func ParseCriteriaKind(s string) (CriteriaKind, error) {
	switch s {
	case "random":
		return CriteriaRandom, nil
	case "user_id_hash":
		return CriteriaUserIDHash, nil
	case "ip_address_hash":
		return CriteriaIPAddressHash, nil
	case "custom":
		return CriteriaCustom, nil
	default:
		return CriteriaRandom, fmt.Errorf("unknown split criteria %q", s)
	}
}

// SplitCriteria is the closed set of traffic-split strategies. Name is only
// meaningful for CriteriaCustom.
type SplitCriteria struct {
	Kind CriteriaKind
	Name string
}

// UserGroup is a named set of users with optional forced canary membership.
type UserGroup struct {
	Name        string
	Users       []string
	ForceCanary bool
}

// TrafficSplit configures how requests are divided between stable and canary.
type TrafficSplit struct {
	// Percentage of traffic routed to the canary, in [0,100].
	Percentage float64

	// Criteria selects the request attribute used for bucketing.
	Criteria SplitCriteria

	// UserGroups lists forced-membership groups. ForceCanary membership
	// always wins over hashing.
	UserGroups []UserGroup
}

// clone returns a deep copy of the split.
func (s TrafficSplit) clone() TrafficSplit {
	out := s
	out.UserGroups = make([]UserGroup, len(s.UserGroups))
	for i, g := range s.UserGroups {
		out.UserGroups[i] = UserGroup{
			Name:        g.Name,
			Users:       slices.Clone(g.Users),
			ForceCanary: g.ForceCanary,
		}
	}
	return out
}

// RequestContext carries the per-request attributes the splitter can hash.
type RequestContext struct {
	RequestID string
	UserID    string
	IPAddress string
}

// DeploymentPhase is the coarse state of the deployment state machine.
type DeploymentPhase int

const (
	// PhaseIdle means no canary deployment is running. Idle is both the
	// initial and the terminal phase.
	PhaseIdle DeploymentPhase = iota

	// PhaseCanaryActive means a canary is live at a fixed percentage.
	PhaseCanaryActive

	// PhaseScaling means the live percentage is being adjusted.
	PhaseScaling
)

// String returns the phase name.
func (p DeploymentPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCanaryActive:
		return "canary_active"
	case PhaseScaling:
		return "scaling"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DeploymentState is the current position in the deployment state machine.
// Percentage and StartedAt are zero outside an active deployment.
type DeploymentState struct {
	Phase      DeploymentPhase
	Percentage float64
	StartedAt  time.Time
}

// EventType identifies a canary lifecycle event.
type EventType string

const (
	// EventCanaryStarted fires when a canary deployment begins.
	EventCanaryStarted EventType = "canary_started"

	// EventTrafficSplitChanged fires when the live percentage changes.
	EventTrafficSplitChanged EventType = "traffic_split_changed"

	// EventCanaryStopped fires when a deployment ends, promoted or not.
	EventCanaryStopped EventType = "canary_stopped"
)

// Event is a canary lifecycle notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string

	// PolicyID identifies the canary policy, when one is involved.
	PolicyID string

	// OldPercentage and NewPercentage bracket a split change.
	OldPercentage float64
	NewPercentage float64

	// Promoted is set on EventCanaryStopped when the canary became stable.
	Promoted bool

	// Metrics is a point-in-time snapshot taken when the event fired.
	Metrics *MetricsSnapshot
}
