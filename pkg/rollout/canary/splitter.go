package canary

import (
	"hash/fnv"
	"log/slog"
	"slices"
	"sync/atomic"
)

// splitter makes the per-request stable-vs-canary decision. It is owned by
// the Manager and reads the split under the manager's lock.
type splitter struct {
	logger *slog.Logger

	// onCustomFallback is invoked when a Custom criteria degrades to
	// random hashing, so the fallback shows up in telemetry.
	onCustomFallback func()

	// customWarned limits the fallback warning to once per splitter.
	customWarned atomic.Bool
}

func newSplitter(logger *slog.Logger, onCustomFallback func()) *splitter {
	return &splitter{
		logger:           logger,
		onCustomFallback: onCustomFallback,
	}
}

// decide returns true when the request should be served by the canary.
// Forced-group membership always wins over hashing.
func (s *splitter) decide(ctx RequestContext, split TrafficSplit) bool {
	if ctx.UserID != "" {
		for _, group := range split.UserGroups {
			if group.ForceCanary && slices.Contains(group.Users, ctx.UserID) {
				return true
			}
		}
	}

	key := s.hashKey(ctx, split.Criteria)
	return bucketOf(key) < split.Percentage
}

// hashKey picks the request attribute configured by the criteria.
func (s *splitter) hashKey(ctx RequestContext, criteria SplitCriteria) string {
	switch criteria.Kind {
	case CriteriaUserIDHash:
		return ctx.UserID
	case CriteriaIPAddressHash:
		return ctx.IPAddress
	case CriteriaCustom:
		// No custom criteria are registered; degrade to random hashing
		// but make the degradation observable.
		if s.customWarned.CompareAndSwap(false, true) {
			s.logger.Warn("custom split criteria not implemented, falling back to random",
				"criteria", criteria.Name,
			)
		}
		if s.onCustomFallback != nil {
			s.onCustomFallback()
		}
		return ctx.RequestID
	default:
		return ctx.RequestID
	}
}

// bucketOf reduces a key to a bucket in [0,100) with 0.01 granularity.
func bucketOf(key string) float64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return float64(h.Sum64()%10000) / 100.0
}
