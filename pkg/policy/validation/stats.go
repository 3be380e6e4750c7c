package validation

import (
	"maps"
	"sync"
	"time"
)

// Statistics accumulates validation call counts across an engine's lifetime.
// Shared mutable state is intentional here: the running tallies are part of
// the engine's contract.
type Statistics struct {
	mu sync.RWMutex

	total   int64
	valid   int64
	invalid int64

	byLevel map[Level]int64
	byCode  map[string]int64

	totalDuration time.Duration
	lastRun       time.Time
}

// StatisticsSnapshot is a point-in-time copy of the running statistics.
type StatisticsSnapshot struct {
	Total   int64
	Valid   int64
	Invalid int64

	ByLevel map[Level]int64
	ByCode  map[string]int64

	AverageDuration time.Duration
	LastRun         time.Time
}

func newStatistics() *Statistics {
	return &Statistics{
		byLevel: make(map[Level]int64),
		byCode:  make(map[string]int64),
	}
}

// record folds one validation result into the tallies.
func (s *Statistics) record(r *Result, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if r.IsValid {
		s.valid++
	} else {
		s.invalid++
	}

	s.byLevel[r.Level]++
	for _, f := range r.Errors {
		s.byCode[f.Code]++
	}

	s.totalDuration += duration
	s.lastRun = time.Now()
}

// snapshot returns a copy of the tallies.
func (s *Statistics) snapshot() StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatisticsSnapshot{
		Total:   s.total,
		Valid:   s.valid,
		Invalid: s.invalid,
		ByLevel: maps.Clone(s.byLevel),
		ByCode:  maps.Clone(s.byCode),
		LastRun: s.lastRun,
	}
	if s.total > 0 {
		snap.AverageDuration = s.totalDuration / time.Duration(s.total)
	}
	return snap
}
